/*
Copyright 2011-2026 Frederic Langlet
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
you may obtain a copy of the License at

                http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package entropy

import (
	"fmt"

	bwtc "github.com/juhak/bwtc"
)

// The probability model variants selected by the encoding id:
//
//	n -- flat, always predicts one half
//	m -- repeats the previous bit with near certainty
//	M -- repeats the previous bit with moderate confidence
//	u -- simple saturating 4 state predictor
//	b -- finite state machine over the recent bit history, unbiased
//	     and equal counters in each state
//	B -- the same machine with aged counters and a longer history
//
// All variants are deterministic and reset to their creation state at
// every context block boundary.

// NewPredictor returns the model matching the encoding id.
func NewPredictor(choice byte) (bwtc.Predictor, error) {
	switch choice {
	case 'n':
		return &flatModel{}, nil
	case 'm':
		return newPrevBitModel(bwtc.ProbabilityScale - 1), nil
	case 'M':
		return newPrevBitModel(3 * bwtc.ProbabilityScale / 4), nil
	case 'u':
		return newFourStateModel(), nil
	case 'b':
		return newFSMModel(3, false), nil
	case 'B':
		return newFSMModel(5, true), nil
	}

	return nil, fmt.Errorf("%w: unknown probability model '%c'", bwtc.ErrInvalidOption, choice)
}

// NewIntegerModel returns the adaptive model used for the binary digits
// of explicitly coded integers.
func NewIntegerModel() bwtc.Predictor {
	return newCounterModel(16)
}

// NewGapModel returns the adaptive model used for the unary magnitude
// part of the run length gamma codes.
func NewGapModel() bwtc.Predictor {
	return newCounterModel(64)
}

// flatModel always predicts one half and never adapts.
type flatModel struct{}

func (this *flatModel) ProbabilityOfOne() int { return bwtc.ProbabilityScale >> 1 }
func (this *flatModel) Update(bit int)        {}
func (this *flatModel) Reset()                {}

// prevBitModel predicts that the next bit repeats the previous one.
type prevBitModel struct {
	prev int
	high int
}

func newPrevBitModel(high int) *prevBitModel {
	return &prevBitModel{prev: 1, high: high}
}

func (this *prevBitModel) ProbabilityOfOne() int {
	if this.prev == 1 {
		return this.high
	}

	return bwtc.ProbabilityScale - this.high
}

func (this *prevBitModel) Update(bit int) {
	this.prev = bit
}

func (this *prevBitModel) Reset() {
	this.prev = 1
}

// fourStateModel saturates between strong and weak predictions of
// either bit.
type fourStateModel struct {
	state int // 0,1 favor zero; 2,3 favor one
}

var _FOUR_STATE_P1 = [4]int{
	bwtc.ProbabilityScale / 16,
	bwtc.ProbabilityScale * 5 / 16,
	bwtc.ProbabilityScale * 11 / 16,
	bwtc.ProbabilityScale * 15 / 16,
}

func newFourStateModel() *fourStateModel {
	return &fourStateModel{state: 1}
}

func (this *fourStateModel) ProbabilityOfOne() int {
	return _FOUR_STATE_P1[this.state]
}

func (this *fourStateModel) Update(bit int) {
	if bit == 1 {
		if this.state < 3 {
			this.state++
		}
	} else if this.state > 0 {
		this.state--
	}
}

func (this *fourStateModel) Reset() {
	this.state = 1
}

// counterModel keeps a pair of occurrence counters and predicts their
// ratio. The limit bounds the adaptation memory: when the total hits
// it, both counters are halved.
type counterModel struct {
	c0, c1 int
	limit  int
}

func newCounterModel(limit int) *counterModel {
	return &counterModel{limit: limit}
}

func (this *counterModel) ProbabilityOfOne() int {
	p := (this.c1 + 1) * bwtc.ProbabilityScale / (this.c0 + this.c1 + 2)

	if p < 1 {
		p = 1
	} else if p > bwtc.ProbabilityScale-1 {
		p = bwtc.ProbabilityScale - 1
	}

	return p
}

func (this *counterModel) Update(bit int) {
	if bit == 1 {
		this.c1++
	} else {
		this.c0++
	}

	if this.c0+this.c1 >= this.limit {
		this.c0 >>= 1
		this.c1 >>= 1
	}
}

func (this *counterModel) Reset() {
	this.c0 = 0
	this.c1 = 0
}

// fsmModel keeps one counter pair per recent bit history. historyBits
// selects the machine size; aging halves the counters periodically so
// the states track local statistics.
type fsmModel struct {
	history int
	mask    int
	aged    bool
	states  []counterModel
}

func newFSMModel(historyBits uint, aged bool) *fsmModel {
	n := 1 << historyBits
	this := &fsmModel{mask: n - 1, aged: aged}
	this.states = make([]counterModel, n)
	limit := 1 << 30

	if aged {
		limit = 255
	}

	for i := range this.states {
		this.states[i].limit = limit
	}

	return this
}

func (this *fsmModel) ProbabilityOfOne() int {
	return this.states[this.history].ProbabilityOfOne()
}

func (this *fsmModel) Update(bit int) {
	this.states[this.history].Update(bit)
	this.history = ((this.history << 1) | bit) & this.mask
}

func (this *fsmModel) Reset() {
	this.history = 0

	for i := range this.states {
		this.states[i].Reset()
	}
}
