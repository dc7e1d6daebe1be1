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

// Package precomp implements the grammar based precompressor: the
// frequency order statistic, the replacement grammar, the pair, run
// and long sequence replacers and the inverse postprocessor.
package precomp

import "sort"

// FreqTable keeps the 256 symbols ordered by ascending frequency
// together with the inverse index from symbol to rank. Updates bubble
// the affected entry to keep the order; no allocation happens after
// construction.
type FreqTable struct {
	syms     [256]byte
	freqs    [256]uint64
	location [256]int
}

// NewFreqTable builds the table from raw frequencies.
func NewFreqTable(frequencies *[256]uint64) *FreqTable {
	this := &FreqTable{}
	order := make([]int, 256)

	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return frequencies[order[a]] < frequencies[order[b]]
	})

	for rank, sym := range order {
		this.syms[rank] = byte(sym)
		this.freqs[rank] = frequencies[sym]
		this.location[sym] = rank
	}

	return this
}

// Get returns the frequency at the given rank.
func (this *FreqTable) Get(rank int) uint64 {
	return this.freqs[rank]
}

// Key returns the symbol at the given rank.
func (this *FreqTable) Key(rank int) byte {
	return this.syms[rank]
}

// Decrease lowers the frequency of sym by value, bubbling the entry
// down. It returns false and changes nothing when the frequency would
// underflow.
func (this *FreqTable) Decrease(sym byte, value uint64) bool {
	rank := this.location[sym]

	if this.freqs[rank] < value {
		return false
	}

	newValue := this.freqs[rank] - value

	for rank > 0 && newValue < this.freqs[rank-1] {
		this.location[this.syms[rank-1]]++
		this.syms[rank] = this.syms[rank-1]
		this.freqs[rank] = this.freqs[rank-1]
		rank--
	}

	this.syms[rank] = sym
	this.freqs[rank] = newValue
	this.location[sym] = rank
	return true
}

// Increase raises the frequency of sym by value, bubbling the entry
// up.
func (this *FreqTable) Increase(sym byte, value uint64) {
	rank := this.location[sym]
	newValue := this.freqs[rank] + value

	for rank < 255 && newValue > this.freqs[rank+1] {
		this.location[this.syms[rank+1]]--
		this.syms[rank] = this.syms[rank+1]
		this.freqs[rank] = this.freqs[rank+1]
		rank++
	}

	this.syms[rank] = sym
	this.freqs[rank] = newValue
	this.location[sym] = rank
}
