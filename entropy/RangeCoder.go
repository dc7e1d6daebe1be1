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

// Package entropy implements the two entropy coder variants of the
// pipeline: the wavelet tree driven binary arithmetic coder and the
// canonical Huffman coder over run lengths.
package entropy

import (
	bwtc "github.com/juhak/bwtc"
	"github.com/juhak/bwtc/bitstream"
)

const _RC_TOP = uint32(1) << 24

// BitEncoder is a binary range coder with 32 bit state and byte wise
// carry propagation. One bit costs one interval split; renormalization
// emits bytes whenever the range drops below 2^24. The byte counts of
// encoder and decoder match exactly, so several independently coded
// sections can share one buffer back to back.
type BitEncoder struct {
	low       uint64
	rng       uint32
	cache     byte
	cacheSize int
	out       *bitstream.OutputBitStream
}

// NewBitEncoder creates an encoder appending to the given byte aligned
// stream.
func NewBitEncoder(out *bitstream.OutputBitStream) *BitEncoder {
	this := &BitEncoder{out: out}
	this.Init()
	return this
}

// Init restores the coder state for a new context section.
func (this *BitEncoder) Init() {
	this.low = 0
	this.rng = 0xFFFFFFFF
	this.cache = 0
	this.cacheSize = 1
}

// Encode codes one bit under the given probability of one, scaled to
// ProbabilityScale.
func (this *BitEncoder) Encode(bit int, probabilityOfOne int) {
	bound := (this.rng >> bwtc.LogProbabilityScale) * uint32(probabilityOfOne)

	if bit != 0 {
		this.rng = bound
	} else {
		this.low += uint64(bound)
		this.rng -= bound
	}

	for this.rng < _RC_TOP {
		this.shiftLow()
		this.rng <<= 8
	}
}

// Finish flushes the remaining state. The section payload ends byte
// aligned; the decoder consumes exactly the bytes written.
func (this *BitEncoder) Finish() {
	for i := 0; i < 5; i++ {
		this.shiftLow()
	}
}

func (this *BitEncoder) shiftLow() {
	if uint32(this.low) < 0xFF000000 || (this.low>>32) != 0 {
		carry := byte(this.low >> 32)
		b := this.cache

		for this.cacheSize > 0 {
			this.out.WriteByte(b + carry)
			b = 0xFF
			this.cacheSize--
		}

		this.cache = byte(this.low >> 24)
	}

	this.cacheSize++
	this.low = (this.low << 8) & 0xFFFFFFFF
}

// BitDecoder is the matching range decoder.
type BitDecoder struct {
	rng     uint32
	code    uint32
	in      *bitstream.InputBitStream
	corrupt bool
}

// NewBitDecoder creates a decoder reading from the given byte aligned
// stream.
func NewBitDecoder(in *bitstream.InputBitStream) *BitDecoder {
	this := &BitDecoder{in: in}
	this.Init()
	return this
}

// Init primes the coder state for a new context section. The first
// byte written by the encoder is always zero; anything else marks a
// corrupt stream.
func (this *BitDecoder) Init() {
	this.rng = 0xFFFFFFFF
	this.code = 0

	if this.in.ReadByte() != 0 {
		this.corrupt = true
	}

	for i := 0; i < 4; i++ {
		this.code = (this.code << 8) | uint32(this.in.ReadByte())
	}
}

// Decode returns the next bit under the given probability of one.
func (this *BitDecoder) Decode(probabilityOfOne int) int {
	bound := (this.rng >> bwtc.LogProbabilityScale) * uint32(probabilityOfOne)
	var bit int

	if this.code < bound {
		bit = 1
		this.rng = bound
	} else {
		bit = 0
		this.code -= bound
		this.rng -= bound
	}

	for this.rng < _RC_TOP {
		this.code = (this.code << 8) | uint32(this.in.ReadByte())
		this.rng <<= 8
	}

	return bit
}

// Corrupt tells whether the coded stream was structurally invalid.
func (this *BitDecoder) Corrupt() bool {
	return this.corrupt || this.in.Overflow()
}
