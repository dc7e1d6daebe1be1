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

package precomp

import (
	"fmt"
	"os"

	bwtc "github.com/juhak/bwtc"
)

// protectedFreqBoost pushes symbols owned by earlier passes to the top
// of the frequency order so later passes never free or reuse them.
const protectedFreqBoost = uint64(1) << 40

func protectGrammarSymbols(freq *[256]uint64, grammar *Grammar) {
	for s := 0; s < 256; s++ {
		if grammar.IsSpecial(byte(s)) || grammar.IsVariable(byte(s)) {
			freq[s] += protectedFreqBoost
		}
	}
}

// BWTBlock is one transformable slice of a precompressor block. After
// the forward transform it owns the inverse transform keys.
type BWTBlock struct {
	Data     []byte
	LFPowers []uint32
}

// PrecompressorBlock is the unit flowing through the pipeline: the
// precompressed bytes, the grammar that rebuilds the original, and the
// BWT slices.
type PrecompressorBlock struct {
	Data         []byte
	OriginalSize uint64
	Grammar      *Grammar
	Slices       []BWTBlock
}

// Precompressor drives the configured sequence of replacement passes
// over raw blocks and carves the result into BWT slices.
type Precompressor struct {
	cfg bwtc.Config
}

// NewPrecompressor validates the pipeline string and returns a driver.
func NewPrecompressor(cfg bwtc.Config) (*Precompressor, error) {
	if !bwtc.ValidPipeline(cfg.Pipeline) {
		return nil, fmt.Errorf("%w: preprocessing pipeline %q", bwtc.ErrInvalidOption, cfg.Pipeline)
	}

	if cfg.MaxBWTBlockSize <= 0 || cfg.MaxBWTBlockSize > bwtc.MaxBlockSize {
		return nil, fmt.Errorf("%w: BWT block size %d", bwtc.ErrInvalidOption, cfg.MaxBWTBlockSize)
	}

	return &Precompressor{cfg: cfg}, nil
}

// Process runs every configured pass over raw and returns the block
// with its grammar and slice boundaries. Empty input is rejected.
func (this *Precompressor) Process(raw []byte) (*PrecompressorBlock, error) {
	if len(raw) == 0 {
		return nil, bwtc.ErrEmptyInput
	}

	grammar := NewGrammar()
	data := raw

	for i := 0; i < len(this.cfg.Pipeline); i++ {
		switch this.cfg.Pipeline[i] {
		case 'p':
			data = replacePairs(data, grammar, this.cfg.Escaping, this.cfg.Verbosity)
		case 'r':
			data = replaceRuns(data, grammar, this.cfg.Escaping, this.cfg.Verbosity)
		case 'c':
			data = replacePairs(data, grammar, this.cfg.Escaping, this.cfg.Verbosity)
			data = replaceRuns(data, grammar, this.cfg.Escaping, this.cfg.Verbosity)
		case 's':
			data = replaceSequences(data, grammar, this.cfg.Verbosity)
		}
	}

	block := &PrecompressorBlock{
		Data:         data,
		OriginalSize: uint64(len(raw)),
		Grammar:      grammar,
	}

	// as few slices as possible with every slice within the limit
	maxSize := this.cfg.MaxBWTBlockSize

	for beg := 0; beg < len(data); beg += maxSize {
		end := beg + maxSize

		if end > len(data) {
			end = len(data)
		}

		block.Slices = append(block.Slices, BWTBlock{Data: data[beg:end]})
	}

	if this.cfg.Verbosity > 1 {
		fmt.Fprintf(os.Stderr, "precompressed %d bytes to %d in %d slices, %d rules\n",
			len(raw), len(data), len(block.Slices), grammar.NumberOfRules())
	}

	return block, nil
}
