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
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	bwtc "github.com/juhak/bwtc"
)

func passConfig(pipeline string, escaping bool) bwtc.Config {
	cfg := bwtc.DefaultConfig()
	cfg.Pipeline = pipeline
	cfg.Escaping = escaping
	return cfg
}

func passRoundTrip(t *testing.T, pipeline string, escaping bool, input []byte) {
	t.Helper()
	pre, err := NewPrecompressor(passConfig(pipeline, escaping))
	require.NoError(t, err)

	block, err := pre.Process(input)
	require.NoError(t, err)
	require.LessOrEqual(t, len(block.Data), len(input))

	for s := 0; s < 256; s++ {
		require.False(t, block.Grammar.IsSpecial(byte(s)) && block.Grammar.IsVariable(byte(s)),
			"symbol %d is both special and variable", s)
	}

	restored, err := Postprocess(block.Data, block.Grammar, block.OriginalSize)
	require.NoError(t, err)
	require.Equal(t, input, restored)
}

func testInputs(t *testing.T) [][]byte {
	rnd := rand.New(rand.NewSource(17))
	random := make([]byte, 50000)
	rnd.Read(random)

	skewed := make([]byte, 60000)

	for i := range skewed {
		skewed[i] = byte(rnd.Intn(5)) * 40
	}

	runs := []byte(strings.Repeat("aaaaaaaabbbbcc", 3000))
	english := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog. ", 2000))

	return [][]byte{
		[]byte("a"),
		[]byte("ab"),
		[]byte("aaaa"),
		[]byte("baaabaaabcb"),
		[]byte("ahahabahbahaeaeabeabababa"),
		random,
		skewed,
		runs,
		english,
	}
}

func TestPassRoundTrips(t *testing.T) {
	pipelines := []string{"", "p", "r", "c", "s", "pp", "pr", "rp", "ps", "ppr"}

	for _, pipeline := range pipelines {
		for _, escaping := range []bool{true, false} {
			for i, input := range testInputs(t) {
				func() {
					defer func() {
						if r := recover(); r != nil {
							t.Fatalf("pipeline %q escaping %v input %d panicked: %v",
								pipeline, escaping, i, r)
						}
					}()
					passRoundTrip(t, pipeline, escaping, input)
				}()
			}
		}
	}
}

func TestEmptyInputRejected(t *testing.T) {
	pre, err := NewPrecompressor(passConfig("p", true))
	require.NoError(t, err)

	_, err = pre.Process(nil)
	require.ErrorIs(t, err, bwtc.ErrEmptyInput)
}

// No accepted pair may share its second byte with another accepted
// pair's first byte, otherwise substitutions would chain.
func TestPairReplacementContract(t *testing.T) {
	for _, input := range testInputs(t) {
		grammar := NewGrammar()
		replacePairs(input, grammar, true, 0)
		passes := grammar.Passes()
		require.Len(t, passes, 1)

		for i := 0; i < passes[0].RuleCount; i++ {
			a := grammar.RightHandSide(grammar.Rule(i))

			for j := 0; j < passes[0].RuleCount; j++ {
				b := grammar.RightHandSide(grammar.Rule(j))
				require.False(t, a[1] == b[0],
					"rule %d second byte chains into rule %d first byte", i, j)
			}
		}
	}
}

func TestRunReplacementAllIdentical(t *testing.T) {
	input := []byte(strings.Repeat("z", 4096))
	pre, err := NewPrecompressor(passConfig("r", true))
	require.NoError(t, err)

	block, err := pre.Process(input)
	require.NoError(t, err)
	require.Less(t, len(block.Data), len(input))
	require.Greater(t, block.Grammar.NumberOfRules(), 0)

	restored, err := Postprocess(block.Data, block.Grammar, block.OriginalSize)
	require.NoError(t, err)
	require.Equal(t, input, restored)
}

func TestSequenceReplacement(t *testing.T) {
	chunk := make([]byte, 64)
	rnd := rand.New(rand.NewSource(23))
	rnd.Read(chunk)
	input := append([]byte(nil), chunk...)

	for i := 0; i < 20; i++ {
		input = append(input, chunk...)
	}

	pre, err := NewPrecompressor(passConfig("s", true))
	require.NoError(t, err)

	block, err := pre.Process(input)
	require.NoError(t, err)
	require.Less(t, len(block.Data), len(input))

	restored, err := Postprocess(block.Data, block.Grammar, block.OriginalSize)
	require.NoError(t, err)
	require.Equal(t, input, restored)
}

// sequencePromotionInput builds a block whose profitable repeated
// windows outnumber the free symbols: 250 byte values circulate in the
// filler, leaving six free bytes, while twenty distinct windows repeat
// four times each.
func sequencePromotionInput() []byte {
	data := make([]byte, 0, 4800)

	for o := 0; o < 70*seqWindow; o++ {
		data = append(data, byte(o%250))
	}

	for g := 0; g < 20; g++ {
		var window [seqWindow]byte

		for i := range window {
			window[i] = byte((g*37 + i*11 + 5) % 250)
		}

		for rep := 0; rep < 4; rep++ {
			data = append(data, window[:]...)
		}
	}

	return data
}

func TestSequencePromotionToSpecialPairs(t *testing.T) {
	input := sequencePromotionInput()
	pre, err := NewPrecompressor(passConfig("s", true))
	require.NoError(t, err)

	block, err := pre.Process(input)
	require.NoError(t, err)
	require.Less(t, len(block.Data), len(input))
	require.Greater(t, block.Grammar.NumberOfSpecialSymbols(), 0)

	largeRules := 0

	for i := 0; i < block.Grammar.NumberOfRules(); i++ {
		if block.Grammar.Rule(i).Large {
			largeRules++
		}
	}

	require.Greater(t, largeRules, 0, "no rule uses a special pair variable")

	restored, err := Postprocess(block.Data, block.Grammar, block.OriginalSize)
	require.NoError(t, err)
	require.Equal(t, input, restored)
}

func TestSequenceQuoteFreesRareSymbol(t *testing.T) {
	// 252 byte values circulate, three stay free; value 252 occurs a
	// single time, so quoting it as a special pair buys a cheap plain
	// variable
	data := make([]byte, 0, 2048)

	for o := 0; o < 24*seqWindow; o++ {
		data = append(data, byte(o%252))
	}

	data[100] = 252

	for g := 0; g < 10; g++ {
		var window [seqWindow]byte

		for i := range window {
			window[i] = byte((g*37 + i*11 + 5) % 200)
		}

		for rep := 0; rep < 4; rep++ {
			data = append(data, window[:]...)
		}
	}

	pre, err := NewPrecompressor(passConfig("s", true))
	require.NoError(t, err)

	block, err := pre.Process(data)
	require.NoError(t, err)
	require.Greater(t, block.Grammar.NumberOfFreedSymbols(), 0,
		"no symbol was freed through special pair quoting")

	restored, err := Postprocess(block.Data, block.Grammar, block.OriginalSize)
	require.NoError(t, err)
	require.Equal(t, data, restored)
}

func TestSlicing(t *testing.T) {
	cfg := passConfig("", true)
	cfg.MaxBWTBlockSize = 1000
	pre, err := NewPrecompressor(cfg)
	require.NoError(t, err)

	input := make([]byte, 2500)
	block, err := pre.Process(input[:2500])
	require.NoError(t, err)
	require.Len(t, block.Slices, 3)
	require.Len(t, block.Slices[0].Data, 1000)
	require.Len(t, block.Slices[2].Data, 500)
}
