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
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/juhak/bwtc/bitstream"
)

func TestCalculateRuns(t *testing.T) {
	runseq, runlen := calculateRuns([]byte("aaabbc"))
	require.Equal(t, []byte("abc"), runseq)
	require.Equal(t, []uint32{3, 2, 1}, runlen)
}

func TestHuffmanLengthsSingleSymbol(t *testing.T) {
	var clen [256]byte
	var freqs [256]int
	freqs['a'] = 4
	maxLen := calculateHuffmanLengths(&clen, &freqs)
	require.Equal(t, 1, maxLen)
	require.Equal(t, byte(1), clen['a'])

	var code [256]uint64
	computeHuffmanCodes(&clen, &code)
	require.Equal(t, uint64(0), code['a'])
}

func TestHuffmanCanonicity(t *testing.T) {
	rnd := rand.New(rand.NewSource(13))
	var freqs [256]int

	for i := 0; i < 200; i++ {
		freqs[rnd.Intn(256)] = rnd.Intn(10000) + 1
	}

	var clen [256]byte
	calculateHuffmanLengths(&clen, &freqs)
	var code [256]uint64
	computeHuffmanCodes(&clen, &code)

	// Kraft equality
	kraft := uint64(0)

	for s := 0; s < 256; s++ {
		if clen[s] > 0 {
			kraft += uint64(1) << (62 - uint(clen[s]))
		}
	}

	require.Equal(t, uint64(1)<<62, kraft)

	// canonical order property
	for s := 0; s < 256; s++ {
		for u := 0; u < 256; u++ {
			if clen[s] == 0 || clen[u] == 0 || clen[s] >= clen[u] {
				continue
			}

			shifted := code[s] << (clen[u] - clen[s])
			require.LessOrEqual(t, shifted, code[u],
				"codes of %d (len %d) and %d (len %d)", s, clen[s], u, clen[u])
		}
	}
}

func TestInterpolativeRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(29))

	for trial := 0; trial < 50; trial++ {
		var present [256]bool
		count := 1 + rnd.Intn(256)

		for i := 0; i < count; i++ {
			present[rnd.Intn(256)] = true
		}

		var syms []byte

		for s := 0; s < 256; s++ {
			if present[s] {
				syms = append(syms, byte(s))
			}
		}

		out := bitstream.NewOutputBitStream(128)
		maxSym := int(syms[len(syms)-1])
		interpolativeEncode(out, syms, 0, maxSym)

		got := make([]byte, len(syms))
		in := bitstream.NewInputBitStream(out.Bytes())
		require.NoError(t, interpolativeDecode(in, got, 0, maxSym))
		require.Equal(t, syms, got)
	}
}

func huffmanSectionRoundTrip(t *testing.T, data []byte, sections []uint64) {
	t.Helper()
	out := bitstream.NewOutputBitStream(len(data) + 256)
	require.NoError(t, NewHuffmanEncoder().EncodeSections(out, data, sections))

	got := make([]byte, len(data))
	in := bitstream.NewInputBitStream(out.Bytes())
	require.NoError(t, NewHuffmanDecoder().DecodeSections(in, sections, got))
	require.Equal(t, data, got)
	require.Equal(t, uint64(0), in.Remaining()%8, "sections must end byte aligned")
}

func TestHuffmanSectionSingleRun(t *testing.T) {
	// one symbol, one run: code length 1, code 0, gamma 00100 for L=4
	data := []byte("aaaa")
	out := bitstream.NewOutputBitStream(64)
	require.NoError(t, NewHuffmanEncoder().EncodeSections(out, data, []uint64{4}))

	in := bitstream.NewInputBitStream(out.Bytes())
	nRuns, err := readPackedInt(in)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nRuns)

	var clen [256]byte
	_, err = deserializeShape(in, &clen)
	require.NoError(t, err)
	require.Equal(t, byte(1), clen['a'])
	in.AlignToByte()

	// code words: a single 0 bit, padded
	require.Equal(t, byte(0x00), in.ReadByte())

	// gamma code of 4: two zeros then 100
	require.Equal(t, 0, in.ReadBit())
	require.Equal(t, 0, in.ReadBit())
	require.Equal(t, 1, in.ReadBit())
	require.Equal(t, 0, in.ReadBit())
	require.Equal(t, 0, in.ReadBit())

	got := make([]byte, 4)
	in = bitstream.NewInputBitStream(out.Bytes())
	require.NoError(t, NewHuffmanDecoder().DecodeSections(in, []uint64{4}, got))
	require.Equal(t, data, got)
}

func TestHuffmanSectionRoundTrips(t *testing.T) {
	rnd := rand.New(rand.NewSource(31))

	random := make([]byte, 30000)
	rnd.Read(random)

	skewed := make([]byte, 30000)

	for i := range skewed {
		skewed[i] = byte(rnd.Intn(3))
	}

	inputs := [][]byte{
		[]byte("a"),
		[]byte("aaaa"),
		[]byte("abca"),
		[]byte(strings.Repeat("ab", 5000)),
		[]byte(strings.Repeat("aaaaaaaaaaaaaaab", 1000)),
		random,
		skewed,
	}

	for _, data := range inputs {
		huffmanSectionRoundTrip(t, data, []uint64{uint64(len(data))})

		if len(data) > 10 {
			half := uint64(len(data) / 2)
			huffmanSectionRoundTrip(t, data, []uint64{half, uint64(len(data)) - half})
		}
	}
}

// A symbol distribution shaped like a Fibonacci sequence produces very
// skewed code lengths whose tails span several bytes.
func TestHuffmanSkewedCodeLengths(t *testing.T) {
	var data []byte
	count := 1

	for s := 0; s < 20; s++ {
		for i := 0; i < count; i++ {
			data = append(data, byte(s)|0x80, byte(s))
		}

		count = count*8/5 + 1
	}

	huffmanSectionRoundTrip(t, data, []uint64{uint64(len(data))})
}
