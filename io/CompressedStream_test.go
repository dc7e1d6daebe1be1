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

package io

import (
	"bytes"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	bwtc "github.com/juhak/bwtc"
)

func testConfig(pipeline string, encoding byte) bwtc.Config {
	cfg := bwtc.DefaultConfig()
	cfg.Pipeline = pipeline
	cfg.Encoding = encoding
	return cfg
}

func compress(t *testing.T, cfg bwtc.Config, input []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, cfg)
	require.NoError(t, err)

	n, err := w.Write(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func decompress(t *testing.T, compressed []byte) []byte {
	t.Helper()
	r, err := NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return out
}

func containerRoundTrip(t *testing.T, cfg bwtc.Config, input []byte) []byte {
	t.Helper()
	compressed := compress(t, cfg, input)
	got := decompress(t, compressed)
	require.Equal(t, input, got, "pipeline %q encoding %c", cfg.Pipeline, cfg.Encoding)
	return compressed
}

func TestRoundTripMatrix(t *testing.T) {
	rnd := rand.New(rand.NewSource(53))
	random := make([]byte, 8000)
	rnd.Read(random)

	inputs := [][]byte{
		[]byte("a"),
		[]byte("aaaa"),
		[]byte("baaabaaabcb"),
		[]byte("ahahabahbahaeaeabeabababa"),
		[]byte("abcdabcdabcdabcaba"),
		[]byte(strings.Repeat("x", 2000)),
		[]byte(strings.Repeat("compression pipelines ", 400)),
		random,
	}

	pipelines := []string{"", "p", "r", "c", "s", "pp", "pr"}
	encodings := []byte{'n', 'm', 'M', 'u', 'b', 'B', 'h'}

	for _, pipeline := range pipelines {
		for _, encoding := range encodings {
			for _, input := range inputs {
				containerRoundTrip(t, testConfig(pipeline, encoding), input)
			}
		}
	}
}

func TestRoundTripRandomBlockOverhead(t *testing.T) {
	rnd := rand.New(rand.NewSource(59))
	input := make([]byte, 100000)
	rnd.Read(input)

	// the adaptive counter models and the flat model stay within a
	// small overhead on incompressible data; the prev-bit models are
	// excluded (mispredicting random bits is their worst case)
	for _, encoding := range []byte{'n', 'b', 'B'} {
		compressed := containerRoundTrip(t, testConfig("", encoding), input)
		require.LessOrEqual(t, len(compressed), len(input)+8192,
			"encoding %c blows the incompressibility bound", encoding)
	}

	for _, encoding := range []byte{'m', 'M', 'u', 'h'} {
		containerRoundTrip(t, testConfig("", encoding), input)
	}
}

func TestRoundTripMultipleBlocks(t *testing.T) {
	cfg := testConfig("c", 'B')
	cfg.BlockSize = 1 << 12
	cfg.MaxBWTBlockSize = 1 << 10

	input := []byte(strings.Repeat("many small blocks stress the container framing. ", 600))
	containerRoundTrip(t, cfg, input)
}

func TestRoundTripEscapeDisabled(t *testing.T) {
	cfg := testConfig("pr", 'h')
	cfg.Escaping = false

	input := []byte(strings.Repeat("abab cdcd abab eeee ", 1000))
	containerRoundTrip(t, cfg, input)
}

func TestAllByteValues(t *testing.T) {
	// every symbol used: no free symbols without escaping
	input := make([]byte, 0, 3*256)

	for r := 0; r < 3; r++ {
		for s := 0; s < 256; s++ {
			input = append(input, byte(s), byte(s))
		}
	}

	containerRoundTrip(t, testConfig("pc", 'B'), input)
	containerRoundTrip(t, testConfig("p", 'h'), input)
}

func TestRoundTripSequencePromotion(t *testing.T) {
	// more profitable repeated windows than free symbols: the sequence
	// pass promotes specials and emits pair variables
	input := make([]byte, 0, 4800)

	for o := 0; o < 70*32; o++ {
		input = append(input, byte(o%250))
	}

	for g := 0; g < 20; g++ {
		var window [32]byte

		for i := range window {
			window[i] = byte((g*37 + i*11 + 5) % 250)
		}

		for rep := 0; rep < 4; rep++ {
			input = append(input, window[:]...)
		}
	}

	containerRoundTrip(t, testConfig("s", 'B'), input)
	containerRoundTrip(t, testConfig("s", 'h'), input)
	containerRoundTrip(t, testConfig("sp", 'B'), input)
}

func TestEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, testConfig("", 'B'))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// header + terminator only
	require.Equal(t, []byte{0, 'B', 0}, buf.Bytes())

	got := decompress(t, buf.Bytes())
	require.Len(t, got, 0)
}

func TestTruncatedStream(t *testing.T) {
	compressed := compress(t, testConfig("p", 'B'), []byte(strings.Repeat("truncation ", 500)))

	for _, cut := range []int{0, 1, 2, 3, 10, len(compressed) / 2, len(compressed) - 1} {
		r, err := NewReader(bytes.NewReader(compressed[:cut]))
		require.NoError(t, err)

		_, err = io.ReadAll(r)
		require.Error(t, err, "cut at %d", cut)
	}
}

func TestGarbageRejected(t *testing.T) {
	r, err := NewReader(bytes.NewReader([]byte{9, 'q'}))
	require.NoError(t, err)

	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, bwtc.ErrMalformedInput)
}

func TestInvalidWriterConfig(t *testing.T) {
	var buf bytes.Buffer

	_, err := NewWriter(&buf, testConfig("", 'q'))
	require.ErrorIs(t, err, bwtc.ErrInvalidOption)

	_, err = NewWriter(&buf, testConfig("z", 'B'))
	require.ErrorIs(t, err, bwtc.ErrInvalidOption)

	cfg := testConfig("", 'B')
	cfg.BlockSize = 0
	_, err = NewWriter(&buf, cfg)
	require.ErrorIs(t, err, bwtc.ErrInvalidOption)
}
