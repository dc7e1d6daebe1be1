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

package transform

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuffixArrayBanana(t *testing.T) {
	src := []byte("banana")
	sa := make([]int, len(src))
	SuffixArray(src, sa)
	require.Equal(t, []int{5, 3, 1, 0, 4, 2}, sa)
}

func TestForwardBanana(t *testing.T) {
	src := []byte("banana")
	dst := make([]byte, len(src))
	bwt := NewBWT()
	powers, err := bwt.Forward(src, dst)
	require.NoError(t, err)
	require.Equal(t, []byte("annbaa"), dst)
	require.Equal(t, []uint32{4}, powers)
}

func roundTrip(t *testing.T, src []byte) {
	t.Helper()
	bwt := NewBWT()
	transformed := make([]byte, len(src))
	powers, err := bwt.Forward(src, transformed)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(powers), 1)

	dst := make([]byte, len(src))
	require.NoError(t, bwt.Inverse(transformed, powers, dst))
	require.Equal(t, src, dst)
}

func TestRoundTripSmall(t *testing.T) {
	inputs := []string{
		"a",
		"ab",
		"aa",
		"banana",
		"mississippi",
		"abcdabcdabcdabcaba",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}

	for _, s := range inputs {
		roundTrip(t, []byte(s))
	}
}

func TestRoundTripChunked(t *testing.T) {
	// above the chunking threshold: several L-F powers
	rnd := rand.New(rand.NewSource(7))
	src := make([]byte, 10000)

	for i := range src {
		src[i] = byte(rnd.Intn(4)) + 'a'
	}

	bwt := NewBWT()
	transformed := make([]byte, len(src))
	powers, err := bwt.Forward(src, transformed)
	require.NoError(t, err)
	require.Equal(t, 8, len(powers))

	dst := make([]byte, len(src))
	require.NoError(t, bwt.Inverse(transformed, powers, dst))
	require.Equal(t, src, dst)
}

func TestRoundTripRandom(t *testing.T) {
	rnd := rand.New(rand.NewSource(99))

	for _, size := range []int{2, 3, 17, 255, 256, 257, 1000, 65536} {
		src := make([]byte, size)
		rnd.Read(src)
		roundTrip(t, src)
	}
}

func TestRoundTripAllIdentical(t *testing.T) {
	src := make([]byte, 5000)

	for i := range src {
		src[i] = 'x'
	}

	roundTrip(t, src)
}

func TestInverseRejectsBadPrimaryIndex(t *testing.T) {
	bwt := NewBWT()
	dst := make([]byte, 4)
	require.Error(t, bwt.Inverse([]byte("abcd"), []uint32{9}, dst))
	require.Error(t, bwt.Inverse([]byte("abcd"), []uint32{0}, dst))
}
