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
	"testing"

	"github.com/stretchr/testify/require"
)

func checkTableInvariant(t *testing.T, ft *FreqTable) {
	t.Helper()

	for i := 1; i < 256; i++ {
		require.LessOrEqual(t, ft.Get(i-1), ft.Get(i), "rank %d", i)
	}

	var seen [256]bool

	for i := 0; i < 256; i++ {
		seen[ft.Key(i)] = true
	}

	for s := 0; s < 256; s++ {
		require.True(t, seen[s], "symbol %d missing", s)
	}
}

func TestFreqTableSorted(t *testing.T) {
	var freqs [256]uint64
	rnd := rand.New(rand.NewSource(3))

	for i := range freqs {
		freqs[i] = uint64(rnd.Intn(1000))
	}

	ft := NewFreqTable(&freqs)
	checkTableInvariant(t, ft)

	for s := 0; s < 256; s++ {
		found := false

		for i := 0; i < 256; i++ {
			if ft.Key(i) == byte(s) {
				require.Equal(t, freqs[s], ft.Get(i))
				found = true
			}
		}

		require.True(t, found)
	}
}

func TestFreqTableUpdatesKeepOrder(t *testing.T) {
	var freqs [256]uint64
	rnd := rand.New(rand.NewSource(11))

	for i := range freqs {
		freqs[i] = uint64(rnd.Intn(100))
	}

	ft := NewFreqTable(&freqs)

	for i := 0; i < 10000; i++ {
		sym := byte(rnd.Intn(256))

		if rnd.Intn(2) == 0 {
			ft.Increase(sym, uint64(rnd.Intn(50)))
		} else {
			ft.Decrease(sym, uint64(rnd.Intn(50)))
		}
	}

	checkTableInvariant(t, ft)
}

func TestFreqTableIdempotent(t *testing.T) {
	var freqs [256]uint64

	for i := range freqs {
		freqs[i] = uint64(i * 3 % 97)
	}

	ft := NewFreqTable(&freqs)
	var before [256]uint64

	for s := 0; s < 256; s++ {
		before[s] = freqs[s]
	}

	// net zero sequence of updates
	ft.Increase(10, 42)
	ft.Increase(20, 7)
	ft.Decrease(10, 40)
	ft.Decrease(20, 7)
	ft.Decrease(10, 2)

	for s := 0; s < 256; s++ {
		rank := -1

		for i := 0; i < 256; i++ {
			if ft.Key(i) == byte(s) {
				rank = i
			}
		}

		require.Equal(t, before[s], ft.Get(rank), "symbol %d", s)
	}

	checkTableInvariant(t, ft)
}

func TestFreqTableUnderflow(t *testing.T) {
	var freqs [256]uint64
	freqs[5] = 3
	ft := NewFreqTable(&freqs)

	require.False(t, ft.Decrease(5, 4))
	require.True(t, ft.Decrease(5, 3))
	require.False(t, ft.Decrease(5, 1))
}
