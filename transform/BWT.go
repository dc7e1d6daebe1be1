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

// Package transform implements the Burrows-Wheeler Transform over one
// block, built on SA-IS suffix array construction.
//
// The conceptual sort matrix is the one of the sentinel extended input
// T$ with $ smaller than every byte. The transformed output is the
// matrix last column without the sentinel character; the L-F powers
// identify, for each output chunk, the matrix row of the chunk's first
// suffix. Power zero doubles as the primary index. The inverse walks a
// packed successor table forward, one chunk per power, which is how
// the transform supports several independent starting points.
package transform

import (
	"errors"
	"fmt"
)

const (
	// MaxBWTBlockSize keeps matrix rows (and therefore L-F powers)
	// within 31 bits.
	MaxBWTBlockSize = 1 << 30

	_BWT_CHUNK_THRESHOLD = 256
)

// Chunks returns the number of inverse starting points used for a
// block of the given size.
func Chunks(size int) int {
	if size < _BWT_CHUNK_THRESHOLD {
		return 1
	}

	return 8
}

// BWT transforms one block at a time. The suffix array work buffer is
// reused across blocks.
type BWT struct {
	sa []int
}

// NewBWT creates a transform instance.
func NewBWT() *BWT {
	return &BWT{}
}

// Forward transforms src into dst (same length) and returns one L-F
// power per chunk.
func (this *BWT) Forward(src, dst []byte) ([]uint32, error) {
	n := len(src)

	if n == 0 {
		return nil, errors.New("empty BWT input")
	}

	if n > MaxBWTBlockSize {
		return nil, fmt.Errorf("BWT block size %d exceeds %d", n, MaxBWTBlockSize)
	}

	if n == 1 {
		dst[0] = src[0]
		return []uint32{1}, nil
	}

	if len(this.sa) < n {
		this.sa = make([]int, n)
	}

	sa := this.sa[0:n]
	SuffixArray(src, sa)

	chunks := Chunks(n)
	ckSize := (n + chunks - 1) / chunks
	count := (n + ckSize - 1) / ckSize
	powers := make([]uint32, count)

	// Row r of the matrix holds suffix sa[r-1]; the sentinel row 0 is
	// implicit. Power k is the row of the suffix starting chunk k.
	for j, s := range sa {
		if s%ckSize == 0 && s/ckSize < count {
			powers[s/ckSize] = uint32(j + 1)
		}
	}

	pidx := int(powers[0]) // row of the full suffix, last column $

	dst[0] = src[n-1]

	for j, s := range sa {
		if s == 0 {
			continue
		}

		if r := j + 1; r < pidx {
			dst[r] = src[s-1]
		} else {
			dst[r-1] = src[s-1]
		}
	}

	return powers, nil
}

// Inverse rebuilds the original block from the transformed bytes and
// the L-F powers.
func (this *BWT) Inverse(src []byte, powers []uint32, dst []byte) error {
	n := len(src)

	if n == 0 || len(dst) < n {
		return errors.New("invalid BWT buffer sizes")
	}

	if len(powers) == 0 || len(powers) > n {
		return fmt.Errorf("invalid L-F power count %d", len(powers))
	}

	if n == 1 {
		dst[0] = src[0]
		return nil
	}

	pidx := int(powers[0])

	if pidx < 1 || pidx > n {
		return fmt.Errorf("corrupted BWT primary index %d", pidx)
	}

	// Bucket starts over the first column: row 1+less[c] is the first
	// row whose suffix begins with c.
	var bucket [256]int

	for _, c := range src {
		bucket[c]++
	}

	sum := 1

	for c := 0; c < 256; c++ {
		tmp := bucket[c]
		bucket[c] = sum
		sum += tmp
	}

	// data[row of suffix t] packs the row of suffix t+1 with T[t].
	// Source rows are scanned in increasing order so that equal
	// symbols keep their rank order (the L-F property).
	data := make([]int64, n+1)

	for r := 0; r <= n; r++ {
		if r == pidx {
			continue
		}

		i := r

		if r > pidx {
			i = r - 1
		}

		c := src[i]
		data[bucket[c]] = int64(r)<<8 | int64(c)
		bucket[c]++
	}

	count := len(powers)
	ckSize := (n + count - 1) / count

	for k, p := range powers {
		q := int(p)
		t := k * ckSize
		end := t + ckSize

		if end > n {
			end = n
		}

		for ; t < end; t++ {
			if q < 1 || q > n {
				return fmt.Errorf("corrupted L-F power walk at row %d", q)
			}

			v := data[q]
			dst[t] = byte(v)
			q = int(v >> 8)
		}
	}

	return nil
}
