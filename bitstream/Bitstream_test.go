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

package bitstream

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitOrder(t *testing.T) {
	out := NewOutputBitStream(0)
	out.WriteBit(1)
	out.WriteBit(0)
	out.WriteBit(1)
	out.AlignToByte()
	require.Equal(t, []byte{0xA0}, out.Bytes())
}

func TestWriteBitsStraddle(t *testing.T) {
	out := NewOutputBitStream(0)
	out.WriteBits(0x3FF, 10)        // 1111111111
	out.WriteBits(0, 6)             // pad to 16 bits
	out.WriteBits(0xDEADBEEF, 32)   // one accumulator straddle later on
	out.WriteBits(0x123456789A, 40) // crosses the 64 bit accumulator
	data := out.Bytes()
	require.Equal(t, []byte{0xFF, 0xC0, 0xDE, 0xAD, 0xBE, 0xEF, 0x12, 0x34, 0x56, 0x78, 0x9A}, data)
}

func TestRoundTripRandomBits(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	out := NewOutputBitStream(0)
	var lengths []uint
	var values []uint64

	for i := 0; i < 2000; i++ {
		length := uint(1 + rnd.Intn(64))
		value := rnd.Uint64()

		if length < 64 {
			value &= (uint64(1) << length) - 1
		}

		lengths = append(lengths, length)
		values = append(values, value)
		out.WriteBits(value, length)
	}

	in := NewInputBitStream(out.Bytes())

	for i, length := range lengths {
		require.Equal(t, values[i], in.ReadBits(length), "field %d", i)
	}

	require.False(t, in.Overflow())
}

func TestAlignAndPeek(t *testing.T) {
	out := NewOutputBitStream(0)
	out.WriteBits(0x5, 3) // 101
	out.AlignToByte()
	out.WriteByte(0xAB)

	in := NewInputBitStream(out.Bytes())
	require.Equal(t, uint64(0x5), in.ReadBits(3))
	in.AlignToByte()
	require.Equal(t, 0xAB>>1, in.PeekBits(7))
	require.Equal(t, byte(0xAB), in.ReadByte())
}

func TestOverflowFlag(t *testing.T) {
	in := NewInputBitStream([]byte{0xFF})
	require.Equal(t, uint64(0xFF), in.ReadBits(8))
	require.False(t, in.Overflow())
	require.Equal(t, 0, in.ReadBit())
	require.True(t, in.Overflow())
}
