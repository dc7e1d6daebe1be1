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
	"fmt"

	bwtc "github.com/juhak/bwtc"
	"github.com/juhak/bwtc/bitstream"
)

// WaveletEncoder codes the context sections of one BWT block with a
// wavelet tree per section and the binary range coder. The three
// probability models are reset at every section boundary.
type WaveletEncoder struct {
	main    bwtc.Predictor
	integer bwtc.Predictor
	gap     bwtc.Predictor
}

// NewWaveletEncoder creates an encoder using the probability model
// named by the encoding id.
func NewWaveletEncoder(model byte) (*WaveletEncoder, error) {
	main, err := NewPredictor(model)

	if err != nil {
		return nil, err
	}

	return &WaveletEncoder{
		main:    main,
		integer: NewIntegerModel(),
		gap:     NewGapModel(),
	}, nil
}

func (this *WaveletEncoder) endContextBlock() {
	this.main.Reset()
	this.integer.Reset()
	this.gap.Reset()
}

// EncodeSections writes, for each section, the packed root size, the
// tree shape padded to a byte boundary and the arithmetic payload.
// Sections partition data; the stream must be byte aligned on entry.
func (this *WaveletEncoder) EncodeSections(out *bitstream.OutputBitStream, data []byte, sections []uint64) error {
	beg := uint64(0)

	for _, length := range sections {
		if length == 0 {
			continue
		}

		if beg+length > uint64(len(data)) {
			return fmt.Errorf("section lengths exceed block size")
		}

		wavelet := NewWaveletTree(data[beg : beg+length])
		writePackedInt(out, uint64(wavelet.BitsInRoot()))
		wavelet.WriteShape(out)
		out.AlignToByte()

		if wavelet.AlphabetSize() > 1 {
			enc := NewBitEncoder(out)
			wavelet.EncodeVectors(enc, this.main, this.gap, this.integer)
			enc.Finish()
		}

		beg += length
		this.endContextBlock()
	}

	return nil
}

// WaveletDecoder is the matching decoder.
type WaveletDecoder struct {
	main    bwtc.Predictor
	integer bwtc.Predictor
	gap     bwtc.Predictor
}

// NewWaveletDecoder creates a decoder using the probability model
// named by the encoding id.
func NewWaveletDecoder(model byte) (*WaveletDecoder, error) {
	main, err := NewPredictor(model)

	if err != nil {
		return nil, err
	}

	return &WaveletDecoder{
		main:    main,
		integer: NewIntegerModel(),
		gap:     NewGapModel(),
	}, nil
}

func (this *WaveletDecoder) endContextBlock() {
	this.main.Reset()
	this.integer.Reset()
	this.gap.Reset()
}

// DecodeSections reads the sections back into dst, whose length must
// equal the sum of the section lengths.
func (this *WaveletDecoder) DecodeSections(in *bitstream.InputBitStream, sections []uint64, dst []byte) error {
	beg := uint64(0)

	for _, length := range sections {
		if length == 0 {
			continue
		}

		if beg+length > uint64(len(dst)) {
			return fmt.Errorf("%w: section lengths exceed block size", bwtc.ErrMalformedInput)
		}

		rootSize, err := readPackedInt(in)

		if err != nil {
			return err
		}

		if rootSize == 0 || rootSize > length {
			return fmt.Errorf("%w: wavelet root size %d does not fit section length %d",
				bwtc.ErrMalformedInput, rootSize, length)
		}

		wavelet, err := ReadWaveletShape(in)

		if err != nil {
			return err
		}

		in.AlignToByte()

		if wavelet.AlphabetSize() > 1 {
			dec := NewBitDecoder(in)

			if err := wavelet.DecodeVectors(dec, int(rootSize), this.main, this.gap, this.integer); err != nil {
				return err
			}

			total := uint64(0)

			for _, runLen := range wavelet.RunLengths() {
				total += uint64(runLen)
			}

			if total != length {
				return fmt.Errorf("%w: wavelet runs sum to %d, section is %d",
					bwtc.ErrMalformedInput, total, length)
			}
		} else {
			wavelet.setSingleRun(int(length))
		}

		wavelet.Message(dst[beg : beg+length])
		beg += length
		this.endContextBlock()
	}

	if in.Overflow() {
		return fmt.Errorf("%w: truncated wavelet payload", bwtc.ErrMalformedInput)
	}

	return nil
}

// writePackedInt writes a base-128 integer, low byte first, to a byte
// aligned stream.
func writePackedInt(out *bitstream.OutputBitStream, v uint64) {
	for v >= 0x80 {
		out.WriteByte(byte(v&0x7F) | 0x80)
		v >>= 7
	}

	out.WriteByte(byte(v))
}

// readPackedInt reads a base-128 integer from a byte aligned stream.
func readPackedInt(in *bitstream.InputBitStream) (uint64, error) {
	v := uint64(0)
	shift := uint(0)

	for {
		b := in.ReadByte()

		if in.Overflow() {
			return 0, fmt.Errorf("%w: truncated packed integer", bwtc.ErrMalformedInput)
		}

		v |= uint64(b&0x7F) << shift

		if b < 0x80 {
			return v, nil
		}

		shift += 7

		if shift > 56 {
			return 0, fmt.Errorf("%w: packed integer too long", bwtc.ErrMalformedInput)
		}
	}
}
