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

// Package io implements the compressed container: a Writer that runs
// whole blocks through the precompressor, the BWT and the selected
// entropy coder, and a Reader that inverts every stage.
//
// File layout:
//
//	GlobalHeader       pipeline length, pipeline chars, encoding byte
//	PrecompressorBlock PackedInt original size (0 terminates the file),
//	                   grammar header, PackedInt slice count,
//	                   PackedInt slice lengths, the coded slices
//	BWTBlock           48 bit big endian payload length, section count
//	                   byte (0 stands for 256), PackedInt section
//	                   lengths, entropy payload, L-F trailer
//	LFTrailer          one byte (count-1), then count 31 bit powers
//	                   packed MSB first, zero padded to a byte
package io

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	bwtc "github.com/juhak/bwtc"
	"github.com/juhak/bwtc/bitstream"
	"github.com/juhak/bwtc/entropy"
	"github.com/juhak/bwtc/internal"
	"github.com/juhak/bwtc/precomp"
	"github.com/juhak/bwtc/transform"
)

// sectionCoder is the closed set of entropy coder variants.
type sectionCoder interface {
	EncodeSections(out *bitstream.OutputBitStream, data []byte, sections []uint64) error
}

type sectionDecoder interface {
	DecodeSections(in *bitstream.InputBitStream, sections []uint64, dst []byte) error
}

func newSectionCoder(encoding byte) (sectionCoder, error) {
	if encoding == 'h' {
		return entropy.NewHuffmanEncoder(), nil
	}

	return entropy.NewWaveletEncoder(encoding)
}

func newSectionDecoder(encoding byte) (sectionDecoder, error) {
	if encoding == 'h' {
		return entropy.NewHuffmanDecoder(), nil
	}

	return entropy.NewWaveletDecoder(encoding)
}

// Writer compresses whole blocks as they fill up. It implements
// io.WriteCloser; Close flushes the last partial block and the stream
// terminator.
type Writer struct {
	dst     *bufio.Writer
	cfg     bwtc.Config
	pre     *precomp.Precompressor
	bwt     *transform.BWT
	coder   sectionCoder
	buf     []byte
	started bool
	closed  bool
}

// NewWriter creates a compressing writer with the given settings.
func NewWriter(w io.Writer, cfg bwtc.Config) (*Writer, error) {
	if !bwtc.ValidEncoding(cfg.Encoding) {
		return nil, fmt.Errorf("%w: encoding '%c'", bwtc.ErrInvalidOption, cfg.Encoding)
	}

	if cfg.BlockSize <= 0 || cfg.BlockSize > bwtc.MaxBlockSize {
		return nil, fmt.Errorf("%w: block size %d", bwtc.ErrInvalidOption, cfg.BlockSize)
	}

	if len(cfg.Pipeline) > 255 {
		return nil, fmt.Errorf("%w: pipeline too long", bwtc.ErrInvalidOption)
	}

	pre, err := precomp.NewPrecompressor(cfg)

	if err != nil {
		return nil, err
	}

	coder, err := newSectionCoder(cfg.Encoding)

	if err != nil {
		return nil, err
	}

	return &Writer{
		dst:   bufio.NewWriter(w),
		cfg:   cfg,
		pre:   pre,
		bwt:   transform.NewBWT(),
		coder: coder,
		buf:   make([]byte, 0, cfg.BlockSize),
	}, nil
}

func (this *Writer) writeGlobalHeader() error {
	if this.started {
		return nil
	}

	this.started = true

	if err := this.dst.WriteByte(byte(len(this.cfg.Pipeline))); err != nil {
		return err
	}

	if _, err := this.dst.WriteString(this.cfg.Pipeline); err != nil {
		return err
	}

	return this.dst.WriteByte(this.cfg.Encoding)
}

// Write buffers input and compresses every full block.
func (this *Writer) Write(p []byte) (int, error) {
	if this.closed {
		return 0, errors.New("write on closed stream")
	}

	written := len(p)

	for len(p) > 0 {
		take := this.cfg.BlockSize - len(this.buf)

		if take > len(p) {
			take = len(p)
		}

		this.buf = append(this.buf, p[:take]...)
		p = p[take:]

		if len(this.buf) == this.cfg.BlockSize {
			if err := this.flushBlock(); err != nil {
				return written - len(p), err
			}
		}
	}

	return written, nil
}

// Close flushes the last partial block and terminates the stream.
func (this *Writer) Close() error {
	if this.closed {
		return nil
	}

	this.closed = true

	if len(this.buf) > 0 {
		if err := this.flushBlock(); err != nil {
			return err
		}
	}

	if err := this.writeGlobalHeader(); err != nil {
		return err
	}

	// PackedInt(0): the block stream terminator
	if err := this.dst.WriteByte(0); err != nil {
		return err
	}

	return this.dst.Flush()
}

func (this *Writer) flushBlock() error {
	if err := this.writeGlobalHeader(); err != nil {
		return err
	}

	block, err := this.pre.Process(this.buf)

	if err != nil {
		return err
	}

	this.buf = this.buf[:0]

	header := internal.PackInt(nil, block.OriginalSize)
	header = block.Grammar.Write(header)
	header = internal.PackInt(header, uint64(len(block.Slices)))

	for _, slice := range block.Slices {
		header = internal.PackInt(header, uint64(len(slice.Data)))
	}

	if _, err := this.dst.Write(header); err != nil {
		return err
	}

	for i := range block.Slices {
		if err := this.encodeSlice(&block.Slices[i]); err != nil {
			return err
		}
	}

	return nil
}

// sectionLengths groups the per symbol frequencies of the transformed
// block into sections of at least the configured threshold.
func sectionLengths(transformed []byte, threshold int) []uint64 {
	var freqs [256]int
	internal.ComputeHistogram(transformed, freqs[:])

	var sections []uint64
	sum := uint64(0)

	for _, f := range freqs {
		sum += uint64(f)

		if sum >= uint64(threshold) {
			sections = append(sections, sum)
			sum = 0
		}
	}

	if sum != 0 {
		if len(sections) > 0 {
			sections[len(sections)-1] += sum
		} else {
			sections = append(sections, sum)
		}
	}

	return sections
}

func (this *Writer) encodeSlice(slice *precomp.BWTBlock) error {
	transformed := make([]byte, len(slice.Data))
	powers, err := this.bwt.Forward(slice.Data, transformed)

	if err != nil {
		return err
	}

	slice.LFPowers = powers
	sections := sectionLengths(transformed, this.cfg.SectionThreshold)

	out := bitstream.NewOutputBitStream(len(transformed) + 1024)
	count := len(sections)

	if count == 256 {
		count = 0
	}

	out.WriteByte(byte(count))

	for _, s := range sections {
		writePackedIntTo(out, s)
	}

	if err := this.coder.EncodeSections(out, transformed, sections); err != nil {
		return err
	}

	// trailer: count-1, then the powers as 31 bit fields MSB first
	out.WriteByte(byte(len(powers) - 1))

	for _, p := range powers {
		out.WriteBits(uint64(p), 31)
	}

	payload := out.Bytes()

	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(payload)))

	if _, err := this.dst.Write(length[2:8]); err != nil {
		return err
	}

	_, err = this.dst.Write(payload)
	return err
}

func writePackedIntTo(out *bitstream.OutputBitStream, v uint64) {
	for v >= 0x80 {
		out.WriteByte(byte(v&0x7F) | 0x80)
		v >>= 7
	}

	out.WriteByte(byte(v))
}

// Reader decompresses a container stream block by block. It implements
// io.Reader.
type Reader struct {
	src     *bufio.Reader
	cfg     bwtc.Config
	bwt     *transform.BWT
	decoder sectionDecoder
	pending []byte
	started bool
	eof     bool
}

// NewReader creates a decompressing reader. The global header is read
// lazily on first use.
func NewReader(r io.Reader) (*Reader, error) {
	return &Reader{
		src: bufio.NewReader(r),
		bwt: transform.NewBWT(),
	}, nil
}

func (this *Reader) readGlobalHeader() error {
	if this.started {
		return nil
	}

	this.started = true

	pipelineLen, err := this.src.ReadByte()

	if err != nil {
		return fmt.Errorf("%w: missing global header", bwtc.ErrMalformedInput)
	}

	pipeline := make([]byte, pipelineLen)

	if _, err := io.ReadFull(this.src, pipeline); err != nil {
		return fmt.Errorf("%w: truncated global header", bwtc.ErrMalformedInput)
	}

	encoding, err := this.src.ReadByte()

	if err != nil {
		return fmt.Errorf("%w: truncated global header", bwtc.ErrMalformedInput)
	}

	if !bwtc.ValidPipeline(string(pipeline)) || !bwtc.ValidEncoding(encoding) {
		return fmt.Errorf("%w: unknown pipeline or encoding", bwtc.ErrMalformedInput)
	}

	this.cfg.Pipeline = string(pipeline)
	this.cfg.Encoding = encoding
	this.decoder, err = newSectionDecoder(encoding)
	return err
}

// Read returns decompressed bytes, decoding one precompressor block at
// a time.
func (this *Reader) Read(p []byte) (int, error) {
	if err := this.readGlobalHeader(); err != nil {
		return 0, err
	}

	for len(this.pending) == 0 {
		if this.eof {
			return 0, io.EOF
		}

		if err := this.decodeBlock(); err != nil {
			return 0, err
		}
	}

	n := copy(p, this.pending)
	this.pending = this.pending[n:]
	return n, nil
}

func (this *Reader) decodeBlock() error {
	origSize, err := readPackedFrom(this.src)

	if err != nil {
		return err
	}

	if origSize == 0 {
		this.eof = true
		return nil
	}

	if origSize > uint64(bwtc.MaxBlockSize) {
		return fmt.Errorf("%w: block size %d out of range", bwtc.ErrMalformedInput, origSize)
	}

	grammar, err := precomp.ReadGrammar(this.src)

	if err != nil {
		return err
	}

	sliceCount, err := readPackedFrom(this.src)

	if err != nil {
		return err
	}

	if sliceCount == 0 || sliceCount > origSize {
		return fmt.Errorf("%w: slice count %d out of range", bwtc.ErrMalformedInput, sliceCount)
	}

	sliceLens := make([]uint64, sliceCount)
	total := uint64(0)

	for i := range sliceLens {
		if sliceLens[i], err = readPackedFrom(this.src); err != nil {
			return err
		}

		if sliceLens[i] == 0 || sliceLens[i] > uint64(transform.MaxBWTBlockSize) {
			return fmt.Errorf("%w: slice length %d out of range", bwtc.ErrMalformedInput, sliceLens[i])
		}

		total += sliceLens[i]
	}

	data := make([]byte, 0, total)

	for _, n := range sliceLens {
		slice, err := this.decodeSlice(int(n))

		if err != nil {
			return err
		}

		data = append(data, slice...)
	}

	expanded, err := precomp.Postprocess(data, grammar, origSize)

	if err != nil {
		return err
	}

	this.pending = expanded
	return nil
}

func (this *Reader) decodeSlice(n int) ([]byte, error) {
	var lengthBytes [6]byte

	if _, err := io.ReadFull(this.src, lengthBytes[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated block length", bwtc.ErrMalformedInput)
	}

	var length uint64

	for _, b := range lengthBytes {
		length = length<<8 | uint64(b)
	}

	if length < 2 || length > uint64(8*n)+(1<<20) {
		return nil, fmt.Errorf("%w: block length %d out of range", bwtc.ErrMalformedInput, length)
	}

	payload := make([]byte, length)

	if _, err := io.ReadFull(this.src, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated block payload", bwtc.ErrMalformedInput)
	}

	in := bitstream.NewInputBitStream(payload)
	sectionCount := int(in.ReadByte())

	if sectionCount == 0 {
		sectionCount = 256
	}

	sections := make([]uint64, sectionCount)
	total := uint64(0)

	for i := range sections {
		v, err := readPackedBits(in)

		if err != nil {
			return nil, err
		}

		sections[i] = v
		total += v
	}

	if total != uint64(n) {
		return nil, fmt.Errorf("%w: section lengths sum to %d, slice is %d",
			bwtc.ErrMalformedInput, total, n)
	}

	transformed := make([]byte, n)

	if err := this.decoder.DecodeSections(in, sections, transformed); err != nil {
		return nil, err
	}

	powers, err := readTrailer(in, n)

	if err != nil {
		return nil, err
	}

	if in.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d stray bits after block trailer",
			bwtc.ErrMalformedInput, in.Remaining())
	}

	dst := make([]byte, n)

	if err := this.bwt.Inverse(transformed, powers, dst); err != nil {
		return nil, fmt.Errorf("%w: %v", bwtc.ErrMalformedInput, err)
	}

	return dst, nil
}

func readTrailer(in *bitstream.InputBitStream, n int) ([]uint32, error) {
	count := int(in.ReadByte()) + 1
	powers := make([]uint32, count)

	for i := range powers {
		powers[i] = uint32(in.ReadBits(31))
	}

	in.AlignToByte()

	if in.Overflow() {
		return nil, fmt.Errorf("%w: truncated L-F trailer", bwtc.ErrMalformedInput)
	}

	if count > n {
		return nil, fmt.Errorf("%w: %d L-F powers for %d bytes", bwtc.ErrMalformedInput, count, n)
	}

	return powers, nil
}

func readPackedFrom(r *bufio.Reader) (uint64, error) {
	v := uint64(0)
	shift := uint(0)

	for {
		b, err := r.ReadByte()

		if err != nil {
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

func readPackedBits(in *bitstream.InputBitStream) (uint64, error) {
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
