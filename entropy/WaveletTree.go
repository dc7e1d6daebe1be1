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
	"container/heap"
	"fmt"

	bwtc "github.com/juhak/bwtc"
	"github.com/juhak/bwtc/bitstream"
	"github.com/juhak/bwtc/internal"
)

// WaveletTree is a Huffman shaped binary tree over the alphabet of one
// context section. The section is first collapsed into maximal runs;
// every run head is routed through the tree, and each internal node
// carries a bit vector recording whether the passing head descended
// right. The run lengths travel next to the tree as gamma codes. The
// tree shape is serialized as a 256 bit alphabet mask followed, for
// each internal node in BFS order, by one bit per symbol of the
// node's sub-alphabet in ascending symbol order.
type WaveletTree struct {
	root       *wnode
	alphabet   []byte
	codes      [256][]byte
	bfs        []*wnode // internal nodes in BFS order
	runLens    []uint32
	bitsInRoot int // number of runs routed through the root
}

type wnode struct {
	left, right *wnode
	sym         byte
	leaf        bool
	depth       int
	syms        []byte // sub-alphabet, ascending
	vec         bitvec
	cursor      int
}

// bitvec is a growable bit vector.
type bitvec struct {
	words []uint64
	n     int
}

func (this *bitvec) push(bit int) {
	if this.n&63 == 0 {
		this.words = append(this.words, 0)
	}

	if bit != 0 {
		this.words[this.n>>6] |= uint64(1) << uint(this.n&63)
	}

	this.n++
}

func (this *bitvec) get(i int) int {
	return int(this.words[i>>6]>>uint(i&63)) & 1
}

func (this *bitvec) ones() int {
	count := 0

	for i := 0; i < this.n; i++ {
		count += this.get(i)
	}

	return count
}

// Huffman construction: repeatedly merge the two lowest weights. The
// first item popped becomes the right child (code bit 1), matching the
// shape the serialized bit groups describe.
type hItem struct {
	weight uint64
	seq    int
	nd     *wnode
}

type hQueue []hItem

func (h hQueue) Len() int      { return len(h) }
func (h hQueue) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h hQueue) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}

	return h[i].seq < h[j].seq
}
func (h *hQueue) Push(x any) { *h = append(*h, x.(hItem)) }
func (h *hQueue) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// NewWaveletTree collapses the section into runs, builds the tree for
// the run head frequencies and fills the bit vectors by routing the
// heads one by one.
func NewWaveletTree(data []byte) *WaveletTree {
	runseq, runlen := calculateRuns(data)

	var freqs [256]int
	internal.ComputeHistogram(runseq, freqs[:])

	this := &WaveletTree{}
	hq := make(hQueue, 0, 256)
	seq := 0

	for s := 0; s < 256; s++ {
		if freqs[s] == 0 {
			continue
		}

		this.alphabet = append(this.alphabet, byte(s))
		nd := &wnode{sym: byte(s), leaf: true, syms: []byte{byte(s)}}
		hq = append(hq, hItem{weight: uint64(freqs[s]), seq: seq, nd: nd})
		seq++
	}

	heap.Init(&hq)

	if len(this.alphabet) == 1 {
		this.root = &wnode{left: hq[0].nd, syms: this.alphabet}
	} else {
		for len(hq) > 1 {
			x := heap.Pop(&hq).(hItem)
			y := heap.Pop(&hq).(hItem)
			parent := &wnode{
				left:  y.nd,
				right: x.nd,
				syms:  mergeSorted(y.nd.syms, x.nd.syms),
			}
			heap.Push(&hq, hItem{weight: x.weight + y.weight, seq: seq, nd: parent})
			seq++
		}

		this.root = hq[0].nd
	}

	this.index()
	this.runLens = runlen
	this.fill(runseq)
	return this
}

func mergeSorted(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}

	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// index assigns depths, collects the internal nodes in BFS order and
// derives the per symbol code bits.
func (this *WaveletTree) index() {
	this.bfs = this.bfs[:0]
	queue := []*wnode{this.root}
	this.root.depth = 0

	for len(queue) > 0 {
		nd := queue[0]
		queue = queue[1:]

		if nd.leaf {
			continue
		}

		this.bfs = append(this.bfs, nd)

		if nd.left != nil {
			nd.left.depth = nd.depth + 1
			queue = append(queue, nd.left)
		}

		if nd.right != nil {
			nd.right.depth = nd.depth + 1
			queue = append(queue, nd.right)
		}
	}

	for s := range this.codes {
		this.codes[s] = nil
	}

	var walk func(nd *wnode, path []byte)
	walk = func(nd *wnode, path []byte) {
		if nd == nil {
			return
		}

		if nd.leaf {
			code := make([]byte, len(path))
			copy(code, path)
			this.codes[nd.sym] = code
			return
		}

		walk(nd.left, append(path, 0))
		walk(nd.right, append(path, 1))
	}
	walk(this.root, nil)
}

func (this *WaveletTree) fill(heads []byte) {
	this.bitsInRoot = len(heads)

	if len(this.alphabet) < 2 {
		return
	}

	for _, s := range heads {
		nd := this.root

		for !nd.leaf {
			bit := this.codes[s][nd.depth]
			nd.vec.push(int(bit))

			if bit == 0 {
				nd = nd.left
			} else {
				nd = nd.right
			}
		}
	}
}

// BitsInRoot returns the length of the root bit vector, equal to the
// number of runs in the section.
func (this *WaveletTree) BitsInRoot() int {
	return this.bitsInRoot
}

// AlphabetSize returns the number of distinct symbols in the section.
func (this *WaveletTree) AlphabetSize() int {
	return len(this.alphabet)
}

// Code returns the code bits of the given symbol (0 = left, 1 = right),
// or nil when the symbol does not occur.
func (this *WaveletTree) Code(sym byte) []byte {
	return this.codes[sym]
}

// TotalBits returns the sum of the internal node bit vector lengths.
func (this *WaveletTree) TotalBits() int {
	total := 0

	for _, nd := range this.bfs {
		total += nd.vec.n
	}

	return total
}

// WriteShape serializes the alphabet mask and the node groups.
func (this *WaveletTree) WriteShape(out *bitstream.OutputBitStream) {
	var present [256]bool

	for _, s := range this.alphabet {
		present[s] = true
	}

	for s := 0; s < 256; s++ {
		if present[s] {
			out.WriteBit(1)
		} else {
			out.WriteBit(0)
		}
	}

	for _, nd := range this.bfs {
		for _, s := range nd.syms {
			out.WriteBit(int(this.codes[s][nd.depth]))
		}
	}
}

// ReadWaveletShape rebuilds a tree (without bit vectors) from the
// serialized shape.
func ReadWaveletShape(in *bitstream.InputBitStream) (*WaveletTree, error) {
	this := &WaveletTree{}

	for s := 0; s < 256; s++ {
		if in.ReadBit() == 1 {
			this.alphabet = append(this.alphabet, byte(s))
		}
	}

	if len(this.alphabet) == 0 || in.Overflow() {
		return nil, fmt.Errorf("%w: empty wavelet alphabet", bwtc.ErrMalformedInput)
	}

	this.root = &wnode{syms: this.alphabet}
	queue := []*wnode{this.root}

	for len(queue) > 0 {
		nd := queue[0]
		queue = queue[1:]
		var s0, s1 []byte

		for _, s := range nd.syms {
			if in.ReadBit() == 0 {
				s0 = append(s0, s)
			} else {
				s1 = append(s1, s)
			}
		}

		if in.Overflow() {
			return nil, fmt.Errorf("%w: truncated wavelet shape", bwtc.ErrMalformedInput)
		}

		if len(s0) == 0 && len(nd.syms) > 1 {
			return nil, fmt.Errorf("%w: degenerate wavelet node", bwtc.ErrMalformedInput)
		}

		if child := makeShapeNode(s0); child != nil {
			nd.left = child

			if !child.leaf {
				queue = append(queue, child)
			}
		}

		if child := makeShapeNode(s1); child != nil {
			nd.right = child

			if !child.leaf {
				queue = append(queue, child)
			}
		}
	}

	this.index()
	return this, nil
}

func makeShapeNode(syms []byte) *wnode {
	switch len(syms) {
	case 0:
		return nil
	case 1:
		return &wnode{sym: syms[0], leaf: true, syms: syms}
	}

	return &wnode{syms: syms}
}

// EncodeVectors codes the internal bit vectors breadth first, every
// bit under the main model, then the run lengths as gamma codes whose
// unary magnitude uses the gap model and whose binary digits use the
// integer model.
func (this *WaveletTree) EncodeVectors(enc *BitEncoder, main, gap, intm bwtc.Predictor) {
	for _, nd := range this.bfs {
		for i := 0; i < nd.vec.n; i++ {
			b := nd.vec.get(i)
			enc.Encode(b, main.ProbabilityOfOne())
			main.Update(b)
		}
	}

	for _, runLen := range this.runLens {
		k := internal.Log2Floor(uint64(runLen))

		for j := 0; j < k; j++ {
			enc.Encode(1, gap.ProbabilityOfOne())
			gap.Update(1)
		}

		enc.Encode(0, gap.ProbabilityOfOne())
		gap.Update(0)

		for j := k - 1; j >= 0; j-- {
			bit := int(runLen>>uint(j)) & 1
			enc.Encode(bit, intm.ProbabilityOfOne())
			intm.Update(bit)
		}
	}
}

// DecodeVectors fills the internal bit vectors and the run lengths
// from the coded stream. nRuns is the root vector length read from the
// section header.
func (this *WaveletTree) DecodeVectors(dec *BitDecoder, nRuns int, main, gap, intm bwtc.Predictor) error {
	this.bitsInRoot = nRuns

	if len(this.alphabet) < 2 {
		return nil
	}

	lengths := map[*wnode]int{this.root: nRuns}

	for _, nd := range this.bfs {
		n := lengths[nd]

		for nd.vec.n < n {
			b := dec.Decode(main.ProbabilityOfOne())
			main.Update(b)
			nd.vec.push(b)
		}

		ones := nd.vec.ones()

		if nd.left != nil && !nd.left.leaf {
			lengths[nd.left] = n - ones
		}

		if nd.right != nil && !nd.right.leaf {
			lengths[nd.right] = ones
		}
	}

	this.runLens = make([]uint32, nRuns)

	for i := range this.runLens {
		k := 0

		for dec.Decode(gap.ProbabilityOfOne()) == 1 {
			gap.Update(1)
			k++

			if k > 31 {
				return fmt.Errorf("%w: wavelet run length out of range", bwtc.ErrMalformedInput)
			}
		}

		gap.Update(0)
		runLen := uint32(1)

		for j := 0; j < k; j++ {
			bit := dec.Decode(intm.ProbabilityOfOne())
			intm.Update(bit)
			runLen = runLen<<1 | uint32(bit)
		}

		this.runLens[i] = runLen
	}

	if dec.Corrupt() {
		return fmt.Errorf("%w: corrupt arithmetic payload", bwtc.ErrMalformedInput)
	}

	return nil
}

// RunLengths returns the run lengths of the section.
func (this *WaveletTree) RunLengths() []uint32 {
	return this.runLens
}

// setSingleRun covers the one symbol alphabet, whose whole section is
// one implied run.
func (this *WaveletTree) setSingleRun(length int) {
	this.bitsInRoot = 1
	this.runLens = []uint32{uint32(length)}
}

// Message rebuilds the section bytes by routing every run head back
// through the bit vectors and expanding its run.
func (this *WaveletTree) Message(dst []byte) {
	if len(this.alphabet) == 1 {
		for i := range dst {
			dst[i] = this.alphabet[0]
		}

		return
	}

	for _, nd := range this.bfs {
		nd.cursor = 0
	}

	pos := 0

	for _, runLen := range this.runLens {
		nd := this.root

		for !nd.leaf {
			bit := nd.vec.get(nd.cursor)
			nd.cursor++

			if bit == 0 {
				nd = nd.left
			} else {
				nd = nd.right
			}
		}

		for j := uint32(0); j < runLen; j++ {
			dst[pos] = nd.sym
			pos++
		}
	}
}
