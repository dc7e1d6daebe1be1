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
	"bufio"
	"fmt"
	"io"

	bwtc "github.com/juhak/bwtc"
	"github.com/juhak/bwtc/internal"
)

// Rule is one replacement recorded by a precompressor pass. The
// variable is a plain byte unless Large is set, in which case it is a
// pair of special symbols combined into 16 bits.
type Rule struct {
	Variable uint16
	Large    bool
	begin    int
	end      int
}

// Pass describes the rules one precompressor pass contributed: its
// kind, how many rules and special pairs it added (both consecutive in
// creation order), the escape symbol if the pass freed symbols, and
// the freed symbols.
type Pass struct {
	Kind      byte
	RuleCount int
	PairCount int
	HasEscape bool
	Escape    byte
	Freed     []byte
}

// Grammar accumulates the replacement rules of one precompressor
// block and serializes them bit exactly. The variable set, the special
// set and the untouched data symbols partition the byte alphabet at
// every pass boundary.
type Grammar struct {
	frequencies    [256]uint64 // over right-hand sides
	isSpecial      [256]bool
	isVariable     [256]bool
	specialSymbols []byte
	// one record per allocated special pair: whether the pair is used
	// as a grammar variable, and the symbol it freed otherwise
	specialPairReplacements []pairRecord
	rules                   []Rule
	rightHandSides          []byte
	passes                  []Pass
	updatingRules           bool
	newRules                int
}

type pairRecord struct {
	isVariable bool
	freed      byte
}

// NewGrammar returns an empty grammar.
func NewGrammar() *Grammar {
	return &Grammar{}
}

// NumberOfRules returns the number of recorded rules.
func (this *Grammar) NumberOfRules() int {
	return len(this.rules)
}

// NumberOfSpecialSymbols returns the number of special symbols.
func (this *Grammar) NumberOfSpecialSymbols() int {
	return len(this.specialSymbols)
}

// IsSpecial tells whether the symbol is currently special.
func (this *Grammar) IsSpecial(sym byte) bool {
	return this.isSpecial[sym]
}

// IsVariable tells whether the symbol is currently a grammar variable.
func (this *Grammar) IsVariable(sym byte) bool {
	return this.isVariable[sym]
}

// Frequencies returns the byte frequencies over all right-hand sides.
func (this *Grammar) Frequencies() *[256]uint64 {
	return &this.frequencies
}

// Rule returns the i-th rule.
func (this *Grammar) Rule(i int) Rule {
	return this.rules[i]
}

// RightHandSide returns the replaced bytes of the given rule.
func (this *Grammar) RightHandSide(r Rule) []byte {
	return this.rightHandSides[r.begin:r.end]
}

// Passes returns the recorded pass descriptors.
func (this *Grammar) Passes() []Pass {
	return this.passes
}

// BeginUpdatingRules opens a rule update bracket: variable flags are
// deferred until the bracket closes, so the special and variable sets
// may overlap transiently.
func (this *Grammar) BeginUpdatingRules() {
	this.updatingRules = true
	this.newRules = 0
}

// EndUpdatingRules closes the bracket and promotes the given symbols
// to variables.
func (this *Grammar) EndUpdatingRules(variables []byte) {
	this.updatingRules = false

	for _, v := range variables {
		this.isVariable[v] = true
	}
}

// AddRule records a pair replacement: variable stands for the two
// bytes first and second.
func (this *Grammar) AddRule(variable byte, first, second byte) {
	begin := len(this.rightHandSides)
	this.rightHandSides = append(this.rightHandSides, first, second)
	this.frequencies[first]++
	this.frequencies[second]++
	this.addRule(Rule{Variable: uint16(variable), begin: begin, end: begin + 2})
}

// AddLongRule records a long sequence replacement: variable stands for
// the given bytes.
func (this *Grammar) AddLongRule(variable byte, bytes []byte) {
	begin := len(this.rightHandSides)
	this.rightHandSides = append(this.rightHandSides, bytes...)

	for _, b := range bytes {
		this.frequencies[b]++
	}

	this.addRule(Rule{Variable: uint16(variable), begin: begin, end: begin + len(bytes)})
}

// AddLargeRule records a replacement whose variable is a pair of
// special symbols obtained from AllocateSpecialPair.
func (this *Grammar) AddLargeRule(pair uint16, bytes []byte) {
	begin := len(this.rightHandSides)
	this.rightHandSides = append(this.rightHandSides, bytes...)

	for _, b := range bytes {
		this.frequencies[b]++
	}

	this.addRule(Rule{Variable: pair, Large: true, begin: begin, end: begin + len(bytes)})
}

func (this *Grammar) addRule(r Rule) {
	this.rules = append(this.rules, r)

	if this.updatingRules {
		this.newRules++
	} else if !r.Large {
		this.isVariable[byte(r.Variable)] = true
	}
}

// AddSpecialSymbol frees the given byte for escape style use.
func (this *Grammar) AddSpecialSymbol(special byte) {
	this.specialSymbols = append(this.specialSymbols, special)
	this.isSpecial[special] = true
}

// SpecialSymbolPairsLeft returns how many special pairs are still
// unallocated.
func (this *Grammar) SpecialSymbolPairsLeft() int {
	s := len(this.specialSymbols)
	return s*s - len(this.specialPairReplacements)
}

// SpecialPair returns the ord-th special pair as a 16 bit combined
// variable. Pairs are enumerated so that adding one special symbol
// extends the square of existing pairs along its diagonal.
func (this *Grammar) SpecialPair(ord int) uint16 {
	k := 0

	for (k+1)*(k+1) <= ord {
		k++
	}

	d := ord - k*k
	var first, second byte

	if d < k {
		first = this.specialSymbols[d]
		second = this.specialSymbols[k]
	} else {
		first = this.specialSymbols[k]
		second = this.specialSymbols[d-k]
	}

	return uint16(first)<<8 | uint16(second)
}

// AllocateSpecialPair claims the next special pair for use as a large
// grammar variable.
func (this *Grammar) AllocateSpecialPair() (uint16, error) {
	if this.SpecialSymbolPairsLeft() <= 0 {
		return 0, fmt.Errorf("grammar: no special pairs left")
	}

	ord := len(this.specialPairReplacements)
	this.specialPairReplacements = append(this.specialPairReplacements, pairRecord{isVariable: true})
	return this.SpecialPair(ord), nil
}

// NumberOfSpecialPairs returns how many special pairs are allocated.
func (this *Grammar) NumberOfSpecialPairs() int {
	return len(this.specialPairReplacements)
}

// PairRecordAt reports whether the ord-th special pair is used as a
// grammar variable and, when it is not, the symbol it freed.
func (this *Grammar) PairRecordAt(ord int) (bool, byte) {
	rec := this.specialPairReplacements[ord]
	return rec.isVariable, rec.freed
}

// NumberOfFreedSymbols returns how many symbols were freed through
// special pairs.
func (this *Grammar) NumberOfFreedSymbols() int {
	count := 0

	for _, rec := range this.specialPairReplacements {
		if !rec.isVariable {
			count++
		}
	}

	return count
}

// FreedSymbols lists (special pair, freed symbol) records.
func (this *Grammar) FreedSymbols() []struct {
	Pair  uint16
	Freed byte
} {
	var out []struct {
		Pair  uint16
		Freed byte
	}

	for ord, rec := range this.specialPairReplacements {
		if !rec.isVariable {
			out = append(out, struct {
				Pair  uint16
				Freed byte
			}{this.SpecialPair(ord), rec.freed})
		}
	}

	return out
}

// ExpandAlphabet promotes additional symbols to specials once the
// plain byte budget is exhausted. Every freed symbol is assigned the
// next special pair; a freed symbol that already was a variable turns
// its rules into large rules over that pair. The allocated pairs are
// returned in order.
func (this *Grammar) ExpandAlphabet(freedSymbols, newSpecials []byte) ([]uint16, error) {
	for _, s := range newSpecials {
		this.AddSpecialSymbol(s)
	}

	if this.SpecialSymbolPairsLeft() < len(freedSymbols) {
		return nil, fmt.Errorf("grammar: %d special pairs left, %d needed",
			this.SpecialSymbolPairsLeft(), len(freedSymbols))
	}

	pairs := make([]uint16, 0, len(freedSymbols))

	for _, freed := range freedSymbols {
		ord := len(this.specialPairReplacements)
		wasVariable := this.isVariable[freed]
		this.specialPairReplacements = append(this.specialPairReplacements,
			pairRecord{isVariable: wasVariable, freed: freed})
		pair := this.SpecialPair(ord)
		pairs = append(pairs, pair)

		if wasVariable {
			for i := range this.rules {
				if !this.rules[i].Large && byte(this.rules[i].Variable) == freed {
					this.rules[i].Variable = pair
					this.rules[i].Large = true
				}
			}

			this.isVariable[freed] = false
		}
	}

	return pairs, nil
}

// BeginPass opens a pass descriptor; rules and special pairs added
// until EndPass belong to it.
func (this *Grammar) BeginPass(kind byte) {
	this.passes = append(this.passes, Pass{
		Kind:      kind,
		RuleCount: -len(this.rules),
		PairCount: -len(this.specialPairReplacements),
	})
}

// EndPass closes the current pass descriptor with its escape state and
// freed symbols.
func (this *Grammar) EndPass(hasEscape bool, escape byte, freed []byte) {
	p := &this.passes[len(this.passes)-1]
	p.RuleCount += len(this.rules)
	p.PairCount += len(this.specialPairReplacements)
	p.HasEscape = hasEscape
	p.Escape = escape
	p.Freed = append([]byte(nil), freed...)

	if hasEscape {
		this.AddSpecialSymbol(escape)
	}
}

// Write appends the grammar header to dst and returns the extended
// slice.
func (this *Grammar) Write(dst []byte) []byte {
	dst = internal.PackInt(dst, uint64(len(this.rules)))

	// rule flags, one bit per rule, MSB first
	var b byte
	bits := 0

	for _, r := range this.rules {
		b <<= 1

		if r.Large {
			b |= 1
		}

		if bits++; bits == 8 {
			dst = append(dst, b)
			b, bits = 0, 0
		}
	}

	if bits > 0 {
		dst = append(dst, b<<uint(8-bits))
	}

	for _, r := range this.rules {
		if r.Large {
			dst = append(dst, byte(r.Variable>>8), byte(r.Variable))
		} else {
			dst = append(dst, byte(r.Variable))
		}

		dst = internal.PackInt(dst, uint64(r.end-r.begin))
	}

	dst = append(dst, this.rightHandSides...)
	dst = internal.PackInt(dst, uint64(len(this.specialSymbols)))
	dst = append(dst, this.specialSymbols...)
	dst = internal.PackInt(dst, uint64(len(this.specialPairReplacements)))

	for _, rec := range this.specialPairReplacements {
		if rec.isVariable {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0, rec.freed)
		}
	}

	dst = internal.PackInt(dst, uint64(len(this.passes)))

	for _, p := range this.passes {
		dst = append(dst, p.Kind)
		dst = internal.PackInt(dst, uint64(p.RuleCount))
		dst = internal.PackInt(dst, uint64(p.PairCount))

		if p.HasEscape {
			dst = append(dst, 1, p.Escape)
		} else {
			dst = append(dst, 0)
		}

		dst = internal.PackInt(dst, uint64(len(p.Freed)))
		dst = append(dst, p.Freed...)
	}

	return dst
}

// readPacked reads one base-128 integer from the stream.
func readPacked(r *bufio.Reader) (uint64, error) {
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

// ReadGrammar parses a grammar header from the stream. The grammar is
// rebuilt from scratch; the layout mirrors Write.
func ReadGrammar(r *bufio.Reader) (*Grammar, error) {
	this := NewGrammar()

	ruleCount, err := readPacked(r)

	if err != nil {
		return nil, err
	}

	if ruleCount > 65536 {
		return nil, fmt.Errorf("%w: bad grammar rule count %d", bwtc.ErrMalformedInput, ruleCount)
	}

	flags := make([]byte, (int(ruleCount)+7)/8)

	if _, err := io.ReadFull(r, flags); err != nil {
		return nil, fmt.Errorf("%w: truncated grammar flags", bwtc.ErrMalformedInput)
	}

	lengths := make([]int, ruleCount)
	heapLen := 0

	for i := 0; i < int(ruleCount); i++ {
		large := flags[i/8]&(0x80>>uint(i%8)) != 0
		rule := Rule{Large: large}

		if large {
			hi, err1 := r.ReadByte()
			lo, err2 := r.ReadByte()

			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("%w: truncated grammar rule", bwtc.ErrMalformedInput)
			}

			rule.Variable = uint16(hi)<<8 | uint16(lo)
		} else {
			v, err := r.ReadByte()

			if err != nil {
				return nil, fmt.Errorf("%w: truncated grammar rule", bwtc.ErrMalformedInput)
			}

			rule.Variable = uint16(v)
		}

		length, err := readPacked(r)

		if err != nil {
			return nil, err
		}

		if length == 0 || length > (1<<24) {
			return nil, fmt.Errorf("%w: bad grammar rule length %d", bwtc.ErrMalformedInput, length)
		}

		lengths[i] = int(length)
		heapLen += int(length)
		this.rules = append(this.rules, rule)
	}

	this.rightHandSides = make([]byte, heapLen)

	if _, err := io.ReadFull(r, this.rightHandSides); err != nil {
		return nil, fmt.Errorf("%w: truncated grammar right-hand sides", bwtc.ErrMalformedInput)
	}

	begin := 0

	for i := range this.rules {
		this.rules[i].begin = begin
		begin += lengths[i]
		this.rules[i].end = begin

		if !this.rules[i].Large {
			this.isVariable[byte(this.rules[i].Variable)] = true
		}
	}

	for _, b := range this.rightHandSides {
		this.frequencies[b]++
	}

	specialCount, err := readPacked(r)

	if err != nil {
		return nil, err
	}

	if specialCount > 256 {
		return nil, fmt.Errorf("%w: bad grammar special count %d", bwtc.ErrMalformedInput, specialCount)
	}

	specials := make([]byte, specialCount)

	if _, err := io.ReadFull(r, specials); err != nil {
		return nil, fmt.Errorf("%w: truncated grammar specials", bwtc.ErrMalformedInput)
	}

	for _, s := range specials {
		this.AddSpecialSymbol(s)
	}

	pairCount, err := readPacked(r)

	if err != nil {
		return nil, err
	}

	if pairCount > specialCount*specialCount {
		return nil, fmt.Errorf("%w: %d special pairs for %d specials",
			bwtc.ErrMalformedInput, pairCount, specialCount)
	}

	for i := 0; i < int(pairCount); i++ {
		flag, err := r.ReadByte()

		if err != nil {
			return nil, fmt.Errorf("%w: truncated grammar pair records", bwtc.ErrMalformedInput)
		}

		switch flag {
		case 1:
			this.specialPairReplacements = append(this.specialPairReplacements,
				pairRecord{isVariable: true})
		case 0:
			freed, err := r.ReadByte()

			if err != nil {
				return nil, fmt.Errorf("%w: truncated grammar pair records", bwtc.ErrMalformedInput)
			}

			this.specialPairReplacements = append(this.specialPairReplacements,
				pairRecord{freed: freed})
		default:
			return nil, fmt.Errorf("%w: bad grammar pair record", bwtc.ErrMalformedInput)
		}
	}

	passCount, err := readPacked(r)

	if err != nil {
		return nil, err
	}

	if passCount > 256 {
		return nil, fmt.Errorf("%w: bad grammar pass count %d", bwtc.ErrMalformedInput, passCount)
	}

	total := 0
	pairTotal := 0

	for i := 0; i < int(passCount); i++ {
		kind, err := r.ReadByte()

		if err != nil {
			return nil, fmt.Errorf("%w: truncated grammar pass", bwtc.ErrMalformedInput)
		}

		p := Pass{Kind: kind}
		count, err := readPacked(r)

		if err != nil {
			return nil, err
		}

		if count > ruleCount {
			return nil, fmt.Errorf("%w: bad grammar pass rule count", bwtc.ErrMalformedInput)
		}

		p.RuleCount = int(count)
		total += p.RuleCount

		pairs, err := readPacked(r)

		if err != nil {
			return nil, err
		}

		if pairs > pairCount {
			return nil, fmt.Errorf("%w: bad grammar pass pair count", bwtc.ErrMalformedInput)
		}

		p.PairCount = int(pairs)
		pairTotal += p.PairCount
		marker, err := r.ReadByte()

		if err != nil {
			return nil, fmt.Errorf("%w: truncated grammar pass", bwtc.ErrMalformedInput)
		}

		switch marker {
		case 0:
		case 1:
			esc, err := r.ReadByte()

			if err != nil {
				return nil, fmt.Errorf("%w: truncated grammar escape", bwtc.ErrMalformedInput)
			}

			p.HasEscape = true
			p.Escape = esc
		default:
			return nil, fmt.Errorf("%w: bad grammar escape marker", bwtc.ErrMalformedInput)
		}

		freedCount, err := readPacked(r)

		if err != nil {
			return nil, err
		}

		if freedCount > 256 {
			return nil, fmt.Errorf("%w: bad grammar freed count", bwtc.ErrMalformedInput)
		}

		p.Freed = make([]byte, freedCount)

		if _, err := io.ReadFull(r, p.Freed); err != nil {
			return nil, fmt.Errorf("%w: truncated grammar freed symbols", bwtc.ErrMalformedInput)
		}

		this.passes = append(this.passes, p)
	}

	if total != int(ruleCount) || pairTotal != int(pairCount) {
		return nil, fmt.Errorf("%w: grammar passes do not cover rule list", bwtc.ErrMalformedInput)
	}

	return this, nil
}
