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
	"bytes"
	"fmt"
	"os"
	"sort"
)

// Long sequence replacement hashes fixed size windows, buckets the
// window positions by hash, sorts every bucket by content and turns
// groups of equal windows into long grammar rules.
//
// Variables come from genuinely free symbols first. When the
// profitable groups outnumber the free bytes, the tail of the free
// list is promoted to special symbols: pairs of specials become two
// byte variables for further rules, and single pairs can buy back an
// occurring low frequency byte by quoting its literal occurrences, at
// which point that byte serves as one more plain variable.

// seqWindow is the window size of the sequence detector.
const seqWindow = 32

// seqMaxSpecials bounds the promoted special symbols of one pass.
const seqMaxSpecials = 16

// replaceSequences runs one long sequence pass over data and returns
// the rewritten buffer. The pass never uses a one byte escape; all
// freeing happens through special pair quoting.
func replaceSequences(data []byte, grammar *Grammar, verbosity int) []byte {
	grammar.BeginPass('s')

	if len(data) < 2*seqWindow {
		grammar.EndPass(false, 0, nil)
		return data
	}

	windows := len(data) / seqWindow
	tableSize := uint32(windows/2 + 1)

	// bucket the window positions by hash
	hashes := make([]uint32, windows)
	counts := make([]uint32, tableSize)

	for i := 0; i < windows; i++ {
		h := uint32(2166136261)

		for _, b := range data[i*seqWindow : (i+1)*seqWindow] {
			h = (h ^ uint32(b)) * 16777619
		}

		hashes[i] = h % tableSize
		counts[hashes[i]]++
	}

	var freq [256]uint64

	for _, b := range data {
		freq[b]++
	}

	protectGrammarSymbols(&freq, grammar)
	freqs := NewFreqTable(&freq)
	freeSymbols := 0

	for freeSymbols < 256 && freqs.Get(freeSymbols) == 0 {
		freeSymbols++
	}

	// collect the populated buckets, sort each by window content and
	// slice it into groups of identical windows
	type group struct {
		positions []int // window indexes, ascending
	}

	var groups []group

	for bucket := uint32(0); bucket < tableSize; bucket++ {
		if counts[bucket] < 2 {
			continue
		}

		var members []int

		for i := 0; i < windows; i++ {
			if hashes[i] == bucket {
				members = append(members, i)
			}
		}

		sort.Slice(members, func(a, b int) bool {
			wa := data[members[a]*seqWindow : (members[a]+1)*seqWindow]
			wb := data[members[b]*seqWindow : (members[b]+1)*seqWindow]

			if c := bytes.Compare(wa, wb); c != 0 {
				return c < 0
			}

			return members[a] < members[b]
		})

		start := 0

		for i := 1; i <= len(members); i++ {
			if i < len(members) &&
				bytes.Equal(data[members[i]*seqWindow:(members[i]+1)*seqWindow],
					data[members[start]*seqWindow:(members[start]+1)*seqWindow]) {
				continue
			}

			if i-start >= 2 {
				positions := append([]int(nil), members[start:i]...)
				sort.Ints(positions)
				groups = append(groups, group{positions: positions})
			}

			start = i
		}
	}

	// most saved bytes first
	sort.Slice(groups, func(a, b int) bool {
		if len(groups[a].positions) != len(groups[b].positions) {
			return len(groups[a].positions) > len(groups[b].positions)
		}

		return groups[a].positions[0] < groups[b].positions[0]
	})

	profitable := 0

	for _, g := range groups {
		if len(g.positions)*(seqWindow-1) > seqWindow+3 {
			profitable++
		}
	}

	// promote specials only when the byte budget cannot cover the
	// profitable groups: k specials cost k plain variables and buy
	// k*k two byte ones
	promoted := 0

	if profitable > freeSymbols {
		for promoted < freeSymbols && promoted < seqMaxSpecials &&
			(freeSymbols-promoted)+promoted*promoted < profitable {
			promoted++
		}
	}

	plainBudget := freeSymbols - promoted
	pairBudget := promoted * promoted

	if promoted > 0 {
		specials := make([]byte, promoted)

		for i := range specials {
			specials[i] = freqs.Key(freeSymbols - 1 - i)
		}

		if _, err := grammar.ExpandAlphabet(nil, specials); err != nil {
			// fall back to plain variables only
			promoted = 0
			plainBudget = freeSymbols
			pairBudget = 0
		}
	}

	winRepl := make(map[int][]byte)
	var quotePair [256][]byte
	var isQuoted [256]bool
	plainUsed := 0
	pairRules := 0
	freedCount := 0

	for _, g := range groups {
		count := len(g.positions)
		first := g.positions[0] * seqWindow
		window := data[first : first+seqWindow]

		if plainUsed < plainBudget {
			if count*(seqWindow-1) <= seqWindow+3 {
				continue
			}

			variable := freqs.Key(plainUsed)
			plainUsed++
			grammar.AddLongRule(variable, window)

			for _, p := range g.positions {
				winRepl[p] = []byte{variable}
			}

			continue
		}

		if pairBudget == 0 {
			break
		}

		// quoting a rare byte frees it as a plain variable, which
		// beats spending the pair on the rule itself while the byte
		// is cheaper than the extra byte per occurrence
		if sym, symFreq, found := cheapestFreeable(freqs, grammar, &isQuoted, freeSymbols); found &&
			symFreq+1 < uint64(count) &&
			count*(seqWindow-1) > seqWindow+3+int(symFreq) {
			pairs, err := grammar.ExpandAlphabet([]byte{sym}, nil)

			if err == nil {
				pairBudget--
				freedCount++
				isQuoted[sym] = true
				quotePair[sym] = []byte{byte(pairs[0] >> 8), byte(pairs[0])}
				grammar.AddLongRule(sym, window)

				for _, p := range g.positions {
					winRepl[p] = []byte{sym}
				}

				continue
			}
		}

		if count*(seqWindow-2) <= seqWindow+5 {
			continue
		}

		pair, err := grammar.AllocateSpecialPair()

		if err != nil {
			break
		}

		pairBudget--
		pairRules++
		grammar.AddLargeRule(pair, window)

		for _, p := range g.positions {
			winRepl[p] = []byte{byte(pair >> 8), byte(pair)}
		}
	}

	grammar.EndPass(false, 0, nil)

	if verbosity > 1 {
		fmt.Fprintf(os.Stderr, "sequence replacer: %d sequences (%d via special pairs), %d symbols quoted free\n",
			plainUsed+pairRules+freedCount, pairRules, freedCount)
	}

	if len(winRepl) == 0 && freedCount == 0 {
		return data
	}

	out := make([]byte, 0, len(data))
	i := 0

	for i < len(data) {
		if i%seqWindow == 0 && i/seqWindow < windows {
			if repl, okRepl := winRepl[i/seqWindow]; okRepl {
				out = append(out, repl...)
				i += seqWindow
				continue
			}
		}

		if isQuoted[data[i]] {
			out = append(out, quotePair[data[i]]...)
		} else {
			out = append(out, data[i])
		}

		i++
	}

	return out
}

// cheapestFreeable returns the occurring symbol with the lowest
// frequency that no pass owns yet.
func cheapestFreeable(freqs *FreqTable, grammar *Grammar, isQuoted *[256]bool, freeSymbols int) (byte, uint64, bool) {
	for rank := freeSymbols; rank < 256; rank++ {
		sym := freqs.Key(rank)

		if isQuoted[sym] || grammar.IsSpecial(sym) || grammar.IsVariable(sym) {
			continue
		}

		if freqs.Get(rank) >= protectedFreqBoost {
			break
		}

		return sym, freqs.Get(rank), true
	}

	return 0, 0, false
}
