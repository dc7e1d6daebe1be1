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
	"fmt"
	"os"
	"sort"
)

// Pair replacement frees low frequency symbols and substitutes them
// for the most frequent byte pairs. Replacing pair P with symbol x
// costs the 3 header bytes of the rule plus one escape per literal
// occurrence of x, so a pair is only profitable while
//
//	f(x) + 3 < f(P)                                 (p1)
//
// and freeing symbols beyond the genuinely unused ones must beat the
// total escape penalty of the escape byte itself
//
//	sum(f(P_k) - f(x_k) - 3) > f(escape)            (p2)
type pairFreq struct {
	pair uint16
	freq uint32
}

func splitPair(p uint16) (byte, byte) {
	return byte(p >> 8), byte(p)
}

// findReplaceablePairs greedily accepts candidate pairs in descending
// frequency order. No accepted pair shares its second byte with
// another accepted pair's first byte, so substitutions never chain
// (a greedy stand-in for the underlying max-cut problem).
func findReplaceablePairs(candidates []pairFreq, freqs *FreqTable) []pairFreq {
	var accepted []pairFreq
	currentSymbol := 0

	for _, pf := range candidates {
		if len(accepted) >= 254 || pf.freq == 0 {
			break
		}

		fst, snd := splitPair(pf.pair)

		if fst == snd {
			continue
		}

		if !freqs.Decrease(fst, uint64(pf.freq)) {
			continue
		}

		if !freqs.Decrease(snd, uint64(pf.freq)) {
			freqs.Increase(fst, uint64(pf.freq))
			continue
		}

		// Condition (p1): no further pair can be profitable
		if freqs.Get(currentSymbol)+3 >= uint64(pf.freq) {
			freqs.Increase(fst, uint64(pf.freq))
			freqs.Increase(snd, uint64(pf.freq))
			break
		}

		valid := true

		for _, a := range accepted {
			aFst, aSnd := splitPair(a.pair)

			if aFst == snd || aSnd == fst {
				valid = false
				freqs.Increase(fst, uint64(pf.freq))
				freqs.Increase(snd, uint64(pf.freq))
				break
			}
		}

		if valid {
			accepted = append(accepted, pf)
			currentSymbol++
		}
	}

	return accepted
}

// pairEscapeIndex returns the rank of the escape symbol, or
// freeSymbols when freeing more symbols is not profitable. Candidates
// found unprofitable under (p2) have their frequency effects rolled
// back.
func pairEscapeIndex(freqs *FreqTable, pairs []pairFreq, freeSymbols int) int {
	if len(pairs) <= freeSymbols {
		return freeSymbols
	}

	utility := int64(0)
	i := freeSymbols

	for ; i < len(pairs); i++ {
		utility += int64(pairs[i].freq) - int64(freqs.Get(i)) - 3
	}

	for utility <= int64(freqs.Get(i)) && i > freeSymbols {
		i--
		fst, snd := splitPair(pairs[i].pair)
		freqs.Increase(fst, uint64(pairs[i].freq))
		freqs.Increase(snd, uint64(pairs[i].freq))
		utility -= int64(pairs[i].freq) - int64(freqs.Get(i)) - 3
	}

	return i
}

// replacePairs runs one pair replacement pass over data and returns
// the rewritten buffer. Accepted pairs become grammar rules; freed
// symbols and the escape byte are recorded in the pass descriptor.
func replacePairs(data []byte, grammar *Grammar, escaping bool, verbosity int) []byte {
	var freq [256]uint64
	pairCounts := make([]uint32, 65536)
	index := uint16(data[0])
	freq[index]++

	for _, b := range data[1:] {
		freq[b]++
		index = index<<8 | uint16(b)
		pairCounts[index]++
	}

	protectGrammarSymbols(&freq, grammar)
	candidates := make([]pairFreq, 0, 65536)

	for p, c := range pairCounts {
		if c > 0 {
			candidates = append(candidates, pairFreq{pair: uint16(p), freq: c})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq > candidates[j].freq
		}

		return candidates[i].pair < candidates[j].pair
	})

	freqs := NewFreqTable(&freq)
	freeSymbols := 0

	for freeSymbols < 256 && freqs.Get(freeSymbols) == 0 {
		freeSymbols++
	}

	accepted := findReplaceablePairs(candidates, freqs)
	escapeIndex := freeSymbols

	if escaping && len(accepted) > freeSymbols {
		escapeIndex = pairEscapeIndex(freqs, accepted, freeSymbols)
	}

	replaceCount := escapeIndex
	hasEscape := escapeIndex > freeSymbols

	if !hasEscape {
		replaceCount = min(freeSymbols, len(accepted))
	}

	var escape byte
	var freed []byte
	var isFreed [256]bool

	if hasEscape {
		escape = freqs.Key(escapeIndex)

		for i := freeSymbols; i <= escapeIndex; i++ {
			freed = append(freed, freqs.Key(i))
			isFreed[freqs.Key(i)] = true
		}
	}

	// replacement table over pairs: -1 no-op (the first byte may still
	// need escaping), else the replacement symbol
	repl := make([]int32, 65536)

	for i := range repl {
		repl[i] = -1
	}

	grammar.BeginPass('p')

	for k := 0; k < replaceCount; k++ {
		fst, snd := splitPair(accepted[k].pair)
		variable := freqs.Key(k)
		grammar.AddRule(variable, fst, snd)
		repl[accepted[k].pair] = int32(variable)
	}

	grammar.EndPass(hasEscape, escape, freed)

	if verbosity > 1 {
		fmt.Fprintf(os.Stderr, "pair replacer: %d pairs, %d symbols freed\n",
			replaceCount, len(freed))
	}

	out := make([]byte, 0, len(data)+3)
	i := 0

	for i < len(data) {
		if i+1 < len(data) {
			if v := repl[uint16(data[i])<<8|uint16(data[i+1])]; v >= 0 {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}

		if isFreed[data[i]] {
			out = append(out, escape)
		}

		out = append(out, data[i])
		i++
	}

	return out
}
