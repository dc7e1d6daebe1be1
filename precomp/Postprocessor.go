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

	bwtc "github.com/juhak/bwtc"
)

// Postprocess inverts the precompressor: the recorded passes are
// undone in reverse order. Within one pass, a plain variable expands
// to its right-hand side, the escape symbol quotes the following
// byte, a pair of special symbols either expands as a large variable
// or stands for the symbol it freed. The result must match
// originalSize exactly.
func Postprocess(data []byte, grammar *Grammar, originalSize uint64) ([]byte, error) {
	passes := grammar.Passes()
	ruleBase := grammar.NumberOfRules()
	pairBase := grammar.NumberOfSpecialPairs()

	for p := len(passes) - 1; p >= 0; p-- {
		pass := passes[p]
		ruleBase -= pass.RuleCount
		pairBase -= pass.PairCount

		if ruleBase < 0 || pairBase < 0 {
			return nil, fmt.Errorf("%w: grammar pass ranges out of bounds", bwtc.ErrMalformedInput)
		}

		if pass.RuleCount == 0 && pass.PairCount == 0 && !pass.HasEscape {
			continue
		}

		var rhs [256][]byte
		var isVariable [256]bool
		var isPairLead [256]bool
		pairRHS := make(map[uint16][]byte)
		quoted := make(map[uint16]byte)

		for i := 0; i < pass.RuleCount; i++ {
			rule := grammar.Rule(ruleBase + i)

			if rule.Large {
				hi := byte(rule.Variable >> 8)
				lo := byte(rule.Variable)

				if !grammar.IsSpecial(hi) || !grammar.IsSpecial(lo) {
					return nil, fmt.Errorf("%w: large variable over plain symbols", bwtc.ErrMalformedInput)
				}

				if _, dup := pairRHS[rule.Variable]; dup {
					return nil, fmt.Errorf("%w: duplicate grammar pair variable", bwtc.ErrMalformedInput)
				}

				pairRHS[rule.Variable] = grammar.RightHandSide(rule)
				isPairLead[hi] = true
				isPairLead[lo] = true
				continue
			}

			v := byte(rule.Variable)

			if isVariable[v] {
				return nil, fmt.Errorf("%w: duplicate grammar variable %d", bwtc.ErrMalformedInput, v)
			}

			isVariable[v] = true
			rhs[v] = grammar.RightHandSide(rule)
		}

		for ord := pairBase; ord < pairBase+pass.PairCount; ord++ {
			usedAsVariable, freed := grammar.PairRecordAt(ord)

			if usedAsVariable {
				continue
			}

			pair := grammar.SpecialPair(ord)
			quoted[pair] = freed
			isPairLead[byte(pair>>8)] = true
			isPairLead[byte(pair)] = true
		}

		if pass.HasEscape && isVariable[pass.Escape] {
			return nil, fmt.Errorf("%w: escape symbol collides with a variable", bwtc.ErrMalformedInput)
		}

		out := make([]byte, 0, len(data)+len(data)/2)

		for i := 0; i < len(data); i++ {
			b := data[i]

			if pass.HasEscape && b == pass.Escape {
				if i+1 >= len(data) {
					return nil, fmt.Errorf("%w: dangling escape symbol", bwtc.ErrMalformedInput)
				}

				out = append(out, data[i+1])
				i++
				continue
			}

			if isPairLead[b] {
				if i+1 >= len(data) {
					return nil, fmt.Errorf("%w: dangling special symbol", bwtc.ErrMalformedInput)
				}

				pair := uint16(b)<<8 | uint16(data[i+1])
				i++

				if expansion, okPair := pairRHS[pair]; okPair {
					out = append(out, expansion...)
					continue
				}

				if freed, okQuote := quoted[pair]; okQuote {
					out = append(out, freed)
					continue
				}

				return nil, fmt.Errorf("%w: unknown special pair %04x", bwtc.ErrMalformedInput, pair)
			}

			if isVariable[b] {
				out = append(out, rhs[b]...)
				continue
			}

			out = append(out, b)
		}

		data = out

		if uint64(len(data)) > originalSize {
			return nil, fmt.Errorf("%w: expansion exceeds original size", bwtc.ErrMalformedInput)
		}
	}

	if uint64(len(data)) != originalSize {
		return nil, fmt.Errorf("%w: expanded to %d bytes, expected %d",
			bwtc.ErrMalformedInput, len(data), originalSize)
	}

	return data, nil
}
