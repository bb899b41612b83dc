// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pileup

import "github.com/grailbio/cellsnp/baseenum"

// InferAllele picks the reference and alternate base indices from a
// 5-wide base-count vector: the reference is the argmax, the alternate
// the second-largest, ties broken towards the lower base index. N
// (index 4) is only a valid candidate when every regular base (A/C/G/T)
// has a zero count.
func InferAllele(bc *[baseenum.NEnum]uint32) (refIdx, altIdx int) {
	limit := baseenum.N
	anyRegular := false
	for i := 0; i < baseenum.N; i++ {
		if bc[i] != 0 {
			anyRegular = true
			break
		}
	}
	if !anyRegular {
		limit = baseenum.NEnum
		allZero := true
		for i := 0; i < limit; i++ {
			if bc[i] != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			// No observations at all: fall back to N/N rather than an
			// arbitrary tie-break among untouched zero counts.
			return int(baseenum.X), int(baseenum.X)
		}
	}
	refIdx, altIdx = 0, 1
	for i := 1; i < limit; i++ {
		if bc[i] > bc[refIdx] {
			altIdx = refIdx
			refIdx = i
		} else if bc[i] > bc[altIdx] && i != refIdx {
			altIdx = i
		}
	}
	return refIdx, altIdx
}
