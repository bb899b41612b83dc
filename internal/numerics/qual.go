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

// Package numerics implements the phred-math used to turn per-base
// quality observations into Phred-scaled genotype likelihoods.
package numerics

import (
	"fmt"
	"math"

	"github.com/grailbio/cellsnp/baseenum"
)

// GetQualVector fills out with the per-allele (A,C,G,T) probability mass
// contributed by a single base observation of the given Phred quality at
// observed base index obsIdx. qual is first capped at maxQual. Every
// entry is floored at minProb so that a single highly-confident
// observation never drives a downstream likelihood to exactly zero.
func GetQualVector(qual byte, obsIdx byte, maxQual byte, minProb float64, out *[4]float64) {
	if qual > maxQual {
		qual = maxQual
	}
	errProb := math.Pow(10, float64(qual)*-0.1)
	okProb := 1 - errProb
	each := errProb / 3
	for i := range out {
		out[i] = each
	}
	if obsIdx < baseenum.N {
		out[obsIdx] = okProb
	} else {
		// N: no allele information: spread evenly instead of favoring one base.
		for i := range out {
			out[i] = 0.25
		}
	}
	for i := range out {
		if out[i] < minProb {
			out[i] = minProb
		}
	}
}

// DefaultMaxQual and DefaultMinProb are the cap/floor spec.md names for
// get_qual_vector (cap=45, floor=0.25).
const (
	DefaultMaxQual = 45
	DefaultMinProb = 0.25
)

// Ploidy dosages for QualMatrixToGL's output vector, in order.
var dosages = [...]float64{0, 1, 2}

// doubleDosages additionally emits the 0.5/1.5 heterozygous-dosage
// likelihoods when doubleGL is requested.
var doubleDosages = [...]float64{0, 0.5, 1, 1.5, 2}

// QualMatrixToGL computes Phred-scaled genotype log-likelihoods for one
// group from its accumulated quality matrix. qmat[i] is the summed
// per-allele probability mass contributed by every read observed as
// base i; refIdx/altIdx select which two columns of qmat represent the
// reference and alternate alleles. The result is written to gl (resized
// as needed) and its length returned in ngl.
//
// Returns an error if refIdx/altIdx are out of range; this is the
// "numeric-failure" case spec.md's error taxonomy names.
func QualMatrixToGL(qmat *[5][4]float64, refIdx, altIdx int, doubleGL bool, gl *[]float64) (ngl int, err error) {
	if refIdx < 0 || refIdx >= 4 || altIdx < 0 || altIdx >= 4 {
		return 0, fmt.Errorf("qualMatrixToGL: ref/alt index out of range (%d, %d)", refIdx, altIdx)
	}
	var refSupport, altSupport float64
	for i := 0; i < 5; i++ {
		refSupport += qmat[i][refIdx]
		altSupport += qmat[i][altIdx]
	}
	total := refSupport + altSupport
	if total == 0 {
		// No informative reads; emit a flat likelihood surface.
		total = 1
	}

	doses := dosages[:]
	if doubleGL {
		doses = doubleDosages[:]
	}
	raw := make([]float64, len(doses))
	maxLL := math.Inf(-1)
	for i, d := range doses {
		p := d / 2
		lik := p*altSupport + (1-p)*refSupport
		ll := math.Log10(lik / total)
		raw[i] = ll
		if ll > maxLL {
			maxLL = ll
		}
	}
	if cap(*gl) < len(doses) {
		*gl = make([]float64, len(doses))
	}
	*gl = (*gl)[:len(doses)]
	for i, ll := range raw {
		(*gl)[i] = -10 * (ll - maxLL)
	}
	return len(doses), nil
}
