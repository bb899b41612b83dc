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

// Package pileup implements the per-group and multi-group pileup
// aggregators, allele inference, and the per-SNV pileup procedure that
// ties the alignment session, read resolver and aggregators together.
package pileup

import (
	"github.com/grailbio/cellsnp/baseenum"
	"github.com/grailbio/cellsnp/internal/groupindex"
	"github.com/grailbio/cellsnp/internal/numerics"
)

// Plp is the per-sample-group pileup aggregator: base counts, quality
// lists, and (when UMIs are in use) the set of UMIs already counted at
// the current SNV.
type Plp struct {
	BaseCounts    [baseenum.NEnum]uint32
	QualityLists  [baseenum.NEnum][]byte
	QualityMatrix [baseenum.NEnum][4]float64
	UMISeen       *groupindex.Index // nil when UMIs are not in use

	// Derived, filled by Mplp.Stat.
	TC, AD, DP, OTH uint32
	GL              []float64
	NGL             int
}

// NewPlp returns a Plp ready for reuse across every SNV in a worker's
// slice. expectUMIsPerSNV pre-sizes the UMI index per the known UMI-per-SNV
// expectation; pass 0 if UMIs are not in use.
func NewPlp(useUMI bool, expectUMIsPerSNV int) *Plp {
	p := &Plp{}
	if useUMI {
		p.UMISeen = groupindex.New(expectUMIsPerSNV)
	}
	return p
}

// Reset clears a Plp's dynamic contents between SNVs, per spec.md 4.3's
// reset contract.
func (p *Plp) Reset() {
	for i := range p.BaseCounts {
		p.BaseCounts[i] = 0
		p.QualityLists[i] = p.QualityLists[i][:0]
		p.QualityMatrix[i] = [4]float64{}
	}
	if p.UMISeen != nil {
		p.UMISeen.Reset()
	}
	p.TC, p.AD, p.DP, p.OTH = 0, 0, 0, 0
	p.GL = p.GL[:0]
	p.NGL = 0
}

// observe records one resolved base at baseIdx with the given quality,
// applying UMI dedup semantics when this Plp tracks UMIs (UMISeen is
// non-nil; an empty umi is then deduped like any other). It reports whether
// the observation was actually counted (false for a UMI already seen).
func (p *Plp) observe(baseIdx, quality byte, umi string, arenaCopy func(string) string) bool {
	if p.UMISeen != nil {
		if p.UMISeen.Seen(umi) {
			return false
		}
		p.UMISeen.Insert(arenaCopy(umi))
	}
	p.BaseCounts[baseIdx]++
	p.QualityLists[baseIdx] = append(p.QualityLists[baseIdx], quality)
	return true
}

// finalize computes this group's derived AD/DP/OTH/TC from refIdx/altIdx
// and, when genotyping, its genotype-likelihood vector.
func (p *Plp) finalize(refIdx, altIdx int, genotype, doubleGL bool) error {
	var tc uint32
	for _, c := range p.BaseCounts {
		tc += c
	}
	p.TC = tc
	p.AD = p.BaseCounts[altIdx]
	p.DP = p.BaseCounts[refIdx] + p.BaseCounts[altIdx]
	p.OTH = tc - p.DP
	if !genotype {
		return nil
	}
	for i, quals := range p.QualityLists {
		row := &p.QualityMatrix[i]
		*row = [4]float64{}
		var v [4]float64
		for _, q := range quals {
			numerics.GetQualVector(q, byte(i), numerics.DefaultMaxQual, numerics.DefaultMinProb, &v)
			for j := range row {
				row[j] += v[j]
			}
		}
	}
	ngl, err := numerics.QualMatrixToGL(&p.QualityMatrix, refIdx, altIdx, doubleGL, &p.GL)
	if err != nil {
		return err
	}
	p.NGL = ngl
	return nil
}
