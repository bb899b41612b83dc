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

package worker

import (
	"fmt"
	"io"

	"github.com/grailbio/cellsnp/baseenum"
	"github.com/grailbio/cellsnp/pileup"
)

// writeMatrixLine emits one SNV's worth of sparse column entries for a
// single matrix (AD, DP, or OTH), followed by the empty-line SNV
// delimiter.
func writeMatrixLine(w io.Writer, plps []*pileup.Plp, groupNames []string, field func(*pileup.Plp) uint32) error {
	for col, p := range plps {
		v := field(p)
		if v == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%d\t%d\n", col+1, v); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// writeVCFLine emits the base-shard line for row, and when cells is
// non-nil, the matching cells-shard line with per-group genotype
// fields.
func writeVCFLine(base, cells io.Writer, row pileup.Row, m *pileup.Mplp, groupNames []string, genotype, doubleGL bool) error {
	ref := baseenum.EnumToASCIITable[row.RefIdx]
	alt := baseenum.EnumToASCIITable[row.AltIdx]
	_, err := fmt.Fprintf(base, "%s\t%d\t.\t%c\t%c\t.\tPASS\tAD=%d;DP=%d;OTH=%d\n",
		row.SNV.Chrom, row.SNV.Pos+1, ref, alt, row.AD, row.DP, row.OTH)
	if err != nil {
		return err
	}
	if cells == nil {
		return nil
	}
	if _, err := fmt.Fprintf(cells, "%s\t%d\t.\t%c\t%c\t.\tPASS\tAD=%d;DP=%d;OTH=%d\tGT:AD:DP:OTH:PL:ALL",
		row.SNV.Chrom, row.SNV.Pos+1, ref, alt, row.AD, row.DP, row.OTH); err != nil {
		return err
	}
	for _, p := range m.Plps {
		gt := genotypeCall(p, doubleGL)
		pl := joinFloatsAsInts(p.GL)
		all := fmt.Sprintf("%d,%d,%d,%d,%d",
			p.BaseCounts[baseenum.A], p.BaseCounts[baseenum.C], p.BaseCounts[baseenum.G], p.BaseCounts[baseenum.T], p.BaseCounts[baseenum.X])
		if _, err := fmt.Fprintf(cells, "\t%s:%d:%d:%d:%s:%s", gt, p.AD, p.DP, p.OTH, pl, all); err != nil {
			return err
		}
	}
	_, err = io.WriteString(cells, "\n")
	return err
}

// genotypeCall renders a best-hypothesis GT string from a group's
// genotype-likelihood vector: the index of the lowest PL (PL=0 marks the
// best hypothesis, ties broken towards the lower dosage).
func genotypeCall(p *pileup.Plp, doubleGL bool) string {
	if len(p.GL) == 0 {
		return "./."
	}
	best := 0
	for i, v := range p.GL {
		if v < p.GL[best] {
			best = i
		}
	}
	calls := []string{"0/0", "0/1", "1/1"}
	if doubleGL && len(p.GL) == 5 {
		calls = []string{"0/0", "0/1", "0/1", "0/1", "1/1"}
	}
	if best < len(calls) {
		return calls[best]
	}
	return "./."
}

func joinFloatsAsInts(gl []float64) string {
	if len(gl) == 0 {
		return "."
	}
	out := make([]byte, 0, len(gl)*3)
	for i, v := range gl {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, []byte(fmt.Sprintf("%d", int(v+0.5)))...)
	}
	return string(out)
}
