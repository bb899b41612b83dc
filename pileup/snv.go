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

import (
	"fmt"

	"github.com/grailbio/cellsnp/internal/resolve"
	"github.com/grailbio/cellsnp/internal/session"
)

// SNV is one candidate single-nucleotide variant. Pos is 0-based. RefIdx
// and AltIdx are UnknownBase when the caller wants them inferred from
// the pushed reads.
type SNV struct {
	Chrom          string
	Pos            int
	RefIdx, AltIdx int
}

// Policy bundles the per-worker, read-only configuration the pileup
// procedure needs beyond the SNV itself: read-level filters, group
// routing mode, and finalize-time thresholds.
type Policy struct {
	Filters     resolve.Filters
	UseBarcode  bool
	MinCount    uint32
	MinMAF      float64
	Genotype    bool
	DoubleGL    bool
	SnapCorrect bool
}

// Row is the finalized result of one emitted SNV, ready for the output
// module.
type Row struct {
	SNV            SNV
	RefIdx, AltIdx int
	AD, DP, OTH    uint32
	NrAD, NrDP, NrOth int
}

// One runs the SNV pileup procedure (spec.md 4.6) for a single SNV
// against every open session, pushing resolved reads into m, then
// finalizing. emit is false if the SNV was rejected (no coverage, failed
// MAF, or every session lacked the contig) — callers must not write a
// row to the shard in that case. A non-nil error is a fatal worker
// error (spec.md 4.2's CIGAR-assertion path, or a numeric failure from
// Mplp.Stat).
func One(sessions []*session.Session, snv SNV, policy Policy, m *Mplp) (row Row, emit bool, err error) {
	m.InitSNV(snv.RefIdx, snv.AltIdx)

	var probe resolve.Probe
	anyContig := false
	for sid, s := range sessions {
		tid, terr := s.TidOf(snv.Chrom)
		if terr != nil {
			continue // contig-unknown: this session contributes nothing
		}
		anyContig = true
		it := s.Fetch(tid, snv.Pos, snv.Pos+1)
		for it.Scan() {
			rec := it.Record()
			kind, rerr := resolve.Resolve(rec, snv.Pos, policy.Filters, &probe)
			if rerr != nil {
				return Row{}, false, fmt.Errorf("pileup: %s:%d: %w", snv.Chrom, snv.Pos, rerr)
			}
			if kind != resolve.OK {
				continue
			}
			m.Push(policy.UseBarcode, sid, &probe)
		}
		if it.Err() != nil {
			return Row{}, false, fmt.Errorf("pileup: %s:%d: %w", snv.Chrom, snv.Pos, it.Err())
		}
	}
	if !anyContig || m.TC < policy.MinCount {
		return Row{}, false, nil
	}

	res, serr := m.Stat(policy.MinCount, policy.MinMAF, policy.Genotype, policy.DoubleGL)
	if serr != nil {
		return Row{}, false, fmt.Errorf("pileup: %s:%d: %w", snv.Chrom, snv.Pos, serr)
	}
	if !res.Emit {
		return Row{}, false, nil
	}
	dp := m.BC[res.RefIdx] + m.BC[res.AltIdx]
	return Row{
		SNV:    snv,
		RefIdx: res.RefIdx,
		AltIdx: res.AltIdx,
		AD:     m.BC[res.AltIdx],
		DP:     dp,
		OTH:    m.TC - dp,
		NrAD:   m.NrAD,
		NrDP:   m.NrDP,
		NrOth:  m.NrOth,
	}, true, nil
}
