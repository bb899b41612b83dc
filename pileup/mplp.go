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
	"github.com/antzucaro/matchr"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/cellsnp/baseenum"
	"github.com/grailbio/cellsnp/internal/resolve"
)

// unknownIdx marks an SNV's ref_idx/alt_idx as not yet known, pending
// allele inference in Stat.
const unknownIdx = -1

// umiArena is a bump-allocated byte pool backing every group's UMISeen
// keys for one worker, so each distinct UMI string is materialized once
// per worker-SNV rather than once per push.
type umiArena struct {
	buf []byte
}

func (a *umiArena) copy(s string) string {
	start := len(a.buf)
	a.buf = append(a.buf, s...)
	return gunsafe.BytesToString(a.buf[start : start+len(s)])
}

func (a *umiArena) reset() { a.buf = a.buf[:0] }

// Mplp is the multi-group pileup aggregator for one SNV: a fixed,
// insertion-ordered roster of Plps (one per sample group), totals across
// all groups, and the inferred/declared reference and alternate allele
// indices.
type Mplp struct {
	GroupNames []string
	byName     map[string]int
	Plps       []*Plp

	BC             [baseenum.NEnum]uint32
	TC             uint32
	RefIdx, AltIdx int
	InfRid, InfAid int
	NrAD, NrDP, NrOth int

	arena       umiArena
	useUMI      bool
	snapCorrect bool
	snapCache   map[string]int // observed (uncorrected) barcode -> group index, memoized
}

// NewMplp allocates an Mplp for a worker whose SNV slice will be pushed
// into the given, fixed sample-group roster. groupNames must be in the
// order groups should appear in every output (barcode or sample-ID
// order). expectUMIsPerSNV pre-sizes each group's UMI index. Barcode
// snap-correction is off; see NewMplpWithSnapCorrect.
func NewMplp(groupNames []string, useUMI bool, expectUMIsPerSNV int) *Mplp {
	return newMplp(groupNames, useUMI, expectUMIsPerSNV, false)
}

// NewMplpWithSnapCorrect is NewMplp plus barcode snap-correction: a
// barcode that misses the roster exactly is looked up again by nearest
// Levenshtein distance (see snapRoute).
func NewMplpWithSnapCorrect(groupNames []string, useUMI bool, expectUMIsPerSNV int) *Mplp {
	return newMplp(groupNames, useUMI, expectUMIsPerSNV, true)
}

func newMplp(groupNames []string, useUMI bool, expectUMIsPerSNV int, snapCorrect bool) *Mplp {
	m := &Mplp{
		GroupNames:  groupNames,
		byName:      make(map[string]int, len(groupNames)),
		Plps:        make([]*Plp, len(groupNames)),
		useUMI:      useUMI,
		snapCorrect: snapCorrect,
	}
	if snapCorrect {
		m.snapCache = make(map[string]int)
	}
	for i, name := range groupNames {
		m.byName[name] = i
		m.Plps[i] = NewPlp(useUMI, expectUMIsPerSNV)
	}
	return m
}

// InitSNV primes ref_idx/alt_idx for a new SNV. Pass unknownIdx-producing
// negative indices (see UnknownBase) when the SNV's ref/alt must be
// inferred from the pushed reads.
func (m *Mplp) InitSNV(refIdx, altIdx int) {
	m.RefIdx, m.AltIdx = refIdx, altIdx
}

// UnknownBase is the sentinel ref/alt value meaning "infer from data."
const UnknownBase = unknownIdx

// Reset clears every Plp and the Mplp's own aggregate fields and UMI
// arena; must be called between SNVs.
func (m *Mplp) Reset() {
	for _, p := range m.Plps {
		p.Reset()
	}
	m.BC = [baseenum.NEnum]uint32{}
	m.TC = 0
	m.RefIdx, m.AltIdx = unknownIdx, unknownIdx
	m.InfRid, m.InfAid = 0, 0
	m.NrAD, m.NrDP, m.NrOth = 0, 0, 0
	m.arena.reset()
}

// PushResult classifies the outcome of a Push call.
type PushResult int

const (
	// Pushed means the observation was routed, resolved, and counted.
	Pushed PushResult = iota
	// UnknownCell means barcode routing found no matching group; per
	// spec.md 4.4 this is silently dropped, not an error.
	UnknownCell
	// Deduped means a UMI already seen in this group at this SNV caused
	// the push to be a no-op.
	Deduped
)

// Push routes probe to its sample group (by barcode lookup, or by the
// fixed sample index sid when barcodes aren't in use) and, if routed,
// records its base and quality.
func (m *Mplp) Push(useBarcode bool, sid int, probe *resolve.Probe) PushResult {
	idx, ok := m.route(useBarcode, sid, probe)
	if !ok {
		return UnknownCell
	}
	plp := m.Plps[idx]
	counted := plp.observe(probe.BaseIndex, probe.BaseQuality, probe.UMI, m.arena.copy)
	if !counted {
		return Deduped
	}
	m.BC[probe.BaseIndex]++
	m.TC++
	return Pushed
}

func (m *Mplp) route(useBarcode bool, sid int, probe *resolve.Probe) (int, bool) {
	if useBarcode {
		if idx, ok := m.byName[probe.CellBarcode]; ok {
			return idx, true
		}
		if m.snapCorrect {
			return m.snapRoute(probe.CellBarcode)
		}
		return 0, false
	}
	if sid < 0 || sid >= len(m.Plps) {
		return 0, false
	}
	return sid, true
}

// snapRoute looks up a barcode that missed the roster exactly by
// nearest Levenshtein distance, within a window of 1 edit and only when
// the nearest candidate is unambiguous. Results are memoized for the
// life of the Mplp (Reset does not clear the cache) since the same
// misread barcode recurs across reads and SNVs.
func (m *Mplp) snapRoute(observed string) (int, bool) {
	if idx, ok := m.snapCache[observed]; ok {
		if idx < 0 {
			return 0, false
		}
		return idx, true
	}
	best, bestDist, ambiguous := -1, 2, false
	for i, name := range m.GroupNames {
		d := matchr.Levenshtein(observed, name)
		if d < bestDist {
			best, bestDist, ambiguous = i, d, false
		} else if d == bestDist {
			ambiguous = true
		}
	}
	if best < 0 || bestDist > 1 || ambiguous {
		m.snapCache[observed] = -1
		return 0, false
	}
	m.snapCache[observed] = best
	return best, true
}

// StatResult reports whether an SNV survived finalize and, if so, the
// resolved ref/alt indices used for AD/DP/OTH accounting.
type StatResult struct {
	Emit           bool
	RefIdx, AltIdx int
}

// Stat finalizes the Mplp for emission: applies the coverage filter,
// runs allele inference if ref/alt are unknown, applies the minor-allele-
// frequency filter, and (when genotype is requested) computes every
// group's genotype likelihoods. It never mutates state on rejection
// beyond what Reset will clear anyway.
func (m *Mplp) Stat(minCount uint32, minMAF float64, genotype, doubleGL bool) (StatResult, error) {
	if m.TC < minCount {
		return StatResult{}, nil
	}
	refIdx, altIdx := m.RefIdx, m.AltIdx
	if refIdx == unknownIdx || altIdx == unknownIdx {
		m.InfRid, m.InfAid = InferAllele(&m.BC)
		refIdx, altIdx = m.InfRid, m.InfAid
	}
	altCount := m.BC[altIdx]
	if float64(altCount) < float64(m.TC)*minMAF {
		return StatResult{}, nil
	}
	m.NrAD, m.NrDP, m.NrOth = 0, 0, 0
	for _, p := range m.Plps {
		if err := p.finalize(refIdx, altIdx, genotype, doubleGL); err != nil {
			return StatResult{}, err
		}
		if p.AD != 0 {
			m.NrAD++
		}
		if p.DP != 0 {
			m.NrDP++
		}
		if p.OTH != 0 {
			m.NrOth++
		}
	}
	return StatResult{Emit: true, RefIdx: refIdx, AltIdx: altIdx}, nil
}
