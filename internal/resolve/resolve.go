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

// Package resolve determines, for one alignment record and one target
// reference position, whether the record's aligned base at that
// position can be used: it walks the record's CIGAR to find the query
// offset (the only place reference-position arithmetic happens), reads
// off the base and quality, and applies the read-level filters.
package resolve

import (
	"fmt"

	"github.com/grailbio/cellsnp/baseenum"
	"github.com/grailbio/hts/sam"
)

// Kind classifies the outcome of a Resolve call.
type Kind int

const (
	// OK means probe was filled in with a usable base.
	OK Kind = iota
	// Malformed means the record lacked a required aux tag.
	Malformed
	// Filtered means a policy filter (mapq/flag/length/deletion/refskip)
	// rejected the record.
	Filtered
)

// Filters bundles the read-level acceptance policy.
type Filters struct {
	MinMapQ    byte
	MaxFlag    uint16
	MinLen     int
	CellTag    string // "" if barcodes are not used
	UMITag     string // "" if UMIs are not used
	UseBarcode bool
	UseUMI     bool
}

// Probe is the resolved, transient view of one read at one target
// position. Its CellBarcode/UMI fields alias the record's aux data and
// must be copied by the caller before the next Resolve call on the same
// scratch record.
type Probe struct {
	CellBarcode string
	UMI         string
	BaseIndex   byte
	BaseQuality byte
	AlignedLen  int
}

// Resolve determines rec's aligned base at 0-based reference position
// pos, applying f. kind is OK only when probe has been filled in.
//
// An error return means the record does not cover pos: it starts after
// pos, or its CIGAR never advanced past pos (the precondition that the region iterator only yields overlapping
// records was violated) — a fatal, non-recoverable worker error.
func Resolve(rec *sam.Record, pos int, f Filters, probe *Probe) (kind Kind, err error) {
	if f.UseUMI {
		aux := rec.AuxFields.Get(sam.NewTag(f.UMITag))
		if aux == nil {
			return Malformed, nil
		}
		s, ok := aux.Value().(string)
		if !ok {
			return Malformed, nil
		}
		probe.UMI = s
	}
	if f.UseBarcode {
		aux := rec.AuxFields.Get(sam.NewTag(f.CellTag))
		if aux == nil {
			return Malformed, nil
		}
		s, ok := aux.Value().(string)
		if !ok {
			return Malformed, nil
		}
		probe.CellBarcode = s
	}
	if byte(rec.MapQ) < f.MinMapQ || uint16(rec.Flags) > f.MaxFlag {
		return Filtered, nil
	}
	if rec.Pos > pos {
		return Malformed, fmt.Errorf("resolve: record start %d is after target position %d", rec.Pos, pos)
	}

	refX := rec.Pos
	queryY := 0
	alignedLen := 0
	foundBase := false
	rejectedByGap := false
	for _, op := range rec.Cigar {
		if rejectedByGap {
			break
		}
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if !foundBase && refX+n > pos {
				offset := queryY + (pos - refX)
				probe.BaseQuality = rec.Qual[offset]
				probe.BaseIndex = baseForRecord(rec, offset)
				foundBase = true
			}
			refX += n
			queryY += n
			alignedLen += n
		case sam.CigarDeletion, sam.CigarSkipped:
			if !foundBase && refX+n > pos {
				rejectedByGap = true
			}
			refX += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			queryY += n
		default:
			// Hard clips and padding consume neither reference nor query
			// positions relevant here.
		}
	}
	if !foundBase && !rejectedByGap {
		return Malformed, fmt.Errorf("resolve: CIGAR for record at %d never reached target position %d", rec.Pos, pos)
	}
	if rejectedByGap {
		return Filtered, nil
	}
	probe.AlignedLen = alignedLen
	if alignedLen < f.MinLen {
		return Filtered, nil
	}
	return OK, nil
}

// baseForRecord extracts the base-enum value of rec's query sequence at
// the given 0-based query offset.
func baseForRecord(rec *sam.Record, offset int) byte {
	return baseenum.Seq8ToEnumTable[byte(rec.Seq.Base(offset))&0xf]
}
