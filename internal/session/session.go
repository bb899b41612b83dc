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

// Package session owns one open indexed alignment file and its index,
// and exposes region iteration and contig-name lookup to the pileup
// worker that owns it.
package session

import (
	"fmt"
	"io"

	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// Session is a single open, indexed alignment file (BAM/SAM/CRAM). It is
// never shared between goroutines: each worker opens and closes its own
// sessions over its own files.
type Session struct {
	path    string
	in      file.File
	idxIn   file.File
	reader  *bam.Reader
	index   *bam.Index
	header *sam.Header
	tidOf  map[uint64]int32 // farm hash of contig name -> tid
}

// Open opens path (and its .bai index, at indexPath or path+".bai" if
// indexPath is "") and probes the header and index. It is a
// non-recoverable worker error if either is missing, unreadable, or
// corrupt.
func Open(path, indexPath string) (*Session, error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "session: open %s", path)
	}
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		in.Close(ctx)
		return nil, errors.Wrapf(err, "session: read header %s", path)
	}
	if indexPath == "" {
		indexPath = path + ".bai"
	}
	idxIn, err := file.Open(ctx, indexPath)
	if err != nil {
		in.Close(ctx)
		return nil, errors.Wrapf(err, "session: open index %s", indexPath)
	}
	idx, err := bam.ReadIndex(idxIn.Reader(ctx))
	if err != nil {
		in.Close(ctx)
		idxIn.Close(ctx)
		return nil, errors.Wrapf(err, "session: read index %s", indexPath)
	}
	header := reader.Header()
	tidOf := make(map[uint64]int32, len(header.Refs()))
	for _, ref := range header.Refs() {
		tidOf[farm.Hash64([]byte(ref.Name()))] = int32(ref.ID())
	}
	return &Session{
		path:   path,
		in:     in,
		idxIn:  idxIn,
		reader: reader,
		index:  idx,
		header: header,
		tidOf:  tidOf,
	}, nil
}

// TidOf returns the reference ID for chrom, or an error tagged
// "contig-unknown" if the alignment file's header has no such contig.
func (s *Session) TidOf(chrom string) (int32, error) {
	tid, ok := s.tidOf[farm.Hash64([]byte(chrom))]
	if !ok {
		vlog.VI(1).Infof("session %s: contig %s not found in header", s.path, chrom)
		return 0, fmt.Errorf("contig-unknown: %s not present in %s", chrom, s.path)
	}
	return tid, nil
}

// Close releases the file, index, and header cache held by the session.
func (s *Session) Close() error {
	ctx := vcontext.Background()
	err1 := s.in.Close(ctx)
	err2 := s.idxIn.Close(ctx)
	if err1 != nil {
		return err1
	}
	return err2
}

// Iterator walks the alignment records overlapping one half-open
// reference interval, in coordinate order.
type Iterator struct {
	s         *Session
	tid       int32
	start     int
	end       int
	err       error
	rec       *sam.Record
	exhausted bool
}

// Fetch returns an Iterator over the records in the session that overlap
// the half-open reference interval [start, end) on tid. Coordinates are
// 0-based. Records that start before the interval but whose CIGAR-
// consumed reference span doesn't reach it are filtered out here so
// that every record the resolver sees genuinely overlaps the target.
func (s *Session) Fetch(tid int32, start, end int) *Iterator {
	it := &Iterator{s: s, tid: tid, start: start, end: end}
	ref := s.header.Refs()[tid]
	chunks, err := s.index.Chunks(ref, start, end)
	if err == index.ErrInvalid || len(chunks) == 0 {
		it.exhausted = true
		return it
	}
	if err != nil {
		it.err = errors.Wrapf(err, "session: index chunks for %s", ref.Name())
		return it
	}
	if err := s.reader.Seek(chunks[0].Begin); err != nil {
		it.err = errors.Wrap(err, "session: seek")
	}
	return it
}

// Scan advances the iterator to the next overlapping record, returning
// false at end of range or on error (check Err to distinguish the two).
func (it *Iterator) Scan() bool {
	if it.err != nil || it.exhausted {
		return false
	}
	for {
		rec, err := it.s.reader.Read()
		if err == io.EOF {
			it.exhausted = true
			return false
		}
		if err != nil {
			it.err = errors.Wrap(err, "session: read record")
			return false
		}
		if rec.Ref == nil || int32(rec.Ref.ID()) != it.tid || rec.Pos >= it.end {
			it.exhausted = true
			return false
		}
		if recordEnd(rec) <= it.start {
			continue
		}
		it.rec = rec
		return true
	}
}

// Record returns the record most recently produced by Scan.
func (it *Iterator) Record() *sam.Record { return it.rec }

// Err reports a non-recoverable error encountered during the scan, if
// any. A clean end-of-range is not an error.
func (it *Iterator) Err() error { return it.err }

// recordEnd returns the 0-based, exclusive reference-coordinate end of
// rec's alignment, derived from its CIGAR's reference-consuming ops.
func recordEnd(rec *sam.Record) int {
	end := rec.Pos
	for _, op := range rec.Cigar {
		switch op.Type() {
		case sam.CigarMatch, sam.CigarDeletion, sam.CigarSkipped, sam.CigarEqual, sam.CigarMismatch:
			end += op.Len()
		}
	}
	return end
}
