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

// Package worker runs the SNV pileup procedure over one contiguous
// slice of the candidate SNV list and spools its results to a private
// set of shard files, per spec.md 4.6/4.7.
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang/snappy"
	"github.com/grailbio/base/file"
	"github.com/grailbio/cellsnp/internal/session"
	"github.com/grailbio/cellsnp/pileup"
)

// Input is one alignment file a worker reads from.
type Input struct {
	Path      string
	IndexPath string // "" to default to Path + ".bai"
}

// Config is the read-only configuration shared by every worker.
type Config struct {
	Inputs     []Input
	GroupNames []string
	Policy     pileup.Policy
	ExpectUMIsPerSNV int
	ShardDir   string
}

// Result summarizes one worker's contribution, needed by the driver to
// write the final matrix-market totals line.
type Result struct {
	WorkerIdx         int
	SNVCount          int
	NrAD, NrDP, NrOth int
}

// shardPaths returns this worker's shard file paths, in the fixed name
// order spec.md 4.7 specifies.
func shardPaths(dir string, idx int, genotype bool) (mtxAD, mtxDP, mtxOTH, vcfBase, vcfCells string) {
	suffix := strconv.Itoa(idx)
	mtxAD = filepath.Join(dir, "mtx_AD."+suffix)
	mtxDP = filepath.Join(dir, "mtx_DP."+suffix)
	mtxOTH = filepath.Join(dir, "mtx_OTH."+suffix)
	vcfBase = filepath.Join(dir, "vcf_base."+suffix)
	if genotype {
		vcfCells = filepath.Join(dir, "vcf_cells."+suffix)
	}
	return
}

// Run executes the pileup procedure over snvs (this worker's contiguous
// slice) and writes its shards under cfg.ShardDir. When the pileup or a
// row write fails, this worker's partially-written shard files are
// closed and removed before returning; an error while creating or
// closing the shard files leaves them in place, and the driver removes
// the whole shard directory afterwards.
func Run(ctx context.Context, idx int, snvs []pileup.SNV, cfg Config) (Result, error) {
	sessions := make([]*session.Session, 0, len(cfg.Inputs))
	defer func() {
		for _, s := range sessions {
			s.Close()
		}
	}()
	for _, in := range cfg.Inputs {
		s, err := session.Open(in.Path, in.IndexPath)
		if err != nil {
			return Result{}, fmt.Errorf("worker %d: %w", idx, err)
		}
		sessions = append(sessions, s)
	}

	mtxADPath, mtxDPPath, mtxOTHPath, vcfBasePath, vcfCellsPath := shardPaths(cfg.ShardDir, idx, cfg.Policy.Genotype)
	sw, err := newShardWriter(ctx, mtxADPath, mtxDPPath, mtxOTHPath, vcfBasePath, vcfCellsPath)
	if err != nil {
		return Result{}, fmt.Errorf("worker %d: %w", idx, err)
	}

	var m *pileup.Mplp
	if cfg.Policy.SnapCorrect {
		m = pileup.NewMplpWithSnapCorrect(cfg.GroupNames, cfg.Policy.Filters.UseUMI, cfg.ExpectUMIsPerSNV)
	} else {
		m = pileup.NewMplp(cfg.GroupNames, cfg.Policy.Filters.UseUMI, cfg.ExpectUMIsPerSNV)
	}
	res := Result{WorkerIdx: idx}
	for _, snv := range snvs {
		row, emit, perr := pileup.One(sessions, snv, cfg.Policy, m)
		if perr != nil {
			sw.abort()
			return Result{}, fmt.Errorf("worker %d: %w", idx, perr)
		}
		if emit {
			if werr := sw.writeRow(row, m, cfg.GroupNames, cfg.Policy.Genotype, cfg.Policy.DoubleGL); werr != nil {
				sw.abort()
				return Result{}, fmt.Errorf("worker %d: %w", idx, werr)
			}
			res.SNVCount++
			res.NrAD += row.NrAD
			res.NrDP += row.NrDP
			res.NrOth += row.NrOth
		}
		m.Reset()
	}
	if err := sw.close(); err != nil {
		return Result{}, fmt.Errorf("worker %d: %w", idx, err)
	}
	return res, nil
}

// shardWriter owns one worker's shard file handles. Each is wrapped in a
// snappy stream: an internal buffering optimization invisible to the
// driver, which decompresses while merging.
type shardWriter struct {
	files []file.File
	mtxAD, mtxDP, mtxOTH *snappy.Writer
	vcfBase, vcfCells    *snappy.Writer
	ctx                  context.Context
	paths                []string
}

func newShardWriter(ctx context.Context, mtxADPath, mtxDPPath, mtxOTHPath, vcfBasePath, vcfCellsPath string) (*shardWriter, error) {
	sw := &shardWriter{ctx: ctx}
	open := func(path string) (*snappy.Writer, error) {
		f, err := file.Create(ctx, path)
		if err != nil {
			return nil, err
		}
		sw.files = append(sw.files, f)
		sw.paths = append(sw.paths, path)
		return snappy.NewBufferedWriter(f.Writer(ctx)), nil
	}
	var err error
	if sw.mtxAD, err = open(mtxADPath); err != nil {
		return nil, err
	}
	if sw.mtxDP, err = open(mtxDPPath); err != nil {
		return nil, err
	}
	if sw.mtxOTH, err = open(mtxOTHPath); err != nil {
		return nil, err
	}
	if sw.vcfBase, err = open(vcfBasePath); err != nil {
		return nil, err
	}
	if vcfCellsPath != "" {
		if sw.vcfCells, err = open(vcfCellsPath); err != nil {
			return nil, err
		}
	}
	return sw, nil
}

func (sw *shardWriter) writeRow(row pileup.Row, m *pileup.Mplp, groupNames []string, genotype, doubleGL bool) error {
	if err := writeMatrixLine(sw.mtxAD, m.Plps, groupNames, func(p *pileup.Plp) uint32 { return p.AD }); err != nil {
		return err
	}
	if err := writeMatrixLine(sw.mtxDP, m.Plps, groupNames, func(p *pileup.Plp) uint32 { return p.DP }); err != nil {
		return err
	}
	if err := writeMatrixLine(sw.mtxOTH, m.Plps, groupNames, func(p *pileup.Plp) uint32 { return p.OTH }); err != nil {
		return err
	}
	// sw.vcfCells is a typed *snappy.Writer; passed directly as the
	// io.Writer parameter a nil value would not compare equal to nil
	// there, so convert the "not opened" case to a true nil interface.
	var cells io.Writer
	if sw.vcfCells != nil {
		cells = sw.vcfCells
	}
	return writeVCFLine(sw.vcfBase, cells, row, m, groupNames, genotype, doubleGL)
}

func (sw *shardWriter) close() error {
	for _, w := range []*snappy.Writer{sw.mtxAD, sw.mtxDP, sw.mtxOTH, sw.vcfBase, sw.vcfCells} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	for _, f := range sw.files {
		if err := f.Close(sw.ctx); err != nil {
			return err
		}
	}
	return nil
}

func (sw *shardWriter) abort() {
	for _, f := range sw.files {
		f.Close(sw.ctx)
	}
	for _, p := range sw.paths {
		os.Remove(p)
	}
}
