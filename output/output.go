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

// Package output writes the fixed cellSNP.* output files: the three
// MatrixMarket sparse matrices, the base and cells VCFs, and the
// samples roster, per spec.md 6.
package output

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Names of the fixed output files, relative to the configured output
// directory.
const (
	ADMatrixName    = "cellSNP.tag.AD.mtx"
	DPMatrixName    = "cellSNP.tag.DP.mtx"
	OTHMatrixName   = "cellSNP.tag.OTH.mtx"
	BaseVCFName     = "cellSNP.base.vcf"
	CellsVCFName    = "cellSNP.cells.vcf"
	SamplesTSVName  = "cellSNP.samples.tsv"
	ManifestName    = "cellSNP.manifest.pb"
)

// MatrixWriter wraps one final *.mtx file: preamble already written,
// awaiting the totals line and then every shard's rewritten rows.
type MatrixWriter struct {
	f   file.File
	w   *bufio.Writer
	ctx context.Context
}

// CreateMatrix opens dir/name and writes the MatrixMarket banner.
func CreateMatrix(ctx context.Context, dir, name string) (*MatrixWriter, error) {
	f, err := file.Create(ctx, filepath.Join(dir, name))
	if err != nil {
		return nil, errors.Wrapf(err, "output: create %s", name)
	}
	w := bufio.NewWriter(f.Writer(ctx))
	if _, err := io.WriteString(w, "%%MatrixMarket matrix coordinate integer general\n%\n"); err != nil {
		return nil, err
	}
	return &MatrixWriter{f: f, w: w, ctx: ctx}, nil
}

// WriteTotals writes the single totals line spec.md 4.7 requires between
// the preamble and the first shard's rows.
func (m *MatrixWriter) WriteTotals(rows, cols, nnz int) error {
	_, err := fmt.Fprintf(m.w, "%d\t%d\t%d\n", rows, cols, nnz)
	return err
}

// MergeShard copies one worker's snappy-compressed shard into the
// matrix file, rewriting each non-empty line as "R\tline" and
// incrementing *row on every empty-line SNV delimiter.
func (m *MatrixWriter) MergeShard(ctx context.Context, shardPath string, row *int) error {
	sf, err := file.Open(ctx, shardPath)
	if err != nil {
		return errors.Wrapf(err, "output: open shard %s", shardPath)
	}
	defer sf.Close(ctx)
	sc := bufio.NewScanner(snappy.NewReader(sf.Reader(ctx)))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			*row++
			continue
		}
		if _, err := fmt.Fprintf(m.w, "%d\t%s\n", *row, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Close flushes and closes the matrix file.
func (m *MatrixWriter) Close() error {
	if err := m.w.Flush(); err != nil {
		return err
	}
	return m.f.Close(m.ctx)
}

// VCFWriter wraps one final VCF file: header already written, awaiting
// concatenated shard bodies.
type VCFWriter struct {
	f   file.File
	gz  *gzip.Writer
	w   *bufio.Writer
	ctx context.Context
}

// CreateVCF opens dir/name (appending ".gz" and wrapping the stream in a
// gzip writer when gzipped is set) and writes the VCF 4.2 meta-header.
// sampleColumns, when non-empty, appends a genotype-column header line
// (group names, in order) after the fixed eight columns.
func CreateVCF(ctx context.Context, dir, name string, sampleColumns []string, gzipped bool) (*VCFWriter, error) {
	if gzipped {
		name += ".gz"
	}
	f, err := file.Create(ctx, filepath.Join(dir, name))
	if err != nil {
		return nil, errors.Wrapf(err, "output: create %s", name)
	}
	vw := &VCFWriter{f: f, ctx: ctx}
	var dst io.Writer = f.Writer(ctx)
	if gzipped {
		vw.gz = gzip.NewWriter(dst)
		dst = vw.gz
	}
	w := bufio.NewWriter(dst)
	if _, err := fmt.Fprintf(w, "##fileformat=VCFv4.2\n##fileDate=%s\n##source=cellSNP\n",
		time.Now().UTC().Format("20060102")); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, "##INFO=<ID=AD,Number=1,Type=Integer,Description=\"Alt allele depth\">\n"+
		"##INFO=<ID=DP,Number=1,Type=Integer,Description=\"Total depth\">\n"+
		"##INFO=<ID=OTH,Number=1,Type=Integer,Description=\"Other-allele depth\">\n"); err != nil {
		return nil, err
	}
	if len(sampleColumns) > 0 {
		if _, err := io.WriteString(w, "##FORMAT=<ID=GT,Number=1,Type=String,Description=\"Genotype\">\n"+
			"##FORMAT=<ID=AD,Number=1,Type=Integer,Description=\"Alt depth\">\n"+
			"##FORMAT=<ID=DP,Number=1,Type=Integer,Description=\"Depth\">\n"+
			"##FORMAT=<ID=OTH,Number=1,Type=Integer,Description=\"Other depth\">\n"+
			"##FORMAT=<ID=PL,Number=G,Type=Integer,Description=\"Phred-scaled genotype likelihoods\">\n"+
			"##FORMAT=<ID=ALL,Number=5,Type=Integer,Description=\"Per-base totals A,C,G,T,N\">\n"); err != nil {
			return nil, err
		}
	}
	header := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"
	if len(sampleColumns) > 0 {
		header += "\tFORMAT"
		for _, s := range sampleColumns {
			header += "\t" + s
		}
	}
	if _, err := io.WriteString(w, header+"\n"); err != nil {
		return nil, err
	}
	vw.w = w
	return vw, nil
}

// Concat byte-concatenates one worker's snappy-compressed VCF shard,
// verbatim, onto the output file.
func (v *VCFWriter) Concat(ctx context.Context, shardPath string) error {
	sf, err := file.Open(ctx, shardPath)
	if err != nil {
		return errors.Wrapf(err, "output: open shard %s", shardPath)
	}
	defer sf.Close(ctx)
	_, err = io.Copy(v.w, snappy.NewReader(sf.Reader(ctx)))
	return err
}

// Close flushes and closes the VCF file.
func (v *VCFWriter) Close() error {
	if err := v.w.Flush(); err != nil {
		return err
	}
	if v.gz != nil {
		if err := v.gz.Close(); err != nil {
			return err
		}
	}
	return v.f.Close(v.ctx)
}

// WriteSamples writes the one-group-name-per-line roster file.
func WriteSamples(ctx context.Context, dir string, groupNames []string) error {
	f, err := file.Create(ctx, filepath.Join(dir, SamplesTSVName))
	if err != nil {
		return errors.Wrap(err, "output: create samples file")
	}
	w := bufio.NewWriter(f.Writer(ctx))
	for _, name := range groupNames {
		if _, err := io.WriteString(w, name+"\n"); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close(ctx)
}

