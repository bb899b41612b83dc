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

// Package config loads and validates the run configuration: input file
// lists, the candidate SNV list, the barcode or sample-ID roster, and
// the filter/threshold options, per spec.md 6.
package config

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cellsnp/baseenum"
	"github.com/grailbio/cellsnp/internal/resolve"
	"github.com/grailbio/cellsnp/pileup"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Opts holds every recognized command-line option, with its default
// applied by NewOpts.
type Opts struct {
	InputPaths   []string
	IndexPaths   []string // parallel to InputPaths; "" defaults to path+".bai"
	OutDir       string
	SNVListPath  string
	BarcodePath  string
	SampleIDPath string   // one of SampleIDPath/SampleIDs may be set when BarcodePath is empty
	SampleIDs    []string

	Threads             int
	CellTag             string // "" means no barcode demux (sample mode)
	UMITag              string // "" means UMIs are not in use
	MinCount            uint32
	MinMAF              float64
	DoubleGL            bool
	MinLen              int
	MinMAPQ             byte
	MaxFlag             uint16
	Genotype            bool
	Gzip                bool
	SnapCorrectBarcodes bool
}

// NewOpts returns an Opts populated with spec.md 6's defaults.
func NewOpts() Opts {
	return Opts{
		Threads:  1,
		CellTag:  "CB",
		UMITag:   "Auto",
		MinCount: 20,
		MinMAF:   0.0,
		MinLen:   30,
		MinMAPQ:  20,
		MaxFlag:  255,
	}
}

// Resolved is the validated, loaded configuration ready to drive the
// engine.
type Resolved struct {
	GroupNames []string
	UseBarcode bool
	Policy     pileup.Policy
	SNVs       []pileup.SNV
}

// resolveUMITag applies the "Auto" default: "UR" when barcodes are in
// use, none otherwise.
func resolveUMITag(tag string, useBarcode bool) string {
	if tag != "Auto" {
		return tag
	}
	if useBarcode {
		return "UR"
	}
	return ""
}

// Load reads the barcode/sample roster and SNV list named in opts and
// builds a Resolved configuration. ctx is used for all file I/O via
// grailbio/base/file, which transparently handles local and remote
// paths.
func Load(ctx context.Context, opts Opts) (*Resolved, error) {
	hasSampleIDs := opts.SampleIDPath != "" || len(opts.SampleIDs) > 0
	if opts.BarcodePath == "" && !hasSampleIDs {
		return nil, errors.New("config: exactly one of barcode file or sample-ID list must be supplied")
	}
	if opts.BarcodePath != "" && hasSampleIDs {
		return nil, errors.New("config: barcode file and sample-ID list are mutually exclusive")
	}
	useBarcode := opts.BarcodePath != ""

	var groupNames []string
	var err error
	switch {
	case useBarcode:
		groupNames, err = loadSortedBarcodes(ctx, opts.BarcodePath)
	case len(opts.SampleIDs) > 0:
		groupNames = opts.SampleIDs
	default:
		groupNames, err = loadLines(ctx, opts.SampleIDPath)
	}
	if err != nil {
		return nil, errors.Wrap(err, "config: loading group roster")
	}
	if !useBarcode && len(groupNames) != len(opts.InputPaths) {
		return nil, errors.Errorf("config: sample-ID list has %d entries but %d input files were given",
			len(groupNames), len(opts.InputPaths))
	}

	snvs, err := loadSNVList(ctx, opts.SNVListPath)
	if err != nil {
		return nil, errors.Wrap(err, "config: loading SNV list")
	}

	umiTag := resolveUMITag(opts.UMITag, useBarcode)
	policy := pileup.Policy{
		Filters: resolve.Filters{
			MinMapQ:    opts.MinMAPQ,
			MaxFlag:    opts.MaxFlag,
			MinLen:     opts.MinLen,
			CellTag:    opts.CellTag,
			UMITag:     umiTag,
			UseBarcode: opts.CellTag != "",
			UseUMI:     umiTag != "",
		},
		UseBarcode:  useBarcode,
		MinCount:    opts.MinCount,
		MinMAF:      opts.MinMAF,
		Genotype:    opts.Genotype,
		DoubleGL:    opts.DoubleGL,
		SnapCorrect: opts.SnapCorrectBarcodes,
	}

	return &Resolved{
		GroupNames: groupNames,
		UseBarcode: useBarcode,
		Policy:     policy,
		SNVs:       snvs,
	}, nil
}

// openTransparent opens path for reading, gunzipping transparently when
// fileio.DetermineType classifies the path as gzip (by its ".gz" suffix).
func openTransparent(ctx context.Context, path string) (f file.File, r *bufio.Reader, closeFn func() error, err error) {
	f, err = file.Open(ctx, path)
	if err != nil {
		return nil, nil, nil, err
	}
	var reader = f.Reader(ctx)
	closeFn = func() error { return f.Close(ctx) }
	if fileio.DetermineType(path) == fileio.Gzip {
		gz, gerr := gzip.NewReader(reader)
		if gerr != nil {
			f.Close(ctx)
			return nil, nil, nil, gerr
		}
		return f, bufio.NewReader(gz), closeFn, nil
	}
	return f, bufio.NewReader(reader), closeFn, nil
}

// loadLines reads path line by line, transparently gunzipping when
// needed, trimming surrounding whitespace and skipping blank lines.
func loadLines(ctx context.Context, path string) ([]string, error) {
	_, r, closeFn, err := openTransparent(ctx, path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

// barcodeItem makes a string comparable in an llrb.Tree, giving us a
// sorted roster without hand-rolling a sort afterwards.
type barcodeItem string

func (b barcodeItem) Compare(c llrb.Comparable) int {
	return strings.Compare(string(b), string(c.(barcodeItem)))
}

// loadSortedBarcodes reads a one-barcode-per-line file and returns the
// distinct barcodes sorted lexicographically, per spec.md 6.
func loadSortedBarcodes(ctx context.Context, path string) ([]string, error) {
	lines, err := loadLines(ctx, path)
	if err != nil {
		return nil, err
	}
	tree := llrb.Tree{}
	for _, l := range lines {
		tree.Insert(barcodeItem(l))
	}
	sorted := make([]string, 0, tree.Len())
	tree.Do(func(item llrb.Comparable) bool {
		sorted = append(sorted, string(item.(barcodeItem)))
		return false
	})
	return sorted, nil
}

// loadSNVList reads a VCF-like text file of candidate SNVs. Each line
// contributes (chrom, 1-based pos, ref, alt); ref/alt of "." or "N" is
// permitted and triggers per-SNV allele inference. Lines starting with
// "#" are skipped.
func loadSNVList(ctx context.Context, path string) ([]pileup.SNV, error) {
	lines, err := loadLines(ctx, path)
	if err != nil {
		return nil, err
	}
	snvs := make([]pileup.SNV, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return nil, errors.Errorf("config: malformed SNV line %q", line)
		}
		pos, perr := strconv.Atoi(fields[1])
		if perr != nil {
			return nil, errors.Wrapf(perr, "config: malformed SNV position %q", fields[1])
		}
		refIdx, altIdx, verr := parseAllelePair(fields[2], fields[3])
		if verr != nil {
			log.Error.Printf("config: dropping SNV %s:%s (%v)", fields[0], fields[1], verr)
			continue
		}
		snvs = append(snvs, pileup.SNV{
			Chrom:  fields[0],
			Pos:    pos - 1,
			RefIdx: refIdx,
			AltIdx: altIdx,
		})
	}
	return snvs, nil
}

// parseAllelePair converts the ref/alt text fields to base indices.
// "." or "N" on either side means "unknown, infer from data." A
// concretely declared ref==alt is a configuration error (Open Question
// (c)): there is no sensible variant with identical alleles.
func parseAllelePair(ref, alt string) (refIdx, altIdx int, err error) {
	refIdx = parseAlleleField(ref)
	altIdx = parseAlleleField(alt)
	if refIdx != pileup.UnknownBase && refIdx == altIdx {
		return 0, 0, errors.Errorf("config: SNV has identical ref/alt allele %q", ref)
	}
	return refIdx, altIdx, nil
}

func parseAlleleField(f string) int {
	if f == "." || f == "" || f == "N" || f == "n" {
		return pileup.UnknownBase
	}
	return int(baseenum.ASCIIToEnum(f[0]))
}

