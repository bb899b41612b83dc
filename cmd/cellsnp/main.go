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
package main

/*
cellsnp computes, for a set of candidate single-nucleotide variants, the
per-cell (or per-sample) reference/alternate/other read depth from one
or more indexed alignment files, emitting sparse MatrixMarket matrices
and VCF summaries.
*/

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cellsnp/config"
	"github.com/grailbio/cellsnp/driver"
	"github.com/grailbio/cellsnp/internal/manifest"
	"github.com/grailbio/cellsnp/output"
	"github.com/grailbio/cellsnp/worker"
)

var (
	inputFiles   = flag.String("input-files", "", "Comma-separated list of indexed alignment files")
	indexFiles   = flag.String("index-files", "", "Comma-separated list of index paths, parallel to -input-files; empty entries default to path+\".bai\"")
	outDir       = flag.String("out-dir", "", "Output directory (required)")
	snvList      = flag.String("snv-list", "", "Candidate SNV list path (required)")
	barcodeFile  = flag.String("barcode-file", "", "Barcode list path; mutually exclusive with -sample-ids")
	sampleIDs    = flag.String("sample-ids", "", "Comma-separated sample-ID list, one per input file, in order")
	threads      = flag.Int("threads", 1, "Number of worker threads")
	cellTag      = flag.String("cell-tag", "CB", "Cell-barcode aux tag; \"None\" disables barcode demux")
	umiTag       = flag.String("umi-tag", "Auto", "UMI aux tag; \"Auto\" resolves to \"UR\" when barcodes are used, none otherwise; \"None\" disables UMI dedup")
	minCount     = flag.Uint("min-count", 20, "Minimum total read count for an SNV to be emitted")
	minMAF       = flag.Float64("min-maf", 0.0, "Minimum minor-allele frequency for an SNV to be emitted")
	doubleGL     = flag.Bool("double-gl", false, "Also emit heterozygous dosage likelihoods 0.5 and 1.5")
	minLen       = flag.Int("min-len", 30, "Minimum aligned read length")
	minMAPQ      = flag.Uint("min-mapq", 20, "Minimum read mapping quality")
	maxFlag      = flag.Uint("max-flag", 255, "Reads with FLAG above this value are skipped")
	genotype     = flag.Bool("genotype", false, "Emit per-group genotype likelihoods and the cells VCF")
	gzipOut      = flag.Bool("gzip", false, "Gzip the final VCF outputs")
	snapCorrect  = flag.Bool("snap-correct-barcodes", false, "Correct single-edit barcode mismatches against the roster")
	expectUMIs   = flag.Int("expect-umis-per-snv", 4, "Expected distinct UMIs per group per SNV, used to presize the dedup index")
)

func cellsnpUsage() {
	fmt.Printf("Usage: %s [OPTIONS]\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func main() {
	flag.Usage = cellsnpUsage
	shutdown := grail.Init()
	defer shutdown()
	flag.Parse()

	if *outDir == "" {
		log.Fatalf("-out-dir is required")
	}
	if *snvList == "" {
		log.Fatalf("-snv-list is required")
	}
	inputs := splitCSV(*inputFiles)
	if len(inputs) == 0 {
		log.Fatalf("-input-files is required")
	}
	indices := splitCSV(*indexFiles)
	if len(indices) != 0 && len(indices) != len(inputs) {
		log.Fatalf("-index-files must list one entry per -input-files value, or be empty")
	}

	opts := config.NewOpts()
	opts.InputPaths = inputs
	opts.IndexPaths = indices
	opts.OutDir = *outDir
	opts.SNVListPath = *snvList
	opts.BarcodePath = *barcodeFile
	opts.SampleIDs = splitCSV(*sampleIDs)
	opts.Threads = *threads
	opts.CellTag = normalizeNone(*cellTag)
	opts.UMITag = normalizeNone(*umiTag)
	opts.MinCount = uint32(*minCount)
	opts.MinMAF = *minMAF
	opts.DoubleGL = *doubleGL
	opts.MinLen = *minLen
	opts.MinMAPQ = byte(*minMAPQ)
	opts.MaxFlag = uint16(*maxFlag)
	opts.Genotype = *genotype
	opts.Gzip = *gzipOut
	opts.SnapCorrectBarcodes = *snapCorrect

	ctx := vcontext.Background()
	resolved, err := config.Load(ctx, opts)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	workerInputs := make([]worker.Input, len(inputs))
	for i, path := range inputs {
		idx := ""
		if len(indices) > 0 {
			idx = indices[i]
		}
		workerInputs[i] = worker.Input{Path: path, IndexPath: idx}
	}

	start := time.Now().UnixNano()
	log.Printf("cellsnp: start %s", time.Unix(0, start).Format(time.RFC3339))
	dcfg := driver.Config{
		Inputs:           workerInputs,
		GroupNames:       resolved.GroupNames,
		Policy:           resolved.Policy,
		Threads:          *threads,
		OutDir:           *outDir,
		ExpectUMIsPerSNV: *expectUMIs,
		Gzip:             *gzipOut,
	}
	result, err := driver.Run(ctx, resolved.SNVs, dcfg)
	if err != nil {
		log.Fatalf("driver: %v", err)
	}
	end := time.Now().UnixNano()
	log.Printf("cellsnp: end %s (elapsed %s)", time.Unix(0, end).Format(time.RFC3339), time.Duration(end-start))

	m := &manifest.Manifest{
		Threads:       int32(*threads),
		MinCount:      opts.MinCount,
		MinMaf:        opts.MinMAF,
		MinMapq:       uint32(opts.MinMAPQ),
		MaxFlag:       uint32(opts.MaxFlag),
		MinLen:        int32(opts.MinLen),
		Genotype:      opts.Genotype,
		DoubleGl:      opts.DoubleGL,
		StartUnixNano: start,
		EndUnixNano:   end,
	}
	if err := writeManifest(ctx, *outDir, m); err != nil {
		log.Error.Printf("writing manifest: %v", err)
	}

	log.Printf("cellsnp: %d SNVs emitted, fingerprint=%x", result.SNVsEmitted, result.Fingerprint)
	log.Debug.Printf("exiting")
}

func normalizeNone(s string) string {
	if s == "None" {
		return ""
	}
	return s
}

func writeManifest(ctx context.Context, dir string, m *manifest.Manifest) error {
	data, err := manifest.Marshal(m)
	if err != nil {
		return err
	}
	f, err := file.Create(ctx, filepath.Join(dir, output.ManifestName))
	if err != nil {
		return err
	}
	if _, err := f.Writer(ctx).Write(data); err != nil {
		f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}
