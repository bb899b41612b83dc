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

// Package driver partitions the candidate SNV list across workers,
// dispatches them, and merges their shard output into the final
// cellSNP.* files, per spec.md 4.7 and 5.
package driver

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/cellsnp/output"
	"github.com/grailbio/cellsnp/pileup"
	"github.com/grailbio/cellsnp/worker"
	"github.com/klauspost/compress/gzip"
	"github.com/minio/highwayhash"
)

// Config bundles everything the driver needs beyond the SNV list
// itself.
type Config struct {
	Inputs           []worker.Input
	GroupNames       []string
	Policy           pileup.Policy
	Threads          int
	OutDir           string
	ExpectUMIsPerSNV int
	Gzip             bool
}

// Result reports the end-of-run summary the caller (cmd/cellsnp) logs.
type Result struct {
	SNVsEmitted int
	Fingerprint [highwayhash.Size]byte
}

var fingerprintKey = [highwayhash.Size]byte{}

// partition splits n items into at most nWorkers contiguous slices of
// size ceil(n/nWorkers), the last slice absorbing the remainder, per
// spec.md 5. When n is small this yields fewer than nWorkers slices
// (partition(2, 5) returns two).
func partition(n, nWorkers int) [][2]int {
	if nWorkers < 1 {
		nWorkers = 1
	}
	size := (n + nWorkers - 1) / nWorkers
	if size < 1 {
		size = 1
	}
	var ranges [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	if len(ranges) == 0 {
		ranges = append(ranges, [2]int{0, 0})
	}
	return ranges
}

// Run executes the full partitioned pileup over snvs and writes the
// final output files under cfg.OutDir.
func Run(ctx context.Context, snvs []pileup.SNV, cfg Config) (Result, error) {
	shardDir, err := ioutil.TempDir("", "cellsnp-shard")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(shardDir)

	ranges := partition(len(snvs), cfg.Threads)
	nWorkers := len(ranges)
	results := make([]worker.Result, nWorkers)

	wcfg := worker.Config{
		Inputs:           cfg.Inputs,
		GroupNames:       cfg.GroupNames,
		Policy:           cfg.Policy,
		ExpectUMIsPerSNV: cfg.ExpectUMIsPerSNV,
		ShardDir:         shardDir,
	}

	e := errors.Once{}
	runErr := traverse.Each(nWorkers, func(i int) error {
		slice := snvs[ranges[i][0]:ranges[i][1]]
		res, werr := worker.Run(ctx, i, slice, wcfg)
		e.Set(werr)
		if werr != nil {
			return werr
		}
		results[i] = res
		log.Debug.Printf("worker %d: %d SNVs emitted", i, res.SNVCount)
		return nil
	})
	if runErr != nil {
		return Result{}, fmt.Errorf("driver: %w (%v)", runErr, e.Err())
	}

	if err := merge(ctx, cfg, shardDir, results); err != nil {
		return Result{}, fmt.Errorf("driver: merge: %w", err)
	}

	total := 0
	for _, r := range results {
		total += r.SNVCount
	}
	fp, err := fingerprint(ctx, cfg.OutDir, cfg.Gzip)
	if err != nil {
		return Result{}, fmt.Errorf("driver: fingerprint: %w", err)
	}
	return Result{SNVsEmitted: total, Fingerprint: fp}, nil
}

func merge(ctx context.Context, cfg Config, shardDir string, results []worker.Result) error {
	cols := len(cfg.GroupNames)
	var rowsTotal, nrAD, nrDP, nrOth int
	for _, r := range results {
		rowsTotal += r.SNVCount
		nrAD += r.NrAD
		nrDP += r.NrDP
		nrOth += r.NrOth
	}

	type matrixSpec struct {
		name string
		shard string
		nnz  int
	}
	specs := []matrixSpec{
		{output.ADMatrixName, "mtx_AD", nrAD},
		{output.DPMatrixName, "mtx_DP", nrDP},
		{output.OTHMatrixName, "mtx_OTH", nrOth},
	}
	for _, sp := range specs {
		mw, err := output.CreateMatrix(ctx, cfg.OutDir, sp.name)
		if err != nil {
			return err
		}
		if err := mw.WriteTotals(rowsTotal, cols, sp.nnz); err != nil {
			return err
		}
		row := 1
		for i := range results {
			path := shardPath(shardDir, sp.shard, i)
			if err := mw.MergeShard(ctx, path, &row); err != nil {
				return err
			}
		}
		if err := mw.Close(); err != nil {
			return err
		}
	}

	vw, err := output.CreateVCF(ctx, cfg.OutDir, output.BaseVCFName, nil, cfg.Gzip)
	if err != nil {
		return err
	}
	for i := range results {
		if err := vw.Concat(ctx, shardPath(shardDir, "vcf_base", i)); err != nil {
			return err
		}
	}
	if err := vw.Close(); err != nil {
		return err
	}

	if cfg.Policy.Genotype {
		cw, err := output.CreateVCF(ctx, cfg.OutDir, output.CellsVCFName, cfg.GroupNames, cfg.Gzip)
		if err != nil {
			return err
		}
		for i := range results {
			if err := cw.Concat(ctx, shardPath(shardDir, "vcf_cells", i)); err != nil {
				return err
			}
		}
		if err := cw.Close(); err != nil {
			return err
		}
	}

	return output.WriteSamples(ctx, cfg.OutDir, cfg.GroupNames)
}

func shardPath(dir, prefix string, idx int) string {
	return fmt.Sprintf("%s/%s.%d", dir, prefix, idx)
}

// fingerprint reads back the emitted base VCF and computes a
// HighwayHash digest over its canonicalized, sorted rows, so that runs
// with different thread counts (and therefore different on-disk row
// order) yield the same value, per spec.md 8's partition-invariance
// property.
func fingerprint(ctx context.Context, outDir string, gzipped bool) ([highwayhash.Size]byte, error) {
	name := output.BaseVCFName
	if gzipped {
		name += ".gz"
	}
	raw, err := ioutil.ReadFile(outDir + "/" + name)
	if err != nil {
		return [highwayhash.Size]byte{}, err
	}
	data := raw
	if gzipped {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return [highwayhash.Size]byte{}, err
		}
		data, err = ioutil.ReadAll(zr)
		if err != nil {
			return [highwayhash.Size]byte{}, err
		}
		if err := zr.Close(); err != nil {
			return [highwayhash.Size]byte{}, err
		}
	}
	lines := splitLines(data)
	var rows []string
	for _, l := range lines {
		if len(l) == 0 || l[0] == '#' {
			continue
		}
		rows = append(rows, l)
	}
	sort.Strings(rows)
	buf := []byte{}
	for _, r := range rows {
		buf = append(buf, r...)
		buf = append(buf, '\n')
	}
	return highwayhash.Sum(buf, fingerprintKey[:]), nil
}

func splitLines(data []byte) []string {
	var out []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			out = append(out, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, string(data[start:]))
	}
	return out
}
