package config

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cellsnp/pileup"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadBarcodeModeSortsAndDedups(t *testing.T) {
	dir, err := ioutil.TempDir("", "cellsnp-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	barcodes := writeTempFile(t, dir, "barcodes.txt", "TTT-1\nAAA-1\nAAA-1\nCCC-1\n")
	snvList := writeTempFile(t, dir, "snvs.txt", "chr1\t100\tA\tG\n")

	opts := NewOpts()
	opts.InputPaths = []string{"a.bam"}
	opts.BarcodePath = barcodes
	opts.SNVListPath = snvList

	resolved, err := Load(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, resolved.UseBarcode)
	assert.Equal(t, []string{"AAA-1", "CCC-1", "TTT-1"}, resolved.GroupNames)
	require.Len(t, resolved.SNVs, 1)
	assert.Equal(t, 99, resolved.SNVs[0].Pos)
}

func TestLoadSampleModeRequiresMatchingCount(t *testing.T) {
	dir, err := ioutil.TempDir("", "cellsnp-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	snvList := writeTempFile(t, dir, "snvs.txt", "chr1\t100\tA\tG\n")

	opts := NewOpts()
	opts.InputPaths = []string{"a.bam", "b.bam"}
	opts.SampleIDs = []string{"sampleA"}
	opts.SNVListPath = snvList

	_, err = Load(context.Background(), opts)
	assert.Error(t, err)
}

func TestLoadSampleModeSucceeds(t *testing.T) {
	dir, err := ioutil.TempDir("", "cellsnp-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	snvList := writeTempFile(t, dir, "snvs.txt", "chr1\t100\tA\tG\n")

	opts := NewOpts()
	opts.InputPaths = []string{"a.bam", "b.bam"}
	opts.SampleIDs = []string{"sampleA", "sampleB"}
	opts.SNVListPath = snvList

	resolved, err := Load(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, resolved.UseBarcode)
	assert.Equal(t, []string{"sampleA", "sampleB"}, resolved.GroupNames)
}

func TestLoadRejectsMutuallyExclusiveRosters(t *testing.T) {
	dir, err := ioutil.TempDir("", "cellsnp-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	barcodes := writeTempFile(t, dir, "barcodes.txt", "AAA-1\n")
	snvList := writeTempFile(t, dir, "snvs.txt", "chr1\t100\tA\tG\n")

	opts := NewOpts()
	opts.InputPaths = []string{"a.bam"}
	opts.BarcodePath = barcodes
	opts.SampleIDs = []string{"sampleA"}
	opts.SNVListPath = snvList

	_, err = Load(context.Background(), opts)
	assert.Error(t, err)
}

func TestLoadRejectsNoRoster(t *testing.T) {
	dir, err := ioutil.TempDir("", "cellsnp-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	snvList := writeTempFile(t, dir, "snvs.txt", "chr1\t100\tA\tG\n")

	opts := NewOpts()
	opts.InputPaths = []string{"a.bam"}
	opts.SNVListPath = snvList

	_, err = Load(context.Background(), opts)
	assert.Error(t, err)
}

func TestParseAllelePairRejectsIdenticalAlleles(t *testing.T) {
	_, _, err := parseAllelePair("A", "A")
	assert.Error(t, err)
}

func TestParseAllelePairInfersUnknown(t *testing.T) {
	refIdx, altIdx, err := parseAllelePair(".", "N")
	require.NoError(t, err)
	assert.Equal(t, pileup.UnknownBase, refIdx)
	assert.Equal(t, pileup.UnknownBase, altIdx)
}

func TestLoadSNVListDropsIdenticalAlleleSNV(t *testing.T) {
	dir, err := ioutil.TempDir("", "cellsnp-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	snvList := writeTempFile(t, dir, "snvs.txt", "chr1\t100\tA\tA\nchr1\t200\tA\tG\n")

	snvs, err := loadSNVList(context.Background(), snvList)
	require.NoError(t, err)
	require.Len(t, snvs, 1)
	assert.Equal(t, 199, snvs[0].Pos)
}

func TestLoadSNVListRejectsMalformedLine(t *testing.T) {
	dir, err := ioutil.TempDir("", "cellsnp-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	snvList := writeTempFile(t, dir, "snvs.txt", "chr1\t100\tA\n")

	_, err = loadSNVList(context.Background(), snvList)
	assert.Error(t, err)
}

func TestLoadLinesTransparentGzip(t *testing.T) {
	dir, err := ioutil.TempDir("", "cellsnp-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "barcodes.txt.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("AAA-1\nBBB-1\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	lines, err := loadLines(vcontext.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA-1", "BBB-1"}, lines)
}
