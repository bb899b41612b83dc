package driver

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/snappy"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cellsnp/worker"
	"github.com/grailbio/testutil"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionContiguousCeil(t *testing.T) {
	ranges := partition(10, 3)
	require.Len(t, ranges, 3)
	assert.Equal(t, [2]int{0, 4}, ranges[0])
	assert.Equal(t, [2]int{4, 8}, ranges[1])
	assert.Equal(t, [2]int{8, 10}, ranges[2])
}

func TestPartitionFewerItemsThanWorkers(t *testing.T) {
	ranges := partition(2, 5)
	total := 0
	for _, r := range ranges {
		total += r[1] - r[0]
	}
	assert.Equal(t, 2, total)
}

func writeShardFile(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := snappy.NewBufferedWriter(f)
	for _, l := range lines {
		_, err := w.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestMergeTwoWorkerShards(t *testing.T) {
	ctx := vcontext.Background()
	shardDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	outDir, cleanup2 := testutil.TempDir(t, "", "")
	defer cleanup2()

	// worker 0: one SNV, cell 1 has AD=2
	writeShardFile(t, filepath.Join(shardDir, "mtx_AD.0"), []string{"1\t2", ""})
	writeShardFile(t, filepath.Join(shardDir, "mtx_DP.0"), []string{"1\t2", ""})
	writeShardFile(t, filepath.Join(shardDir, "mtx_OTH.0"), []string{""})
	writeShardFile(t, filepath.Join(shardDir, "vcf_base.0"), []string{"chr1\t100\t.\tA\tC\t.\tPASS\tAD=2;DP=2;OTH=0"})

	// worker 1: one SNV, cell 2 has AD=1
	writeShardFile(t, filepath.Join(shardDir, "mtx_AD.1"), []string{"2\t1", ""})
	writeShardFile(t, filepath.Join(shardDir, "mtx_DP.1"), []string{"2\t3", ""})
	writeShardFile(t, filepath.Join(shardDir, "mtx_OTH.1"), []string{""})
	writeShardFile(t, filepath.Join(shardDir, "vcf_base.1"), []string{"chr2\t50\t.\tG\tT\t.\tPASS\tAD=1;DP=3;OTH=0"})

	cfg := Config{
		GroupNames: []string{"cellA", "cellB"},
		OutDir:     outDir,
	}
	results := []worker.Result{
		{WorkerIdx: 0, SNVCount: 1, NrAD: 1, NrDP: 1, NrOth: 0},
		{WorkerIdx: 1, SNVCount: 1, NrAD: 1, NrDP: 1, NrOth: 0},
	}
	require.NoError(t, merge(ctx, cfg, shardDir, results))

	adContent, err := ioutil.ReadFile(filepath.Join(outDir, "cellSNP.tag.AD.mtx"))
	require.NoError(t, err)
	assert.Contains(t, string(adContent), "2\t2\t2\n")
	assert.Contains(t, string(adContent), "1\t1\t2\n")
	assert.Contains(t, string(adContent), "2\t2\t1\n")

	base, err := ioutil.ReadFile(filepath.Join(outDir, "cellSNP.base.vcf"))
	require.NoError(t, err)
	assert.Contains(t, string(base), "chr1\t100")
	assert.Contains(t, string(base), "chr2\t50")
}

func TestMergeAndFingerprintGzipRoundTrip(t *testing.T) {
	ctx := vcontext.Background()
	shardDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	outDir, cleanup2 := testutil.TempDir(t, "", "")
	defer cleanup2()

	writeShardFile(t, filepath.Join(shardDir, "mtx_AD.0"), []string{"1\t2", ""})
	writeShardFile(t, filepath.Join(shardDir, "mtx_DP.0"), []string{"1\t2", ""})
	writeShardFile(t, filepath.Join(shardDir, "mtx_OTH.0"), []string{""})
	writeShardFile(t, filepath.Join(shardDir, "vcf_base.0"), []string{"chr1\t100\t.\tA\tC\t.\tPASS\tAD=2;DP=2;OTH=0"})

	cfg := Config{
		GroupNames: []string{"cellA", "cellB"},
		OutDir:     outDir,
		Gzip:       true,
	}
	results := []worker.Result{
		{WorkerIdx: 0, SNVCount: 1, NrAD: 1, NrDP: 1, NrOth: 0},
	}
	require.NoError(t, merge(ctx, cfg, shardDir, results))

	// merge must have written the gzip-suffixed file, not the plain one.
	_, err := os.Stat(filepath.Join(outDir, "cellSNP.base.vcf.gz"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "cellSNP.base.vcf"))
	require.True(t, os.IsNotExist(err))

	fp, err := fingerprint(ctx, outDir, cfg.Gzip)
	require.NoError(t, err)
	require.NotZero(t, fp)
}

func TestFingerprintOrderInvariant(t *testing.T) {
	ctx := vcontext.Background()
	dirA, cleanupA := testutil.TempDir(t, "", "")
	defer cleanupA()
	dirB, cleanupB := testutil.TempDir(t, "", "")
	defer cleanupB()

	rowsAB := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\nchr1\t100\t.\tA\tC\t.\tPASS\tAD=2;DP=2;OTH=0\nchr2\t50\t.\tG\tT\t.\tPASS\tAD=1;DP=3;OTH=0\n"
	rowsBA := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\nchr2\t50\t.\tG\tT\t.\tPASS\tAD=1;DP=3;OTH=0\nchr1\t100\t.\tA\tC\t.\tPASS\tAD=2;DP=2;OTH=0\n"
	require.NoError(t, ioutil.WriteFile(filepath.Join(dirA, "cellSNP.base.vcf"), []byte(rowsAB), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dirB, "cellSNP.base.vcf"), []byte(rowsBA), 0644))

	fpA, err := fingerprint(ctx, dirA, false)
	require.NoError(t, err)
	fpB, err := fingerprint(ctx, dirB, false)
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
}

func TestFingerprintGzipAware(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	rows := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\nchr1\t100\t.\tA\tC\t.\tPASS\tAD=2;DP=2;OTH=0\n"
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "cellSNP.base.vcf"), []byte(rows), 0644))
	fpPlain, err := fingerprint(ctx, dir, false)
	require.NoError(t, err)

	gzDir, cleanupGz := testutil.TempDir(t, "", "")
	defer cleanupGz()
	f, err := os.Create(filepath.Join(gzDir, "cellSNP.base.vcf.gz"))
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(rows))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	fpGzip, err := fingerprint(ctx, gzDir, true)
	require.NoError(t, err)
	assert.Equal(t, fpPlain, fpGzip)
}
