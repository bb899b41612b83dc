package worker

import (
	"bytes"
	"testing"

	"github.com/grailbio/cellsnp/pileup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMatrixLineSparse(t *testing.T) {
	plps := []*pileup.Plp{
		pileup.NewPlp(false, 0),
		pileup.NewPlp(false, 0),
		pileup.NewPlp(false, 0),
	}
	plps[0].AD = 0
	plps[1].AD = 5
	plps[2].AD = 0

	var buf bytes.Buffer
	require.NoError(t, writeMatrixLine(&buf, plps, nil, func(p *pileup.Plp) uint32 { return p.AD }))
	assert.Equal(t, "2\t5\n\n", buf.String())
}

func TestShardPathsGenotypeToggle(t *testing.T) {
	ad, dp, oth, base, cells := shardPaths("/tmp/x", 3, false)
	assert.Equal(t, "/tmp/x/mtx_AD.3", ad)
	assert.Equal(t, "/tmp/x/mtx_DP.3", dp)
	assert.Equal(t, "/tmp/x/mtx_OTH.3", oth)
	assert.Equal(t, "/tmp/x/vcf_base.3", base)
	assert.Equal(t, "", cells)

	_, _, _, _, cells = shardPaths("/tmp/x", 3, true)
	assert.Equal(t, "/tmp/x/vcf_cells.3", cells)
}

func TestGenotypeCallBestHypothesis(t *testing.T) {
	p := pileup.NewPlp(false, 0)
	p.GL = []float64{12, 0, 20}
	assert.Equal(t, "0/1", genotypeCall(p, false))
}

func TestGenotypeCallNoCoverage(t *testing.T) {
	p := pileup.NewPlp(false, 0)
	assert.Equal(t, "./.", genotypeCall(p, false))
}

func TestJoinFloatsAsInts(t *testing.T) {
	assert.Equal(t, "12,0,20", joinFloatsAsInts([]float64{12, 0, 20}))
	assert.Equal(t, ".", joinFloatsAsInts(nil))
}
