package pileup

import (
	"testing"

	"github.com/grailbio/cellsnp/baseenum"
	"github.com/stretchr/testify/assert"
)

func TestInferAllele(t *testing.T) {
	tests := []struct {
		bc             [baseenum.NEnum]uint32
		refIdx, altIdx int
	}{
		{[baseenum.NEnum]uint32{0, 0, 0, 0, 0}, 4, 4},
		{[baseenum.NEnum]uint32{10, 0, 5, 0, 0}, 0, 2},
		{[baseenum.NEnum]uint32{5, 5, 0, 0, 0}, 0, 1},
		{[baseenum.NEnum]uint32{0, 0, 5, 5, 0}, 2, 3},
	}
	for _, test := range tests {
		refIdx, altIdx := InferAllele(&test.bc)
		assert.Equal(t, test.refIdx, refIdx, "bc=%v", test.bc)
		assert.Equal(t, test.altIdx, altIdx, "bc=%v", test.bc)
	}
}
