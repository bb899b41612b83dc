package numerics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetQualVectorObservedBaseDominates(t *testing.T) {
	var v [4]float64
	GetQualVector(30, 0, DefaultMaxQual, DefaultMinProb, &v)
	assert.True(t, v[0] > v[1])
	assert.True(t, v[0] > v[2])
	assert.True(t, v[0] > v[3])
}

func TestGetQualVectorNSpreadsEvenly(t *testing.T) {
	var v [4]float64
	GetQualVector(30, 4, DefaultMaxQual, DefaultMinProb, &v)
	for _, p := range v {
		assert.Equal(t, 0.25, p)
	}
}

func TestGetQualVectorFloor(t *testing.T) {
	var v [4]float64
	GetQualVector(60, 0, DefaultMaxQual, 0.1, &v)
	for _, p := range v {
		assert.True(t, p >= 0.1)
	}
}

func TestQualMatrixToGLBestHypothesisIsZero(t *testing.T) {
	var qmat [5][4]float64
	// All reads strongly support the alt allele (column 1).
	for i := 0; i < 20; i++ {
		qmat[1][1] += 0.97
		qmat[1][0] += 0.01
	}
	var gl []float64
	ngl, err := QualMatrixToGL(&qmat, 0, 1, false, &gl)
	assert.NoError(t, err)
	assert.Equal(t, 3, ngl)
	// Homozygous-alt (dosage 2, last entry) should be the most likely, i.e. PL=0.
	minIdx := 0
	for i, v := range gl {
		if v < gl[minIdx] {
			minIdx = i
		}
	}
	assert.Equal(t, 2, minIdx)
	assert.Equal(t, 0.0, gl[minIdx])
}

func TestQualMatrixToGLDoubleGL(t *testing.T) {
	var qmat [5][4]float64
	qmat[0][0] = 10
	qmat[1][1] = 10
	var gl []float64
	ngl, err := QualMatrixToGL(&qmat, 0, 1, true, &gl)
	assert.NoError(t, err)
	assert.Equal(t, 5, ngl)
}

func TestQualMatrixToGLBadIndex(t *testing.T) {
	var qmat [5][4]float64
	var gl []float64
	_, err := QualMatrixToGL(&qmat, -1, 1, false, &gl)
	assert.Error(t, err)
}
