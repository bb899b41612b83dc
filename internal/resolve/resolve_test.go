package resolve

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
)

func mustAux(t *testing.T, tag string, v interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(tag), v)
	assert.NoError(t, err)
	return aux
}

func TestResolveMalformedMissingUMI(t *testing.T) {
	rec := &sam.Record{Pos: 10, MapQ: 60, Cigar: sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 20)}}
	var probe Probe
	kind, err := Resolve(rec, 15, Filters{UseUMI: true, UMITag: "UR", MinMapQ: 0, MaxFlag: 255}, &probe)
	assert.NoError(t, err)
	assert.Equal(t, Malformed, kind)
}

func TestResolveFilteredByMapQ(t *testing.T) {
	rec := &sam.Record{
		Pos:   10,
		MapQ:  5,
		Cigar: sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 20)},
	}
	var probe Probe
	kind, err := Resolve(rec, 15, Filters{MinMapQ: 20, MaxFlag: 255, MinLen: 1}, &probe)
	assert.NoError(t, err)
	assert.Equal(t, Filtered, kind)
}

func TestResolveFilteredByDeletion(t *testing.T) {
	rec := &sam.Record{
		Pos:  10,
		MapQ: 60,
		Cigar: sam.Cigar{
			sam.NewCigarOp(sam.CigarMatch, 5),
			sam.NewCigarOp(sam.CigarDeletion, 5),
			sam.NewCigarOp(sam.CigarMatch, 5),
		},
	}
	var probe Probe
	// pos 16 falls inside the deletion [15,20).
	kind, err := Resolve(rec, 16, Filters{MinMapQ: 0, MaxFlag: 255, MinLen: 1}, &probe)
	assert.NoError(t, err)
	assert.Equal(t, Filtered, kind)
}

func TestResolveFilteredByMinLen(t *testing.T) {
	rec := &sam.Record{
		Pos:   10,
		MapQ:  60,
		Cigar: sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 20)},
		Seq:   sam.NewSeq([]byte("ACGTACGTACGTACGTACGT")),
		Qual:  make([]byte, 20),
	}
	var probe Probe
	kind, err := Resolve(rec, 15, Filters{MinMapQ: 0, MaxFlag: 255, MinLen: 100}, &probe)
	assert.NoError(t, err)
	assert.Equal(t, Filtered, kind)
}

func TestResolveErrorCigarNeverReachesPos(t *testing.T) {
	rec := &sam.Record{
		Pos:   10,
		MapQ:  60,
		Cigar: sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 3)},
	}
	var probe Probe
	_, err := Resolve(rec, 50, Filters{MinMapQ: 0, MaxFlag: 255, MinLen: 1}, &probe)
	assert.Error(t, err)
}
