package filenameparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

func TestParseFilename(t *testing.T) {
	t.Run("roach timestream", func(t *testing.T) {
		p := ParseFilename("toltec0_123456_001_0000_timestream.nc")
		require.NotNil(t, p)
		assert.Equal(t, "toltec0", p.Interface)
		require.NotNil(t, p.Roach)
		assert.Equal(t, 0, *p.Roach)
		assert.Equal(t, 123456, p.Obsnum)
		assert.Equal(t, 1, p.Subobsnum)
		assert.Equal(t, 0, p.Scannum)
		assert.Equal(t, model.DataKindRawTimeStream, p.DataKind)
		assert.True(t, p.HasDataKind)
	})

	t.Run("hwp has no roach", func(t *testing.T) {
		p := ParseFilename("hwp_123456_001_0000.nc")
		require.NotNil(t, p)
		assert.Equal(t, "hwp", p.Interface)
		assert.Nil(t, p.Roach)
		assert.False(t, p.HasDataKind)
	})

	t.Run("optional timestamp segment", func(t *testing.T) {
		p := ParseFilename("toltec0_113533_000_0001_2024_03_19_05_27_52_targsweep.nc")
		require.NotNil(t, p)
		assert.Equal(t, 113533, p.Obsnum)
		require.NotNil(t, p.Timestamp)
		assert.Equal(t, model.DataKindTargetSweep, p.DataKind)
	})

	t.Run("non-matching name returns nil", func(t *testing.T) {
		assert.Nil(t, ParseFilename("not_a_toltec_file.txt"))
	})

	t.Run("vnasweep and tune suffixes", func(t *testing.T) {
		assert.Equal(t, model.DataKindVnaSweep, ParseFilename("toltec1_1_0_0_vnasweep.nc").DataKind)
		assert.Equal(t, model.DataKindTune, ParseFilename("toltec1_1_0_0_tune.nc").DataKind)
	})
}

func TestMasterFromNumeric(t *testing.T) {
	m, ok := MasterFromNumeric(0)
	assert.True(t, ok)
	assert.Equal(t, "tcs", m)

	_, ok = MasterFromNumeric(99)
	assert.False(t, ok)
}

func TestMismatch(t *testing.T) {
	roach := 0
	p := &ParsedFilename{Obsnum: 1001, Subobsnum: 0, Scannum: 0, Roach: &roach}

	t.Run("agreement", func(t *testing.T) {
		assert.False(t, Mismatch(p, HeaderQuartet{Obsnum: 1001, Subobsnum: 0, Scannum: 0, Roach: 0}))
	})

	t.Run("obsnum disagreement is a hard mismatch", func(t *testing.T) {
		assert.True(t, Mismatch(p, HeaderQuartet{Obsnum: 1002, Subobsnum: 0, Scannum: 0, Roach: 0}))
	})
}
