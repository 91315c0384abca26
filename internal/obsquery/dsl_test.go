package obsquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseObsSpecEmptyMeansLatest(t *testing.T) {
	assert.Equal(t, Spec{}, ParseObsSpec(""))
}

func TestParseObsSpecObsnumOnly(t *testing.T) {
	s := ParseObsSpec("123456")
	assert.True(t, s.HasObsnum)
	assert.Equal(t, 123456, s.Obsnum)
}

func TestParseObsSpecMasterPrefix(t *testing.T) {
	s := ParseObsSpec("tcs-123456")
	assert.Equal(t, "tcs", s.Master)
	assert.Equal(t, 123456, s.Obsnum)
}

func TestParseObsSpecSequentialTriplet(t *testing.T) {
	s := ParseObsSpec("123456-1-5")
	assert.Equal(t, 123456, s.Obsnum)
	assert.Equal(t, 1, s.Subobsnum)
	assert.Equal(t, 5, s.Scannum)
	assert.False(t, s.HasRoach)
}

func TestParseObsSpecBackwardSeparatorSkipsToRoach(t *testing.T) {
	s := ParseObsSpec("1000/0")
	assert.Equal(t, 1000, s.Obsnum)
	assert.True(t, s.HasRoach)
	assert.Equal(t, 0, s.Roach)
	assert.False(t, s.HasSubobsnum)
	assert.False(t, s.HasScannum)
}

func TestParseObsSpecMixedForwardThenBackward(t *testing.T) {
	s := ParseObsSpec("1000-0/0")
	assert.Equal(t, 1000, s.Obsnum)
	assert.Equal(t, 0, s.Subobsnum)
	assert.True(t, s.HasSubobsnum)
	assert.True(t, s.HasRoach)
	assert.Equal(t, 0, s.Roach)
	assert.False(t, s.HasScannum)
}

func TestParseObsSpecBackwardSkipsSubobsnum(t *testing.T) {
	s := ParseObsSpec("1000/0/0")
	assert.Equal(t, 1000, s.Obsnum)
	assert.True(t, s.HasScannum)
	assert.Equal(t, 0, s.Scannum)
	assert.True(t, s.HasRoach)
	assert.Equal(t, 0, s.Roach)
	assert.False(t, s.HasSubobsnum)
}

func TestParseObsSpecWildcardSlicesEquivalentToSlash(t *testing.T) {
	s := ParseObsSpec("1000-[]-[]-1")
	assert.Equal(t, 1000, s.Obsnum)
	assert.True(t, s.HasRoach)
	assert.Equal(t, 1, s.Roach)
	require := assert.New(t)
	require.NotNil(s.SubobsnumRange)
	require.NotNil(s.ScannumRange)
}

func TestParseObsSpecWildcardObsnumWithRoach(t *testing.T) {
	s := ParseObsSpec("{}/1")
	assert.False(t, s.HasObsnum)
	assert.True(t, s.HasRoach)
	assert.Equal(t, 1, s.Roach)
}

func TestParseObsSpecSubobsnumList(t *testing.T) {
	s := ParseObsSpec("1000-{0,1,2}")
	assert.Equal(t, 1000, s.Obsnum)
	assert.Equal(t, []int{0, 1, 2}, s.SubobsnumList)
}

func TestParseObsSpecSubobsnumSlice(t *testing.T) {
	s := ParseObsSpec("1000-[0:5]")
	assert.Equal(t, 1000, s.Obsnum)
	if assert.NotNil(t, s.SubobsnumRange) {
		assert.Equal(t, 0, *s.SubobsnumRange.Start)
		assert.Equal(t, 5, *s.SubobsnumRange.Stop)
		for v := 0; v < 5; v++ {
			assert.True(t, s.SubobsnumRange.contains(v, 100))
		}
		assert.False(t, s.SubobsnumRange.contains(5, 100))
	}
}

func TestParseObsSpecFilepath(t *testing.T) {
	s := ParseObsSpec("/data_lmt/toltec/toltec0_1000_0_0.nc")
	assert.Equal(t, "/data_lmt/toltec/toltec0_1000_0_0.nc", s.Filepath)
}

func TestParseObsSpecInvalidListLogsAndIgnores(t *testing.T) {
	s := ParseObsSpec("1000-{a,b}")
	assert.Equal(t, 1000, s.Obsnum)
	assert.Nil(t, s.SubobsnumList)
	assert.False(t, s.HasSubobsnum)
}
