package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
)

func TestProductMetaRoundTrip(t *testing.T) {
	in := RawObsMeta{
		Name: "raw_tcs_1000_0_0", Master: "tcs", Obsnum: 1000,
		DataKind: DataKindRawTimeStream,
	}
	data, err := EncodeProductMeta(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tag":"raw_obs"`)

	decoded, err := DecodeProductMeta(data)
	require.NoError(t, err)
	got, ok := decoded.(RawObsMeta)
	require.True(t, ok)
	assert.Equal(t, in.Master, got.Master)
	assert.Equal(t, in.Obsnum, got.Obsnum)
}

func TestDecodeProductMetaUnknownTag(t *testing.T) {
	_, err := DecodeProductMeta([]byte(`{"tag":"bogus"}`))
	require.Error(t, err)
	assert.True(t, catalogerr.Is(err, catalogerr.InvariantViolation))
}

func TestSourceMetaRoundTrip(t *testing.T) {
	in := RoachInterfaceMeta{Interface: "toltec0", RoachID: 0, NetworkID: 0, DataKind: DataKindVnaSweep}
	data, err := EncodeSourceMeta(in)
	require.NoError(t, err)

	decoded, err := DecodeSourceMeta(data)
	require.NoError(t, err)
	got, ok := decoded.(RoachInterfaceMeta)
	require.True(t, ok)
	assert.Equal(t, "toltec0", got.Interface)
}
