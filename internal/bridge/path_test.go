package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

func TestResolveSourcePathLocal(t *testing.T) {
	loc := model.Location{RootURI: "file:///data_lmt"}
	src := model.DataProductSource{SourceURI: "toltec0_000001_00_0000.nc"}
	assert.Equal(t, "/data_lmt/toltec0_000001_00_0000.nc", ResolveSourcePath(loc, src))
}

func TestResolveSourcePathS3(t *testing.T) {
	loc := model.Location{RootURI: "s3://toltec-archive/data"}
	src := model.DataProductSource{SourceURI: "obs_1001.parquet"}
	assert.Equal(t, "s3://toltec-archive/data/obs_1001.parquet", ResolveSourcePath(loc, src))
}

func TestResolveSourcePathHTTP(t *testing.T) {
	loc := model.Location{RootURI: "https://data.example.com/toltec"}
	src := model.DataProductSource{SourceURI: "obs_1001.parquet"}
	assert.Equal(t, "https://data.example.com/toltec/obs_1001.parquet", ResolveSourcePath(loc, src))
}

func TestIsLocalPath(t *testing.T) {
	assert.True(t, IsLocalPath("/data_lmt/obs_1001.parquet"))
	assert.False(t, IsLocalPath("s3://bucket/obs_1001.parquet"))
	assert.False(t, IsLocalPath("https://example.com/obs_1001.parquet"))
}
