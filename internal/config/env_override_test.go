package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("TOLTECA_DATABASE_URL overrides default", func(t *testing.T) {
		t.Setenv("TOLTECA_DATABASE_URL", "postgres://localhost/catalog")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "postgres://localhost/catalog", cfg.DatabaseURL)
	})

	t.Run("TOLTECA_DISABLED_INTERFACES parses a comma list", func(t *testing.T) {
		t.Setenv("TOLTECA_DISABLED_INTERFACES", "1, 6,9")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, []int{1, 6, 9}, cfg.DisabledInterfaces)
	})

	t.Run("TOLTECA_STATE_BACKEND overrides default", func(t *testing.T) {
		t.Setenv("TOLTECA_STATE_BACKEND", "filesystem")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, StateBackendFilesystem, cfg.StateBackend)
	})
}

func TestExpectedInterfaceCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInterfaceCount = 13
	cfg.DisabledInterfaces = []int{1, 6}
	assert.Equal(t, 11, cfg.ExpectedInterfaceCount())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.StateBackend = StateBackendFilesystem
	cfg.StateDir = ""
	assert.Error(t, cfg.Validate())
}
