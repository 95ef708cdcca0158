package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/wheel-filter/internal/api"
	"github.com/char5742/wheel-filter/internal/config"
)

func TestStartWatchers_ReloadsConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, config.SaveConfig(cfgPath, config.DefaultConfig()))

	service, err := api.NewScrollService(config.DefaultConfig())
	require.NoError(t, err)

	stop := startWatchers(service, cfgPath)
	defer stop()

	updated := config.DefaultConfig()
	updated.Filter.TimeConstantMS = 40
	require.NoError(t, config.SaveConfig(cfgPath, updated))

	assert.Eventually(t, func() bool {
		return service.Config().Filter.TimeConstantMS == 40
	}, 5*time.Second, 20*time.Millisecond)
}
