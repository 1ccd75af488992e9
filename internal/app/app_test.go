package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/pkg/config"
	"chatsync/pkg/state"
)

func testConfig(t *testing.T, janitorOn bool) (config.EffectiveConfigResult, state.Paths) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, state.EnsureStateDirs(dir))
	cfg := &config.Config{}
	cfg.Server.DBPath = dir
	cfg.Security.JWTSecret = "0123456789abcdef"
	cfg.Janitor.Enabled = janitorOn
	cfg.ApplyDefaults()
	eff := config.EffectiveConfigResult{Config: cfg, Addr: "127.0.0.1:0", DBPath: dir, Source: "test"}
	return eff, state.PathsFor(dir)
}

func TestNewAndShutdown(t *testing.T) {
	eff, paths := testConfig(t, true)
	a, err := New(eff, paths, BuildInfo{Version: "test"})
	require.NoError(t, err)
	require.NotNil(t, a.janitor)
	assert.True(t, a.db.Ready())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
	assert.False(t, a.db.Ready())
}

func TestNewRequiresPaths(t *testing.T) {
	eff, _ := testConfig(t, false)
	_, err := New(eff, state.Paths{}, BuildInfo{})
	assert.Error(t, err)
	_, err = New(config.EffectiveConfigResult{}, state.PathsFor(t.TempDir()), BuildInfo{})
	assert.Error(t, err)
}

func TestNewRejectsBadJanitorCron(t *testing.T) {
	eff, paths := testConfig(t, true)
	eff.Config.Janitor.Cron = "nope"
	_, err := New(eff, paths, BuildInfo{})
	assert.Error(t, err)
}
