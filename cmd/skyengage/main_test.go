package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bluesky-social/skyengage/internal/config"
	"github.com/bluesky-social/skyengage/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	dir := t.TempDir()
	cfg := &config.Config{Storage: config.Storage{Directory: filepath.Join(dir, "state")}}
	store, closeStore, err := openStore(cfg)
	require.NoError(err)
	_, ok := store.(*state.FileStore)
	assert.True(ok)
	require.NoError(store.Save(ctx, "a.example.com", state.NewAccountState()))
	assert.NoError(closeStore())

	cfg.Storage.DatabaseURL = "sqlite://" + filepath.Join(dir, "state.sqlite")
	store, closeStore, err = openStore(cfg)
	require.NoError(err)
	_, ok = store.(*state.SQLStore)
	assert.True(ok)
	require.NoError(store.Save(ctx, "a.example.com", state.NewAccountState()))
	assert.NoError(closeStore())

	cfg.Storage.DatabaseURL = "mysql://localhost"
	_, _, err = openStore(cfg)
	var cerr *config.Error
	assert.True(errors.As(err, &cerr))
}

func TestRunRequiresConfig(t *testing.T) {
	err := run([]string{"skyengage", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	var cerr *config.Error
	assert.True(t, errors.As(err, &cerr))
}

func TestRunDryRun(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	doc := "storage:\n  directory: " + filepath.Join(dir, "state") + "\naccounts:\n  - handle: a.example.com\n    app_password: x\n    follow_targets:\n      - handle: t.example.com\n"
	require.NoError(os.WriteFile(p, []byte(doc), 0o600))

	require.NoError(run([]string{"skyengage", "--config", p, "--dry-run", "--log-level", "warn"}))
}

