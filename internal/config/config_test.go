package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
storage:
  directory: /var/lib/skyengage
  database_url: sqlite://state.sqlite
default_follow_delay_seconds: 1
default_like_delay_seconds: 0.5
requests_per_second: 3
accounts:
  - handle: alice.example.com
    app_password: ${SKYENGAGE_TEST_PASSWORD}
    service: https://pds.example.com
    proxy: http://proxy.example.com:8080
    follow_delay_seconds: 4
    new_followers_page_size: 25
    follow_targets:
      - handle: target.example.com
        follow_limit: 20
        like_limit: 10
      - handle: other.example.com
        like_latest_post: false
    dm:
      enabled: true
      message: "Hi {displayName}!"
      limit_per_run: 5
      cooldown_hours: 24
`

func TestParseFull(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	t.Setenv("SKYENGAGE_TEST_PASSWORD", "abcd-efgh")

	cfg, err := Parse([]byte(fullConfig))
	require.NoError(err)

	assert.Equal("/var/lib/skyengage", cfg.Storage.Directory)
	assert.Equal("sqlite://state.sqlite", cfg.Storage.DatabaseURL)
	assert.Equal(3.0, cfg.RequestsPerSecond)
	require.Len(cfg.Accounts, 1)

	acct := &cfg.Accounts[0]
	assert.Equal("abcd-efgh", acct.AppPassword)
	assert.Equal("https://pds.example.com", acct.Service)
	assert.Equal(25, acct.NewFollowersPageSize)
	assert.Equal(4*time.Second, cfg.FollowDelay(acct))
	assert.Equal(500*time.Millisecond, cfg.LikeDelay(acct))

	require.Len(acct.FollowTargets, 2)
	first := acct.FollowTargets[0]
	assert.True(first.LikeLatestPost)
	require.NotNil(first.FollowLimit)
	assert.Equal(20, *first.FollowLimit)
	require.NotNil(first.LikeLimit)
	assert.Equal(10, *first.LikeLimit)

	second := acct.FollowTargets[1]
	assert.False(second.LikeLatestPost)
	assert.Nil(second.FollowLimit)
	assert.Nil(second.LikeLimit)

	assert.True(acct.DM.Active())
	assert.Equal(24*time.Hour, acct.DM.Cooldown())
	require.NotNil(acct.DM.LimitPerRun)
	assert.Equal(5, *acct.DM.LimitPerRun)
}

func TestParseDefaults(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	cfg, err := Parse([]byte(`
accounts:
  - handle: bob.example.com
    app_password: secret
`))
	require.NoError(err)

	assert.Equal(DefaultStorageDir, cfg.Storage.Directory)
	assert.Equal("", cfg.Storage.DatabaseURL)
	acct := &cfg.Accounts[0]
	assert.Equal(DefaultService, acct.Service)
	assert.Equal(DefaultFollowersLimit, acct.NewFollowersPageSize)
	assert.Nil(acct.FollowDelaySeconds)
	assert.Equal(2500*time.Millisecond, cfg.FollowDelay(acct))
	assert.Equal(2500*time.Millisecond, cfg.LikeDelay(acct))
	assert.False(acct.DM.Active())
	assert.Equal(time.Duration(0), acct.DM.Cooldown())
}

func TestParseLegacyKeys(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	cfg, err := Parse([]byte(`
storage_dir: old-state
accounts:
  - handle: bob.example.com
    app_password: secret
    delay_seconds: 7
    like_delay_seconds: 1
`))
	require.NoError(err)

	assert.Equal("old-state", cfg.Storage.Directory)
	acct := &cfg.Accounts[0]
	assert.Equal(7*time.Second, cfg.FollowDelay(acct))
	assert.Equal(time.Second, cfg.LikeDelay(acct))

	// an explicit zero delay is not replaced by the global default
	cfg, err = Parse([]byte(`
default_follow_delay_seconds: 9
accounts:
  - handle: bob.example.com
    app_password: secret
    follow_delay_seconds: 0
`))
	require.NoError(err)
	assert.Equal(time.Duration(0), cfg.FollowDelay(&cfg.Accounts[0]))
}

func TestBlankMessageDisablesMessaging(t *testing.T) {
	cfg, err := Parse([]byte(`
accounts:
  - handle: bob.example.com
    app_password: secret
    dm:
      enabled: true
      message: "   "
`))
	require.NoError(t, err)
	assert.False(t, cfg.Accounts[0].DM.Active())
}

func TestParseInvalid(t *testing.T) {
	fixtures := []struct {
		name string
		doc  string
		msg  string
	}{
		{"empty", ``, "accounts is required"},
		{"no accounts", `accounts: []`, "accounts must have at least 1 entries"},
		{"missing handle", "accounts:\n  - app_password: x\n", "accounts[0].handle is required"},
		{"missing password", "accounts:\n  - handle: a.example.com\n", "accounts[0].app_password is required"},
		{"bad service", "accounts:\n  - handle: a\n    app_password: x\n    service: not a url\n", "accounts[0].service must be a URL"},
		{"page size", "accounts:\n  - handle: a\n    app_password: x\n    new_followers_page_size: 500\n", "new_followers_page_size must be at most 100"},
		{"negative limit", "accounts:\n  - handle: a\n    app_password: x\n    follow_targets:\n      - handle: t\n        follow_limit: -1\n", "follow_targets[0].follow_limit must be at least 0"},
		{"target handle", "accounts:\n  - handle: a\n    app_password: x\n    follow_targets:\n      - follow_limit: 1\n", "follow_targets[0].handle is required"},
		{"negative delay", "default_like_delay_seconds: -2\naccounts:\n  - handle: a\n    app_password: x\n", "default_like_delay_seconds must be at least 0"},
		{"database url", "storage:\n  database_url: mysql://db\naccounts:\n  - handle: a\n    app_password: x\n", "unsupported scheme"},
		{"yaml syntax", "accounts: [", "parsing YAML"},
		{"unset env", "accounts:\n  - handle: a\n    app_password: ${SKYENGAGE_TEST_UNSET_VARIABLE}\n", "SKYENGAGE_TEST_UNSET_VARIABLE"},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			_, err := Parse([]byte(f.doc))
			require.Error(t, err)
			var cerr *Error
			assert.True(t, errors.As(err, &cerr))
			assert.Contains(t, err.Error(), f.msg)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("SKYENGAGE_TEST_A", "one")
	out, err := expandEnv("pre-${SKYENGAGE_TEST_A}-$NOT_EXPANDED")
	assert.NoError(err)
	assert.Equal("pre-one-$NOT_EXPANDED", out)
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(os.WriteFile(p, []byte("accounts:\n  - handle: a.example.com\n    app_password: x\n"), 0o600))

	cfg, err := Load(p)
	require.NoError(err)
	assert.Equal("a.example.com", cfg.Accounts[0].Handle)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	var cerr *Error
	require.True(errors.As(err, &cerr))
	assert.Contains(cerr.Path, "missing.yaml")
	assert.True(errors.Is(err, os.ErrNotExist))

	require.NoError(os.WriteFile(p, []byte("accounts: []\n"), 0o600))
	_, err = Load(p)
	require.True(errors.As(err, &cerr))
	assert.Equal(p, cerr.Path)
}
