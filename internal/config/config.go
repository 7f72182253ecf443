// Package config loads and validates the YAML document describing the automated accounts.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultService        = "https://bsky.social"
	DefaultStorageDir     = "state"
	DefaultDelaySeconds   = 2.5
	DefaultFollowersLimit = 50
)

type Config struct {
	Storage Storage `yaml:"storage"`

	// legacy spelling of storage.directory
	StorageDir string `yaml:"storage_dir"`

	DefaultFollowDelaySeconds float64 `yaml:"default_follow_delay_seconds" validate:"gte=0"`
	DefaultLikeDelaySeconds   float64 `yaml:"default_like_delay_seconds" validate:"gte=0"`

	// Maximum XRPC requests per second for each account session. Zero disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`

	Accounts []Account `yaml:"accounts" validate:"required,min=1,dive"`
}

type Storage struct {
	Directory string `yaml:"directory"`

	// When set, state is kept in a SQL database instead of the directory. Eg "sqlite://state/skyengage.sqlite" or "postgres://..."
	DatabaseURL string `yaml:"database_url"`
}

type Account struct {
	Handle      string `yaml:"handle" validate:"required"`
	AppPassword string `yaml:"app_password" validate:"required"`
	Service     string `yaml:"service" validate:"required,url"`
	Proxy       string `yaml:"proxy" validate:"omitempty,url"`

	// nil means the global default applies
	FollowDelaySeconds *float64 `yaml:"follow_delay_seconds" validate:"omitempty,gte=0"`
	LikeDelaySeconds   *float64 `yaml:"like_delay_seconds" validate:"omitempty,gte=0"`

	// legacy: sets both follow and like delays when they are not given
	DelaySeconds *float64 `yaml:"delay_seconds" validate:"omitempty,gte=0"`

	// Page size for all follower listings of this account.
	NewFollowersPageSize int `yaml:"new_followers_page_size" validate:"gte=1,lte=100"`

	FollowTargets []Target `yaml:"follow_targets" validate:"dive"`
	DM            DM       `yaml:"dm"`
}

type Target struct {
	Handle         string `yaml:"handle" validate:"required"`
	FollowLimit    *int   `yaml:"follow_limit" validate:"omitempty,gte=0"`
	LikeLatestPost bool   `yaml:"like_latest_post"`
	LikeLimit      *int   `yaml:"like_limit" validate:"omitempty,gte=0"`
}

type DM struct {
	Enabled     bool   `yaml:"enabled"`
	Message     string `yaml:"message"`
	LimitPerRun *int   `yaml:"limit_per_run" validate:"omitempty,gte=0"`

	// Zero means a follower is only ever messaged once.
	CooldownHours float64 `yaml:"cooldown_hours" validate:"gte=0"`
}

func (a *Account) UnmarshalYAML(value *yaml.Node) error {
	type plain Account
	p := plain{
		Service:              DefaultService,
		NewFollowersPageSize: DefaultFollowersLimit,
	}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*a = Account(p)
	return nil
}

func (t *Target) UnmarshalYAML(value *yaml.Node) error {
	type plain Target
	p := plain{LikeLatestPost: true}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = Target(p)
	return nil
}

// Cooldown between direct messages to the same follower.
func (d DM) Cooldown() time.Duration {
	return time.Duration(d.CooldownHours * float64(time.Hour))
}

// Active reports whether new-follower messaging should run.
func (d DM) Active() bool {
	return d.Enabled && strings.TrimSpace(d.Message) != ""
}

// FollowDelay resolves the pause after a successful follow or message.
func (c *Config) FollowDelay(acct *Account) time.Duration {
	return resolveDelay(acct.FollowDelaySeconds, c.DefaultFollowDelaySeconds)
}

// LikeDelay resolves the pause after a successful like.
func (c *Config) LikeDelay(acct *Account) time.Duration {
	return resolveDelay(acct.LikeDelaySeconds, c.DefaultLikeDelaySeconds)
}

func resolveDelay(explicit *float64, fallback float64) time.Duration {
	secs := fallback
	if explicit != nil {
		secs = *explicit
	}
	return time.Duration(secs * float64(time.Second))
}

// Error is returned for any problem reading or validating a configuration document.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads the file at path. All failures are returned as [*Error].
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	cfg, err := Parse(b)
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) && cerr.Path == "" {
			cerr.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document, applies defaults and legacy keys, expands environment references in secrets, and validates the result.
func Parse(b []byte) (*Config, error) {
	cfg := Config{
		DefaultFollowDelaySeconds: DefaultDelaySeconds,
		DefaultLikeDelaySeconds:   DefaultDelaySeconds,
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, &Error{Err: fmt.Errorf("parsing YAML: %w", err)}
	}

	if cfg.Storage.Directory == "" {
		cfg.Storage.Directory = cfg.StorageDir
	}
	if cfg.Storage.Directory == "" {
		cfg.Storage.Directory = DefaultStorageDir
	}

	for i := range cfg.Accounts {
		acct := &cfg.Accounts[i]
		if acct.FollowDelaySeconds == nil {
			acct.FollowDelaySeconds = acct.DelaySeconds
		}
		if acct.LikeDelaySeconds == nil {
			acct.LikeDelaySeconds = acct.DelaySeconds
		}
		secret, err := expandEnv(acct.AppPassword)
		if err != nil {
			return nil, &Error{Err: fmt.Errorf("accounts[%d].app_password: %w", i, err)}
		}
		acct.AppPassword = secret
	}

	if err := validate(&cfg); err != nil {
		return nil, &Error{Err: err}
	}
	return &cfg, nil
}

var envRefRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} references. Bare $NAME is left alone, since app passwords may contain '$'.
func expandEnv(s string) (string, error) {
	var missing []string
	out := envRefRegex.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRefRegex.FindStringSubmatch(ref)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable not set: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
