// Package configuration loads zistore's on-disk configuration: store
// root, scheduler limits, the debug API's bind address, and health
// checks. Grounded on the teacher's configuration package (same
// versioned-YAML-plus-environment-override shape, via parser.go), pared
// down to the fields this system actually has a use for — no storage
// driver selection, no auth, no notifications endpoints, since the
// Directory Store is always a local filesystem cache, not a pluggable
// backend.
package configuration

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"
)

// Configuration is a versioned zistore configuration, provided by a YAML
// file and optionally overridden by environment variables.
//
// Note that YAML field names should never include _ characters, since
// that is the separator used in environment variable names.
type Configuration struct {
	// Version is the version defining the rest of the format.
	Version Version `yaml:"version"`

	// Log configures the logging subsystem.
	Log Log `yaml:"log"`

	// Store configures the Directory Store.
	Store Store `yaml:"store"`

	// Scheduler configures the Download Scheduler.
	Scheduler Scheduler `yaml:"scheduler"`

	// HTTP configures the read-only debug API.
	HTTP HTTP `yaml:"http,omitempty"`

	// Health provides the configuration section for health checks.
	Health Health `yaml:"health,omitempty"`
}

// Log represents the configuration for logging.
type Log struct {
	// Level is the granularity at which operations are logged.
	Level Loglevel `yaml:"level,omitempty"`

	// Formatter overrides the default formatter. Options include
	// "text" and "json".
	Formatter string `yaml:"formatter,omitempty"`

	// Fields allows users to specify static string fields to include
	// in the logger context.
	Fields map[string]interface{} `yaml:"fields,omitempty"`
}

// Store configures the Directory Store.
type Store struct {
	// RootDirectory is the Directory Store's backing path.
	RootDirectory string `yaml:"rootdirectory"`

	// ReadOnly marks the store as never mutated by this process,
	// skipping the mtime-accuracy probe at open.
	ReadOnly bool `yaml:"readonly,omitempty"`
}

// Scheduler configures the Download Scheduler.
type Scheduler struct {
	// MaxSimultaneous bounds concurrent file transfers. A zero or
	// negative value defaults to 2, per spec.md §4.4.
	MaxSimultaneous int64 `yaml:"maxsimultaneous,omitempty"`

	// RetryAttempts is the number of attempts per request (retryablehttp's
	// RetryMax is set one lower). A zero or negative value defaults to 3.
	RetryAttempts int `yaml:"retryattempts,omitempty"`

	// RetryWaitMin and RetryWaitMax bound the backoff window between
	// attempts. Zero values default to 1s and 30s respectively.
	RetryWaitMin time.Duration `yaml:"retrywaitmin,omitempty"`
	RetryWaitMax time.Duration `yaml:"retrywaitmax,omitempty"`
}

// HTTP configures zistore's read-only debug API.
type HTTP struct {
	// Addr specifies the bind address for the debug API. `zistore serve`
	// exits with an error when it is empty.
	Addr string `yaml:"addr,omitempty"`

	// Prefix is a URL path prefix for the debug API. It is parsed but not
	// applied: debugapi.NewRouter always serves its routes at the root.
	Prefix string `yaml:"prefix,omitempty"`
}

// FileChecker is a health section entry checking the existence of a file.
type FileChecker struct {
	Interval  time.Duration `yaml:"interval,omitempty"`
	File      string        `yaml:"file,omitempty"`
	Threshold int           `yaml:"threshold,omitempty"`
}

// HTTPChecker is a health section entry checking an HTTP URI.
type HTTPChecker struct {
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	StatusCode int           `yaml:"statuscode,omitempty"`
	Interval   time.Duration `yaml:"interval,omitempty"`
	URI        string        `yaml:"uri,omitempty"`
	Headers    http.Header   `yaml:"headers,omitempty"`
	Threshold  int           `yaml:"threshold,omitempty"`
}

// TCPChecker is a health section entry checking a TCP address.
type TCPChecker struct {
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	Interval  time.Duration `yaml:"interval,omitempty"`
	Addr      string        `yaml:"addr,omitempty"`
	Threshold int           `yaml:"threshold,omitempty"`
}

// Health provides the configuration section for health checks.
type Health struct {
	FileCheckers []FileChecker `yaml:"file,omitempty"`
	HTTPCheckers []HTTPChecker `yaml:"http,omitempty"`
	TCPCheckers  []TCPChecker  `yaml:"tcp,omitempty"`

	// Store turns on the built-in Directory Store health check
	// (store.Store.HealthChecker), polled at Interval (10s when unset).
	Store struct {
		Enabled  bool          `yaml:"enabled,omitempty"`
		Interval time.Duration `yaml:"interval,omitempty"`
	} `yaml:"store,omitempty"`
}

type v0_1Configuration Configuration

// UnmarshalYAML unmarshals a string of the form X.Y into a Version,
// validating that X and Y represent unsigned integers.
func (version *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var versionString string
	if err := unmarshal(&versionString); err != nil {
		return err
	}

	newVersion := Version(versionString)
	if _, err := newVersion.major(); err != nil {
		return err
	}
	if _, err := newVersion.minor(); err != nil {
		return err
	}

	*version = newVersion
	return nil
}

// CurrentVersion is the most recent Version this package can parse.
var CurrentVersion = MajorMinorVersion(0, 1)

// Loglevel is the level at which operations are logged: one of error,
// warn, info, or debug.
type Loglevel string

// UnmarshalYAML unmarshals a string into a Loglevel, lowercasing it and
// validating it names a known level.
func (loglevel *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	s = strings.ToLower(s)
	switch s {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("configuration: invalid loglevel %q, must be one of [error, warn, info, debug]", s)
	}

	*loglevel = Loglevel(s)
	return nil
}

// Parse parses an input configuration YAML document into a
// Configuration struct, applying ZISTORE_-prefixed environment variable
// overrides and defaulting unset scheduler fields.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("zistore", []VersionedParseInfo{
		{
			Version: MajorMinorVersion(0, 1),
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				v0_1, ok := c.(*v0_1Configuration)
				if !ok {
					return nil, fmt.Errorf("configuration: expected *v0_1Configuration, got %#v", c)
				}

				if v0_1.Log.Level == Loglevel("") {
					v0_1.Log.Level = Loglevel("info")
				}
				if v0_1.Store.RootDirectory == "" {
					return nil, errors.New("configuration: no store.rootdirectory provided")
				}
				if v0_1.Scheduler.MaxSimultaneous <= 0 {
					v0_1.Scheduler.MaxSimultaneous = 2
				}
				if v0_1.Scheduler.RetryAttempts <= 0 {
					v0_1.Scheduler.RetryAttempts = 3
				}
				if v0_1.Scheduler.RetryWaitMin <= 0 {
					v0_1.Scheduler.RetryWaitMin = time.Second
				}
				if v0_1.Scheduler.RetryWaitMax <= 0 {
					v0_1.Scheduler.RetryWaitMax = 30 * time.Second
				}

				return (*Configuration)(v0_1), nil
			},
		},
	})

	config := new(Configuration)
	if err := p.Parse(in, config); err != nil {
		return nil, err
	}

	return config, nil
}
