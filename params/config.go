package params

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from strings such as "1500ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// SimConfig tunes the simulation cache and scheduler.
type SimConfig struct {
	Capacity     int      `yaml:"capacity"`     // maximum cached items
	DisallowSize int      `yaml:"disallowSize"` // size of the never-valid LRU
	Concurrency  int      `yaml:"concurrency"`  // simulations per round
	Deadline     Duration `yaml:"deadline"`     // wall clock budget for a block build
	MaxGas       uint64   `yaml:"maxGas"`       // rollup gas budget per block
	MaxHostGas   uint64   `yaml:"maxHostGas"`   // host gas budget per block
}

// DefaultSimConfig contains the default simulation settings.
var DefaultSimConfig = SimConfig{
	Capacity:     100,
	DisallowSize: 128,
	Concurrency:  runtime.GOMAXPROCS(0),
	Deadline:     Duration{2 * time.Second},
	MaxGas:       30_000_000,
	MaxHostGas:   24_000_000,
}

// Config is the file-backed configuration of a node.
type Config struct {
	Constants SystemConstants `yaml:"constants"`
	Sim       SimConfig       `yaml:"sim"`
}

// DefaultConfig returns a config wired to the local test deployment.
func DefaultConfig() *Config {
	return &Config{
		Constants: *TestSystemConstants(),
		Sim:       DefaultSimConfig,
	}
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// LoadConfig reads a TOML or YAML file on top of the defaults. The format is
// picked from the file extension.
func LoadConfig(file string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(file)); ext {
	case ".toml":
		err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
		// Add file name to errors that have a line number.
		if _, ok := err.(*toml.LineError); ok {
			err = errors.New(file + ", " + err.Error())
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		err = dec.Decode(cfg)
	default:
		return nil, errors.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", file)
	}
	if err := cfg.Constants.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid constants")
	}
	if cfg.Sim.Concurrency <= 0 {
		cfg.Sim.Concurrency = 1
	}
	return cfg, nil
}

// DumpConfig renders cfg as TOML.
func DumpConfig(cfg *Config) ([]byte, error) {
	return tomlSettings.Marshal(cfg)
}
