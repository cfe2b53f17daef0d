// Package config loads pipeline settings.
//
// Sources in increasing priority: built-in defaults, a YAML file
// (slow.yaml in the working directory unless given explicitly) and
// SLOW_ environment variables. Nested keys are separated by a double
// underscore in the environment: SLOW_VM__MAX_STEPS sets vm.max_steps.
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/rt"
	"github.com/slowlang/slow/compiler/verify"
	"github.com/slowlang/slow/compiler/vm"
)

type (
	Config struct {
		Verify  Verify  `koanf:"verify"`
		VM      VM      `koanf:"vm"`
		Codegen Codegen `koanf:"codegen"`
		Batch   Batch   `koanf:"batch"`

		// File is the config file that was loaded, if any.
		File string `koanf:"-"`
	}

	Verify struct {
		AllErrors bool `koanf:"all_errors"`
	}

	VM struct {
		Dispatch  string `koanf:"dispatch"`
		MaxSteps  int64  `koanf:"max_steps"`
		MaxDepth  int    `koanf:"max_depth"`
		PollEvery int    `koanf:"poll_every"`
		HeapLimit int64  `koanf:"heap_limit"`
		Profile   bool   `koanf:"profile"`
	}

	Codegen struct {
		Target string `koanf:"target"`
	}

	Batch struct {
		// Jobs is the number of files compiled in parallel. 0 means GOMAXPROCS.
		Jobs int `koanf:"jobs"`
	}
)

const (
	DefaultFile   = "slow.yaml"
	DefaultTarget = "aarch64-unknown-linux-gnu"

	EnvPrefix = "SLOW_"
)

var defaults = map[string]any{
	"verify.all_errors": false,
	"vm.dispatch":       "switch",
	"vm.max_steps":      0,
	"vm.max_depth":      vm.DefaultMaxDepth,
	"vm.poll_every":     vm.DefaultPollEvery,
	"vm.heap_limit":     int64(rt.DefaultLimit),
	"vm.profile":        false,
	"codegen.target":    DefaultTarget,
	"batch.jobs":        0,
}

// Default returns the built-in configuration.
func Default() *Config {
	c, err := load("", false)
	if err != nil {
		panic(err)
	}

	return c
}

// Load reads configuration. An explicit name must exist,
// the default file is used only if present.
func Load(name string) (*Config, error) {
	if name != "" {
		return load(name, true)
	}

	if _, err := os.Stat(DefaultFile); err == nil {
		return load(DefaultFile, true)
	}

	return load("", true)
}

func load(name string, environ bool) (*Config, error) {
	k := koanf.New(".")

	err := k.Load(confmap.Provider(defaults, "."), nil)
	if err != nil {
		return nil, errors.Wrap(err, "defaults")
	}

	if name != "" {
		err = k.Load(file.Provider(name), yaml.Parser())
		if err != nil {
			return nil, errors.Wrap(err, "read %v", name)
		}
	}

	if environ {
		err = k.Load(env.Provider(EnvPrefix, ".", envKey), nil)
		if err != nil {
			return nil, errors.Wrap(err, "environment")
		}
	}

	var c Config

	err = k.Unmarshal("", &c)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	c.File = name

	if err = c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)

	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) Validate() error {
	if _, err := vm.ParseDispatch(c.VM.Dispatch); err != nil {
		return errors.Wrap(err, "vm.dispatch")
	}

	if c.VM.MaxSteps < 0 {
		return errors.New("vm.max_steps: negative value %d", c.VM.MaxSteps)
	}

	if c.VM.HeapLimit < 0 {
		return errors.New("vm.heap_limit: negative value %d", c.VM.HeapLimit)
	}

	if c.Batch.Jobs < 0 {
		return errors.New("batch.jobs: negative value %d", c.Batch.Jobs)
	}

	return nil
}

func (c *Config) VerifyOptions() verify.Options {
	return verify.Options{AllErrors: c.Verify.AllErrors}
}

// VMConfig converts the vm section. Out and Stop are left to the caller.
func (c *Config) VMConfig() vm.Config {
	d, _ := vm.ParseDispatch(c.VM.Dispatch)

	return vm.Config{
		Dispatch:  d,
		MaxSteps:  c.VM.MaxSteps,
		MaxDepth:  c.VM.MaxDepth,
		PollEvery: c.VM.PollEvery,
		HeapLimit: c.VM.HeapLimit,
		Profile:   c.VM.Profile,
	}
}
