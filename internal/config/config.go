// Package config loads rsalab settings from defaults, an optional YAML
// file and RSALAB_* environment variables.
package config

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/user/rsalab/internal/keycodec"
	"github.com/user/rsalab/internal/keygen"
	"github.com/user/rsalab/internal/prime"
	"github.com/user/rsalab/internal/security"
)

const EnvPrefix = "RSALAB"

const TemplateProfile = `engine:
  # smallest accepted modulus in bits
  min_bits: 512
  # largest modulus generated or analyzed
  max_bits: 16384
  public_exponent: 65537
  miller_rabin_rounds: 40
  # candidates tried per prime before giving up
  max_prime_attempts: 10000
  # prime pairs tried per key before giving up
  max_pair_attempts: 32
  generation_timeout: 2m
  # 0 means one per CPU
  max_concurrent_generations: 0
  # pkcs8 or pkcs1
  private_key_format: pkcs8

security:
  medium_bits: 2048
  high_bits: 4096

server:
  port: 8080
  # benchmark job workers
  workers: 2

log:
  # debug, info, warn or error
  level: info
  # empty means stderr only
  file: ""
  max_size_mb: 100
  max_backups: 3
  max_age_days: 28
`

type Engine struct {
	MinBits                  int           `mapstructure:"min_bits" yaml:"min_bits"`
	MaxBits                  int           `mapstructure:"max_bits" yaml:"max_bits"`
	PublicExponent           int           `mapstructure:"public_exponent" yaml:"public_exponent"`
	MillerRabinRounds        int           `mapstructure:"miller_rabin_rounds" yaml:"miller_rabin_rounds"`
	MaxPrimeAttempts         int           `mapstructure:"max_prime_attempts" yaml:"max_prime_attempts"`
	MaxPairAttempts          int           `mapstructure:"max_pair_attempts" yaml:"max_pair_attempts"`
	GenerationTimeout        time.Duration `mapstructure:"generation_timeout" yaml:"generation_timeout"`
	MaxConcurrentGenerations int           `mapstructure:"max_concurrent_generations" yaml:"max_concurrent_generations"`
	PrivateKeyFormat         string        `mapstructure:"private_key_format" yaml:"private_key_format"`
}

type Security struct {
	MediumBits int `mapstructure:"medium_bits" yaml:"medium_bits"`
	HighBits   int `mapstructure:"high_bits" yaml:"high_bits"`
}

type Server struct {
	Port    int `mapstructure:"port" yaml:"port"`
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type Log struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

type Config struct {
	Engine   Engine   `mapstructure:"engine" yaml:"engine"`
	Security Security `mapstructure:"security" yaml:"security"`
	Server   Server   `mapstructure:"server" yaml:"server"`
	Log      Log      `mapstructure:"log" yaml:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.min_bits", keygen.DefaultMinBits)
	v.SetDefault("engine.max_bits", keygen.DefaultMaxBits)
	v.SetDefault("engine.public_exponent", keygen.DefaultPublicExponent)
	v.SetDefault("engine.miller_rabin_rounds", prime.MinRounds)
	v.SetDefault("engine.max_prime_attempts", prime.DefaultMaxAttempts)
	v.SetDefault("engine.max_pair_attempts", keygen.DefaultMaxPairAttempts)
	v.SetDefault("engine.generation_timeout", keygen.DefaultTimeout)
	v.SetDefault("engine.max_concurrent_generations", 0)
	v.SetDefault("engine.private_key_format", string(keycodec.FormatPKCS8))

	v.SetDefault("security.medium_bits", security.DefaultMediumBits)
	v.SetDefault("security.high_bits", security.DefaultHighBits)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.workers", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Default returns the built-in configuration.
func Default() *Config {
	c, err := Load("")
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return c
}

// Load reads fpath when it is non-empty, applies environment overrides and
// validates the result.
func Load(fpath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fpath != "" {
		fstat, err := os.Stat(fpath)
		if err != nil {
			return nil, err
		}
		if fstat.IsDir() {
			return nil, errors.Errorf("the '%v' is not a file", fpath)
		}
		v.SetConfigFile(fpath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Errorf("[ReadInConfig] %v", err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Errorf("[Unmarshal] %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	e := c.Engine
	if e.MinBits < keygen.DefaultMinBits {
		return errors.Errorf("engine.min_bits %d is below %d", e.MinBits, keygen.DefaultMinBits)
	}
	if e.MaxBits < e.MinBits {
		return errors.Errorf("engine.max_bits %d is below engine.min_bits %d", e.MaxBits, e.MinBits)
	}
	if e.PublicExponent < 3 || e.PublicExponent%2 == 0 {
		return errors.Errorf("engine.public_exponent %d must be odd and at least 3", e.PublicExponent)
	}
	if e.MillerRabinRounds < prime.MinRounds {
		return errors.Errorf("engine.miller_rabin_rounds %d is below %d", e.MillerRabinRounds, prime.MinRounds)
	}
	if e.MaxPrimeAttempts <= 0 {
		return errors.New("engine.max_prime_attempts must be positive")
	}
	if e.MaxPairAttempts <= 0 {
		return errors.New("engine.max_pair_attempts must be positive")
	}
	if e.GenerationTimeout <= 0 {
		return errors.New("engine.generation_timeout must be positive")
	}
	if e.MaxConcurrentGenerations < 0 {
		return errors.New("engine.max_concurrent_generations cannot be negative")
	}
	if _, err := keycodec.ParsePrivateFormat(e.PrivateKeyFormat); err != nil {
		return errors.Wrap(err, "engine.private_key_format")
	}

	if err := c.Thresholds().Validate(); err != nil {
		return errors.Wrap(err, "security")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Server.Workers < 1 {
		return errors.New("server.workers must be at least 1")
	}
	return nil
}

// MaxConcurrent resolves the generation limit, 0 meaning one per CPU.
func (c *Config) MaxConcurrent() int {
	if c.Engine.MaxConcurrentGenerations == 0 {
		return runtime.NumCPU()
	}
	return c.Engine.MaxConcurrentGenerations
}

func (c *Config) Thresholds() security.Thresholds {
	return security.Thresholds{Medium: c.Security.MediumBits, High: c.Security.HighBits}
}

// KeygenOptions builds generator options, including the prime generator.
func (c *Config) KeygenOptions() keygen.Options {
	format, _ := keycodec.ParsePrivateFormat(c.Engine.PrivateKeyFormat)
	return keygen.Options{
		MinBits:         c.Engine.MinBits,
		MaxBits:         c.Engine.MaxBits,
		PublicExponent:  c.Engine.PublicExponent,
		MaxPairAttempts: c.Engine.MaxPairAttempts,
		Timeout:         c.Engine.GenerationTimeout,
		Format:          format,
		Primes: prime.NewGenerator(
			prime.WithRounds(c.Engine.MillerRabinRounds),
			prime.WithMaxAttempts(c.Engine.MaxPrimeAttempts),
		),
	}
}
