package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jchantrell/exilefiles/internal/utils"
)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

type Config struct {
	Patch       string `mapstructure:"patch" validate:"required,patch"`
	Source      string `mapstructure:"source" validate:"oneof=local remote"`
	InstallDir  string `mapstructure:"install_dir" validate:"required_if=Source local"`
	CacheDir    string `mapstructure:"cache_dir"`
	CDNURL      string `mapstructure:"cdn_url" validate:"omitempty,url"`
	PatchServer string `mapstructure:"patch_server" validate:"omitempty,hostname_port"`
	Workers     int    `mapstructure:"workers" validate:"min=1,max=256"`
	Retries     int    `mapstructure:"retries" validate:"min=0,max=20"`
	Manifest    string `mapstructure:"manifest"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `mapstructure:"log_format" validate:"oneof=text json"`
}

// Load initializes and loads configuration from file and EXILEFILES_*
// environment variables. An explicit cfgFile must exist; the default
// exilefiles.yaml in the home or working directory is optional.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("patch", "1")
	v.SetDefault("source", SourceRemote)
	v.SetDefault("install_dir", "")
	v.SetDefault("cache_dir", "")
	v.SetDefault("cdn_url", "")
	v.SetDefault("patch_server", "")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("retries", 5)
	v.SetDefault("manifest", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix("exilefiles")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Config file handling
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName("exilefiles")
		v.SetConfigType("yaml")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints. It is called by Load and again after
// command-line overrides are applied.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ParsedPatch returns the parsed patch selection.
func (c *Config) ParsedPatch() utils.Patch {
	p, _ := utils.ParsePatch(c.Patch)
	return p
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("patch", func(fl validator.FieldLevel) bool {
		_, err := utils.ParsePatch(fl.Field().String())
		return err == nil
	})
	return v
}
