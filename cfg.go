package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Listen    string `mapstructure:"listen" validate:"required,hostname_port"`
	DataDir   string `mapstructure:"data_dir" validate:"required"`
	OutputDir string `mapstructure:"output_dir" validate:"required"`
	JobsFile  string `mapstructure:"jobs_file"`
	Decoder   string `mapstructure:"decoder" validate:"oneof=std opencv"`
	Workers   int    `mapstructure:"workers" validate:"gte=0"`
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`
}

var GConf Config

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "0.0.0.0:8093")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("output_dir", "./out")
	v.SetDefault("jobs_file", "./jobs.json")
	v.SetDefault("decoder", "std")
	v.SetDefault("workers", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// LoadConfig reads the JSON config at path into GConf. A missing file
// leaves the defaults; ANNOCONV_<KEY> variables override both.
func LoadConfig(path string) error {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("annoconv")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	GConf = cfg
	return nil
}
