//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of AvroMerge.
//
// AvroMerge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// AvroMerge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with AvroMerge. If not, see https://www.gnu.org/licenses/.

package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aaronlmathis/avromerge/core"
)

const (
	// EnvPrefix is prepended to every key, so "schema_filename" is read from ENV_SCHEMA_FILENAME.
	EnvPrefix = "ENV"

	// SchemaSizeLimitDefault caps how many bytes of the schema file are read.
	SchemaSizeLimitDefault int64 = 1 << 20
)

// S3Config configures access to s3:// inputs.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Profile   string `mapstructure:"profile"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// PostgresConfig configures the PostgreSQL output format.
type PostgresConfig struct {
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`
	Accumulate bool   `mapstructure:"accumulate"`
}

// Config is the process configuration, built once at startup and passed down.
type Config struct {
	SchemaFilename  string         `mapstructure:"schema_filename"`
	SchemaSizeLimit int64          `mapstructure:"schema_size_limit"`
	KeyName         string         `mapstructure:"merge_key_name"`
	CntName         string         `mapstructure:"merge_cnt_name"`
	OutputFormat    string         `mapstructure:"output_format"`
	OutputCodec     string         `mapstructure:"output_codec"`
	LogLevel        string         `mapstructure:"log_level"`
	S3              S3Config       `mapstructure:"s3"`
	Postgres        PostgresConfig `mapstructure:"postgres"`
}

// Merge returns the field-name configuration shared by every input.
func (c *Config) Merge() core.MergeConfig {
	return core.MergeConfig{
		KeyName: c.KeyName,
		CntName: c.CntName,
	}
}

// Load reads configuration from flags bound into v and from environment variables.
// Environment variables use the prefix "ENV" and the dot character in keys is replaced
// by an underscore. For example, "s3.region" becomes "ENV_S3_REGION".
// A variable that is set but empty holds the empty value, so ENV_MERGE_KEY_NAME= names
// the empty field; an empty size limit selects the default.
// A missing schema filename is a core.ErrConfig error.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	setDefaults(v)
	bindEnvs(v, Config{})

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, core.NewError(core.ErrConfig, "unmarshal", err)
	}

	if cfg.SchemaFilename == "" {
		return nil, core.NewError(core.ErrConfig, "load", fmt.Errorf("invalid env var %s_SCHEMA_FILENAME: not present", EnvPrefix))
	}
	if cfg.SchemaSizeLimit == 0 {
		cfg.SchemaSizeLimit = SchemaSizeLimitDefault
	}
	if cfg.SchemaSizeLimit < 0 {
		return nil, core.NewError(core.ErrConfig, "load", fmt.Errorf("schema size limit must be positive, got %d", cfg.SchemaSizeLimit))
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schema_size_limit", SchemaSizeLimitDefault)
	v.SetDefault("merge_key_name", core.KeyNameDefault)
	v.SetDefault("merge_cnt_name", core.CntNameDefault)
	v.SetDefault("output_format", "avro")
	v.SetDefault("output_codec", "null")
	v.SetDefault("log_level", "warn")
	v.SetDefault("postgres.table", "merged_counts")
}

// RegisterFlags defines the command-line flags and binds them into v. A flag that is set
// takes precedence over the environment.
func RegisterFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String("schema", "", "path to the output Avro schema (ENV_SCHEMA_FILENAME)")
	fs.String("key-name", core.KeyNameDefault, "name of the key field (ENV_MERGE_KEY_NAME)")
	fs.String("cnt-name", core.CntNameDefault, "name of the count field (ENV_MERGE_CNT_NAME)")
	fs.Int64("schema-size-limit", SchemaSizeLimitDefault, "maximum schema bytes read (ENV_SCHEMA_SIZE_LIMIT)")
	fs.String("format", "avro", "output format: avro, json, csv, parquet or postgres (ENV_OUTPUT_FORMAT)")
	fs.String("codec", "null", "avro block codec: null, deflate, snappy or zstandard (ENV_OUTPUT_CODEC)")
	fs.String("log-level", "warn", "log level: debug, info, warn or error (ENV_LOG_LEVEL)")

	bindings := map[string]string{
		"schema_filename":   "schema",
		"merge_key_name":    "key-name",
		"merge_cnt_name":    "cnt-name",
		"schema_size_limit": "schema-size-limit",
		"output_format":     "format",
		"output_codec":      "codec",
		"log_level":         "log-level",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

// LoadSchema reads the schema file at path, keeping at most limit bytes. A longer file is
// truncated, not rejected; parsing the truncated text is what fails.
func LoadSchema(path string, limit int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", core.NewSubjectError(core.ErrConfig, "open_schema", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", core.NewSubjectError(core.ErrConfig, "read_schema", path, err)
	}
	return string(data), nil
}
