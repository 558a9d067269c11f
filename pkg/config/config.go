package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Arkanys/chronomodel/pkg/db/params"
	"github.com/Arkanys/chronomodel/pkg/logging"
	"github.com/spf13/viper"
)

const (
	DefaultLoggingFormat = "text"
	DefaultLoggingLevel  = "INFO"
	DefaultLoggingOutput = "-"

	DefaultDatabaseMaxOpenConnections    = 25
	DefaultDatabaseMaxIdleConnections    = 25
	DefaultDatabaseConnectionMaxLifetime = 5 * time.Minute
)

type LoggingConfig struct {
	Format        string `mapstructure:"format"`
	Level         string `mapstructure:"level"`
	Output        string `mapstructure:"output"`
	FileMaxSizeMB int    `mapstructure:"file_max_size_mb"`
	FilesKeep     int    `mapstructure:"files_keep"`
}

type DatabaseConfig struct {
	ConnectionString      string        `mapstructure:"connection_string"`
	MaxOpenConnections    int32         `mapstructure:"max_open_connections"`
	MaxIdleConnections    int32         `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
}

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
}

func setDefaults() {
	viper.SetDefault("logging.format", DefaultLoggingFormat)
	viper.SetDefault("logging.level", DefaultLoggingLevel)
	viper.SetDefault("logging.output", DefaultLoggingOutput)
	viper.SetDefault("database.max_open_connections", DefaultDatabaseMaxOpenConnections)
	viper.SetDefault("database.max_idle_connections", DefaultDatabaseMaxIdleConnections)
	viper.SetDefault("database.connection_max_lifetime", DefaultDatabaseConnectionMaxLifetime)
}

// NewConfig reads configuration from viper's already-loaded sources
// (config file and CHRONOMODEL_* environment variables).
func NewConfig() (*Config, error) {
	setDefaults()
	viper.SetEnvPrefix("CHRONOMODEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	return &cfg, nil
}

// SetupLogging applies the logging section to the process-wide logger.
func (c *Config) SetupLogging() {
	logging.SetOutputFormat(c.Logging.Format)
	logging.SetLevel(c.Logging.Level)
	logging.SetOutputs([]string{c.Logging.Output}, c.Logging.FileMaxSizeMB, c.Logging.FilesKeep)
}

// DatabaseParams returns the connection parameters for the db layer.
func (c *Config) DatabaseParams() params.Database {
	return params.Database{
		ConnectionString:      c.Database.ConnectionString,
		MaxOpenConnections:    c.Database.MaxOpenConnections,
		MaxIdleConnections:    c.Database.MaxIdleConnections,
		ConnectionMaxLifetime: c.Database.ConnectionMaxLifetime,
	}
}
