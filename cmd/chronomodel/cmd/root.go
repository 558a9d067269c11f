package cmd

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/Arkanys/chronomodel/pkg/config"
	"github.com/Arkanys/chronomodel/pkg/db"
	"github.com/Arkanys/chronomodel/pkg/logging"
	"github.com/Arkanys/chronomodel/pkg/temporal"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chronomodel",
	Short: "chronomodel manages bitemporal tables on PostgreSQL",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var initOnce sync.Once

//nolint:gochecknoinits
func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.chronomodel.yaml)")
}

func loadConfig() *config.Config {
	initOnce.Do(initConfig)
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Println("Failed to load config file", err)
		os.Exit(1)
	}
	cfg.SetupLogging()
	return cfg
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	logger := logging.Default().WithField("phase", "startup")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.SetConfigName(".chronomodel")
		viper.AddConfigPath(home)
		cfgFile = path.Join(home, ".chronomodel.yaml")
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.WithError(err).Fatal("Failed reading configuration file")
		}
	}
}

// buildEngine connects to the database and verifies compatibility.
func buildEngine(ctx context.Context) (*temporal.Engine, db.Database) {
	cfg := loadConfig()
	database, err := db.ConnectDB(ctx, cfg.DatabaseParams())
	if err != nil {
		logging.Default().WithError(err).Fatal("Failed connecting to database")
	}
	engine, err := temporal.NewEngine(ctx, database)
	if err != nil {
		database.Close()
		logging.Default().WithError(err).Fatal("Database is not usable as a temporal backend")
	}
	return engine, database
}
