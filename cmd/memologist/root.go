package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/memologist/memologist/internal/config"
	"github.com/memologist/memologist/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.1.0"

var (
	cfgFile string
	appCfg  config.Config
	logger  *slog.Logger
)

// rootCmd is the base command called without any subcommands.
var rootCmd = &cobra.Command{
	Use:          "memologist",
	Short:        "Memologist meme site backend",
	Long:         "Memologist serves the meme site API and runs its hot ranking job.",
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}

func initConfig() {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	appCfg = cfg
	logger = logging.New(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	if _, err := cfg.Hot.LoadLocation(); err != nil {
		logger.Warn("unknown timezone, hot schedule uses UTC", "error", err)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("using config file", "path", used)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "memologist v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
