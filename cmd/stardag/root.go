package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stardag-dev/stardag-go/internal/config"
	"github.com/stardag-dev/stardag-go/internal/logger"
	"github.com/stardag-dev/stardag-go/internal/registry"
)

// version is overwritten at build time via -ldflags "-X main.version=...".
var version = "0.0.0"

var (
	cfgFile string
	debug   bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "stardag",
	Short: "Demo CLI for the stardag build engine",
	Long:  "stardag [build|status|serve|version] drives a small built-in task pipeline through the build engine and reports its outcome.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is %s/config.yaml)", config.ConfigDir()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress log output")

	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newVersionCommand())
}

// loadConfig resolves the engine config the same way every subcommand
// needs it, honoring --config.
func loadConfig() (*config.Config, error) {
	var opts []config.LoaderOption
	if cfgFile != "" {
		opts = append(opts, config.WithConfigFile(cfgFile))
	}
	return config.NewLoader(viper.GetViper(), opts...).Load()
}

// newEngineLogger builds the logger every subcommand logs through.
func newEngineLogger() logger.Logger {
	var opts []logger.Option
	if debug {
		opts = append(opts, logger.WithDebug())
	}
	if quiet {
		opts = append(opts, logger.WithQuiet())
	}
	return logger.NewLogger(opts...)
}

// newRegistryClient picks an HTTP-backed registry when the config
// supplies either real credentials or a non-default API URL, and falls
// back to the no-op client otherwise - mirroring the original's
// init_registry condition (see internal/config's doc comment).
func newRegistryClient(cfg *config.Config) registry.Client {
	if !cfg.HasCredentials() && !cfg.UsesNonDefaultAPIURL() {
		return registry.NoOp{}
	}
	return registry.NewHTTPClient(cfg.API.URL, cfg.API.Timeout, cfg.APIKey, cfg.AccessToken, cfg.Context.WorkspaceID)
}
