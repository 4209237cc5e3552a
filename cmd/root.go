package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/arbiter/internal/config"
	"github.com/zjrosen/arbiter/internal/log"
)

// localConfigPath is checked before the user config directory.
const localConfigPath = ".arbiter/config.yaml"

var (
	version    = "dev"
	cfgFile    string
	debugFlag  bool
	cfg        config.Config
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "arbiter",
	Short: "Resolve resource ownership between extensions",
	Long: `arbiter loads extension manifests into a resource registry and decides,
per resource kind, what happens when two extensions claim the same content
type, route, menu entry, UI block or field group extension.

Every command prints JSON to stdout. Logs go to stderr or log.path.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .arbiter/config.yaml, then ~/.config/arbiter/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"log at debug level")
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := initConfig(viper.GetViper()); err != nil {
		return err
	}
	return initLogging(cmd)
}

// initConfig resolves the config file, layers it over the defaults and
// ARBITER_* environment variables, and decodes the result into cfg.
func initConfig(v *viper.Viper) error {
	config.SetDefaults(v)
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .arbiter/config.yaml (current directory)
		// 2. ~/.config/arbiter/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			v.SetConfigFile(localConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			v.AddConfigPath(filepath.Join(home, ".config", "arbiter"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading config: %w", err)
		}
		// No config file anywhere: run on defaults.
	}

	decoded, err := config.Decode(v)
	if err != nil {
		return err
	}
	cfg = decoded
	return nil
}

func initLogging(cmd *cobra.Command) error {
	if cfg.Log.Path != "" {
		cleanup, err := log.Init(cfg.Log.Path)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
	} else {
		log.InitWriter(cmd.ErrOrStderr())
	}

	level, _ := log.ParseLevel(cfg.Log.Level) // checked by config.Validate
	if debugFlag {
		level = log.LevelDebug
	}
	log.SetMinLevel(level)

	log.Debug(log.CatConfig, "Config loaded", "file", configFileUsed(), "command", cmd.Name())
	return nil
}

// configFileUsed returns the loaded config file, or where one would be
// written when none was found.
func configFileUsed() string {
	if used := viper.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); err == nil {
			return used
		}
	}
	if cfgFile != "" {
		return cfgFile
	}
	return localConfigPath
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
