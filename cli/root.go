package cli

import (
	"fmt"
	"os"

	"trackpoint/config"
	"trackpoint/logger"
	"trackpoint/store"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type rootOptions struct {
	cfgFile string
}

// NewRootCommand returns the trackpoint command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "trackpoint",
		Short:         "Event tracking and analytics server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file path (yaml or json)")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newExportCommand(opts))
	root.AddCommand(newAppsCommand(opts))
	root.AddCommand(newTokenCommand(opts))
	return root
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the optional config file and the TRACKPOINT_ environment, then
// installs the configured logger.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	v := viper.New()
	config.BindEnv(v)
	if o.cfgFile != "" {
		v.SetConfigFile(o.cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", o.cfgFile, err)
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("config invalid: %w", err)
	}
	logger.Setup(cfg.Log)
	if o.cfgFile != "" {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config: loaded")
	}
	return cfg, nil
}

func openStore(cfg config.DB) (*store.Store, error) {
	db, err := store.Open(cfg.DSN)
	if err != nil {
		return nil, err
	}
	s, err := store.New(db)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, err
	}
	return s, nil
}
