package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LiquorXR/gemini-synapse/internal/adminapi"
	"github.com/LiquorXR/gemini-synapse/internal/config"
	"github.com/LiquorXR/gemini-synapse/internal/logging"
)

var (
	cfgFile     string
	logLevel    string
	baseURLFlag string

	cfg    *config.Config
	logger *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "synapse-admin",
	Short: "Admin console for a gemini-synapse key service",
	Long: `synapse-admin manages the upstream API keys of a gemini-synapse service.

It logs in with the admin key, inspects and edits the key pool, runs batch
validation sessions with live progress, and can serve a local control API
that drives the same validation sessions over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: search /etc/synapse-admin, ~/.config/synapse-admin, .)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "admin API base URL, overrides admin.base_url")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and builds the logger for every command.
// Interactive commands log warnings only unless --log-level is given.
func setup(cmd *cobra.Command) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if baseURLFlag != "" {
		cfg.Admin.BaseURL = baseURLFlag
	}
	switch {
	case logLevel != "":
		cfg.Logging.Level = logLevel
	case cmd != serveCmd:
		cfg.Logging.Level = "warn"
		cfg.Logging.Format = "console"
	}

	logger, err = logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	return nil
}

// configPath is the file that config and session commands write to.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.UserConfigFile()
}

// connect builds an admin client and restores the saved session. When no
// session is saved but an admin key is configured, it logs in with that key.
func connect(ctx context.Context) (*adminapi.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := adminapi.NewFromConfig(cfg.Admin, logger)
	if err != nil {
		return nil, err
	}

	session := adminapi.SessionFile{Path: cfg.Admin.SessionFile}
	restored, err := session.Restore(client)
	if err != nil {
		logger.Warnw("Ignoring unreadable session file", "path", session.Path, "error", err)
	}
	if restored {
		return client, nil
	}

	if cfg.Admin.AdminKey != "" {
		if err := client.Login(ctx, cfg.Admin.AdminKey); err != nil {
			return nil, err
		}
		if err := session.Save(client); err != nil {
			logger.Warnw("Failed to save session", "error", err)
		}
	}
	return client, nil
}

// mustAuth connects and fails early with a hint when the session is rejected.
func mustAuth(ctx context.Context) (*adminapi.Client, error) {
	client, err := connect(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := client.CheckAuth(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("not logged in to %s: run `synapse-admin login` first", client.BaseURL())
	}
	return client, nil
}

func stdinIsTerminal() bool {
	return isTerminal(os.Stdin)
}

func stdoutIsTerminal() bool {
	return isTerminal(os.Stdout)
}
