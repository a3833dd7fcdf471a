package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/LiquorXR/gemini-synapse/internal/adminapi"
)

var loginKey string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with the admin key and save the session",
	Long: `Log in to the admin API and save the session cookie for later commands.

The admin key is read from --key, then admin.admin_key, then prompted for
without echo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		client, err := adminapi.NewFromConfig(cfg.Admin, logger)
		if err != nil {
			return err
		}

		key := loginKey
		if key == "" {
			key = cfg.Admin.AdminKey
		}
		if key == "" {
			key, err = readSecret("Admin key: ")
			if err != nil {
				return err
			}
		}

		if err := client.Login(cmd.Context(), key); err != nil {
			return err
		}
		session := adminapi.SessionFile{Path: cfg.Admin.SessionFile}
		if err := session.Save(client); err != nil {
			return err
		}
		fmt.Printf("%s Logged in to %s\n", color.GreenString("✓"), client.BaseURL())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the admin session and forget it",
	RunE: func(cmd *cobra.Command, args []string) error {
		session := adminapi.SessionFile{Path: cfg.Admin.SessionFile}

		client, err := connect(cmd.Context())
		if err == nil && client.SessionToken() != "" {
			if err := client.Logout(cmd.Context()); err != nil {
				logger.Warnw("Server-side logout failed", "error", err)
			}
		}
		if err := session.Clear(); err != nil {
			return err
		}
		fmt.Printf("%s Logged out\n", color.GreenString("✓"))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state and key pool summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Admin API: %s\n", client.BaseURL())
		ok, err := client.CheckAuth(cmd.Context())
		if err != nil {
			fmt.Printf("Session:   %s\n", color.RedString("unreachable (%v)", err))
			return err
		}
		if !ok {
			fmt.Printf("Session:   %s\n", color.YellowString("not logged in"))
			return nil
		}
		fmt.Printf("Session:   %s\n", color.GreenString("active"))

		data, err := client.DashboardData(cmd.Context())
		if err != nil {
			return err
		}
		ks, cs := data.Stats.KeyStats, data.Stats.CallStats
		fmt.Printf("Keys:      %d total, %s, %s\n",
			ks.TotalKeys,
			color.GreenString("%d valid", ks.ValidKeys),
			color.RedString("%d invalid", ks.InvalidKeys),
		)
		fmt.Printf("Calls:     %d last minute, %d last hour, %d last 24h, %d this month\n",
			cs.LastMinute, cs.LastHour, cs.Last24Hours, cs.ThisMonth)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginKey, "key", "", "admin key (prompted when omitted)")
}

// readSecret prompts for a value without echo on a terminal, or reads one
// line from piped input.
func readSecret(prompt string) (string, error) {
	if !stdinIsTerminal() {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", errors.New("no value entered")
	}
	return secret, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
