package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/LiquorXR/gemini-synapse/internal/adminapi"
)

var (
	apiBaseURL string
	apiMaxFail int
	apiMaxTry  int

	schedModel       string
	schedInterval    int
	schedTimezone    string
	schedErrorDays   int
	schedRequestDays int
	schedListModels  bool
	adminKeyNoRepeat bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and change service settings",
}

var settingsAPICmd = &cobra.Command{
	Use:   "api",
	Short: "Show or update the proxy settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}

		var update adminapi.APIConfig
		flags := cmd.Flags()
		if flags.Changed("api-base-url") {
			update.APIBaseURL = &apiBaseURL
		}
		if flags.Changed("max-failure") {
			update.MaxFailureCount = &apiMaxFail
		}
		if flags.Changed("max-retry") {
			update.MaxRetryCount = &apiMaxTry
		}

		if update.APIBaseURL != nil || update.MaxFailureCount != nil || update.MaxRetryCount != nil {
			if err := client.SetAPIConfig(cmd.Context(), update); err != nil {
				return err
			}
			fmt.Printf("%s API settings updated\n", color.GreenString("✓"))
		}

		current, err := client.APIConfig(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("api_base_url:      %s\n", derefString(current.APIBaseURL))
		fmt.Printf("max_failure_count: %s\n", derefInt(current.MaxFailureCount))
		fmt.Printf("max_retry_count:   %s\n", derefInt(current.MaxRetryCount))
		return nil
	},
}

var settingsSchedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Show or update background validation and log retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}

		if schedListModels {
			models, err := client.AvailableModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Printf("%-40s %s\n", m.Name, m.DisplayName)
			}
			return nil
		}

		current, err := client.SchedulerConfig(cmd.Context())
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		changed := false
		if flags.Changed("model") {
			current.ValidationModel = schedModel
			current.ValidationModelDisplayName = nil
			changed = true
		}
		if flags.Changed("interval") {
			current.ValidationInterval = schedInterval
			changed = true
		}
		if flags.Changed("timezone") {
			current.SchedulerTimezone = schedTimezone
			changed = true
		}
		if flags.Changed("error-log-days") {
			current.ErrorLogRetentionDays = schedErrorDays
			changed = true
		}
		if flags.Changed("request-log-days") {
			current.RequestLogRetentionDays = schedRequestDays
			changed = true
		}
		if changed {
			if err := client.SetSchedulerConfig(cmd.Context(), *current); err != nil {
				return err
			}
			fmt.Printf("%s Scheduler settings updated\n", color.GreenString("✓"))
		}

		model := current.ValidationModel
		if current.ValidationModelDisplayName != nil && *current.ValidationModelDisplayName != "" {
			model = fmt.Sprintf("%s (%s)", model, *current.ValidationModelDisplayName)
		}
		fmt.Printf("validation_model:           %s\n", model)
		fmt.Printf("validation_interval:        %dh\n", current.ValidationInterval)
		fmt.Printf("scheduler_timezone:         %s\n", current.SchedulerTimezone)
		fmt.Printf("error_log_retention_days:   %d\n", current.ErrorLogRetentionDays)
		fmt.Printf("request_log_retention_days: %d\n", current.RequestLogRetentionDays)
		return nil
	},
}

var settingsAccessKeysCmd = &cobra.Command{
	Use:       "access-keys [add|remove] [key]",
	Short:     "List, add or remove client access keys",
	ValidArgs: []string{"add", "remove"},
	Args:      cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}

		if len(args) > 0 {
			if len(args) != 2 {
				return fmt.Errorf("usage: settings access-keys %s <key>", args[0])
			}
			switch args[0] {
			case "add":
				err = client.AddAccessKey(cmd.Context(), args[1])
			case "remove":
				err = client.DeleteAccessKey(cmd.Context(), args[1])
			default:
				return fmt.Errorf("unknown action %q: use add or remove", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s Access keys updated\n", color.GreenString("✓"))
		}

		keys, err := client.AccessKeys(cmd.Context())
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No access keys.")
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

var settingsAdminKeyCmd = &cobra.Command{
	Use:   "admin-key",
	Short: "Rotate the admin key",
	Long: `Set a new admin key. Every admin session, including the saved one, is
logged out; run login again with the new key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}

		key, err := readSecret("New admin key: ")
		if err != nil {
			return err
		}
		if stdinIsTerminal() && !adminKeyNoRepeat {
			again, err := readSecret("Repeat new admin key: ")
			if err != nil {
				return err
			}
			if again != key {
				return fmt.Errorf("keys do not match")
			}
		}

		if err := client.SetAdminKey(cmd.Context(), key); err != nil {
			return err
		}
		if err := (adminapi.SessionFile{Path: cfg.Admin.SessionFile}).Clear(); err != nil {
			logger.Warnw("Failed to clear saved session", "error", err)
		}
		fmt.Printf("%s Admin key changed. Log in again with the new key.\n", color.GreenString("✓"))
		return nil
	},
}

func init() {
	settingsAPICmd.Flags().StringVar(&apiBaseURL, "api-base-url", "", "upstream API base URL")
	settingsAPICmd.Flags().IntVar(&apiMaxFail, "max-failure", 0, "failures before a key is marked invalid (1-100)")
	settingsAPICmd.Flags().IntVar(&apiMaxTry, "max-retry", 0, "retries per proxied request (1-20)")

	settingsSchedulerCmd.Flags().StringVar(&schedModel, "model", "", "model used for background validation")
	settingsSchedulerCmd.Flags().IntVar(&schedInterval, "interval", 0, "validation interval in hours")
	settingsSchedulerCmd.Flags().StringVar(&schedTimezone, "timezone", "", "scheduler timezone, e.g. Asia/Shanghai")
	settingsSchedulerCmd.Flags().IntVar(&schedErrorDays, "error-log-days", 0, "error log retention in days")
	settingsSchedulerCmd.Flags().IntVar(&schedRequestDays, "request-log-days", 0, "request log retention in days")
	settingsSchedulerCmd.Flags().BoolVar(&schedListModels, "models", false, "list models available for validation")

	settingsAdminKeyCmd.Flags().BoolVar(&adminKeyNoRepeat, "no-repeat", false, "do not ask for the key twice")

	settingsCmd.AddCommand(settingsAPICmd)
	settingsCmd.AddCommand(settingsSchedulerCmd)
	settingsCmd.AddCommand(settingsAccessKeysCmd)
	settingsCmd.AddCommand(settingsAdminKeyCmd)
}

func derefString(s *string) string {
	if s == nil || *s == "" {
		return "(not set)"
	}
	return *s
}

func derefInt(n *int) string {
	if n == nil {
		return "(not set)"
	}
	return fmt.Sprint(*n)
}
