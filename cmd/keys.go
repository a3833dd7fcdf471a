package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/LiquorXR/gemini-synapse/internal/adminapi"
	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

var (
	keysList    string
	keysFile    string
	keysByValue bool
	keysYes     bool
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	invalidStyle = cellStyle.Foreground(lipgloss.Color("196"))
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect and edit the upstream key pool",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys in the valid or invalid list",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}
		data, err := client.DashboardData(cmd.Context())
		if err != nil {
			return err
		}

		var keys []adminapi.APIKey
		if keysList == "all" {
			keys = data.Keys
		} else {
			list, err := validation.ParseList(keysList)
			if err != nil {
				return err
			}
			for _, k := range data.Keys {
				if k.IsValid == (list == validation.ListValid) {
					keys = append(keys, k)
				}
			}
		}

		if len(keys) == 0 {
			fmt.Println("No keys.")
			return nil
		}
		fmt.Println(renderKeys(keys))
		fmt.Printf("%d key(s)\n", len(keys))
		return nil
	},
}

var keysAddCmd = &cobra.Command{
	Use:   "add [key...]",
	Short: "Add keys from arguments or a file",
	Long: `Add upstream keys. Keys may be given as arguments or read from --file
("-" for stdin), separated by newlines, commas or spaces. Keys already in the
pool are skipped by the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := collectKeys(args, keysFile)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return fmt.Errorf("no keys given")
		}
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}
		resp, err := client.BatchAdd(cmd.Context(), keys)
		if err != nil {
			return err
		}
		fmt.Printf("%s Added %d of %d key(s)\n", color.GreenString("✓"), resp.AddedCount, len(keys))
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <id...>",
	Short: "Delete keys by id, or by value with --by-value",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}

		var resp *adminapi.BatchDeleteResponse
		if keysByValue {
			keys, err := collectKeys(args, keysFile)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				return fmt.Errorf("no keys given")
			}
			resp, err = client.BatchDeleteByValue(cmd.Context(), keys)
			if err != nil {
				return err
			}
		} else {
			ids, err := parseIDArgs(args)
			if err != nil {
				return err
			}
			if !keysYes && !confirmYesNo(fmt.Sprintf("Delete %d key(s)?", len(ids))) {
				return fmt.Errorf("aborted")
			}
			resp, err = client.BatchDelete(cmd.Context(), ids)
			if err != nil {
				return err
			}
		}
		fmt.Printf("%s Deleted %d key(s)\n", color.GreenString("✓"), resp.DeletedCount)
		return nil
	},
}

var keysResetCmd = &cobra.Command{
	Use:   "reset <id...>",
	Short: "Mark keys valid and clear their failure counters",
	RunE:  batchIDAction("Reset", func(c *adminapi.Client, cmd *cobra.Command, ids []int64) error { return c.BatchReset(cmd.Context(), ids) }),
}

var keysDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id...>",
	Short: "Mark keys invalid",
	RunE:  batchIDAction("Deactivated", func(c *adminapi.Client, cmd *cobra.Command, ids []int64) error { return c.BatchDeactivate(cmd.Context(), ids) }),
}

var keysToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Flip one key between valid and invalid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid key id %q", args[0])
		}
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}
		key, err := client.ToggleStatus(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Println(renderKeys([]adminapi.APIKey{*key}))
		return nil
	},
}

var keysRevealCmd = &cobra.Command{
	Use:   "reveal <id...>",
	Short: "Print the full value of keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDArgs(args)
		if err != nil {
			return err
		}
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}
		revealed, err := client.Reveal(cmd.Context(), ids)
		if err != nil {
			return err
		}
		for _, k := range revealed {
			fmt.Printf("%d\t%s\n", k.ID, k.Key)
		}
		return nil
	},
}

var keysDetailsCmd = &cobra.Command{
	Use:   "details <id>",
	Short: "Show per-model calls of one key over the last 24 hours",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid key id %q", args[0])
		}
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}
		details, err := client.KeyDetails(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(details) == 0 {
			fmt.Println("No calls in the last 24 hours.")
			return nil
		}

		rows := make([][]string, 0, len(details))
		for _, d := range details {
			rows = append(rows, []string{d.ModelName, strconv.Itoa(d.TotalCalls24h)})
		}
		fmt.Println(renderTable([]string{"MODEL", "CALLS (24H)"}, rows))
		return nil
	},
}

func init() {
	keysListCmd.Flags().StringVar(&keysList, "list", "valid", "list to show: valid, invalid or all")
	keysAddCmd.Flags().StringVarP(&keysFile, "file", "f", "", "read keys from file (- for stdin)")
	keysDeleteCmd.Flags().BoolVar(&keysByValue, "by-value", false, "arguments are key values instead of ids")
	keysDeleteCmd.Flags().StringVarP(&keysFile, "file", "f", "", "with --by-value, read keys from file (- for stdin)")
	keysDeleteCmd.Flags().BoolVarP(&keysYes, "yes", "y", false, "do not ask for confirmation")

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysAddCmd)
	keysCmd.AddCommand(keysDeleteCmd)
	keysCmd.AddCommand(keysResetCmd)
	keysCmd.AddCommand(keysDeactivateCmd)
	keysCmd.AddCommand(keysToggleCmd)
	keysCmd.AddCommand(keysRevealCmd)
	keysCmd.AddCommand(keysDetailsCmd)
}

func batchIDAction(verb string, action func(*adminapi.Client, *cobra.Command, []int64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDArgs(args)
		if err != nil {
			return err
		}
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}
		if err := action(client, cmd, ids); err != nil {
			return err
		}
		fmt.Printf("%s %s %d key(s)\n", color.GreenString("✓"), verb, len(ids))
		return nil
	}
}

// parseIDArgs accepts ids as separate arguments or comma separated.
// Duplicates are dropped.
func parseIDArgs(args []string) ([]int64, error) {
	parsed, err := validation.ParseKeyIDs(strings.Join(args, ","))
	if err != nil {
		return nil, fmt.Errorf("invalid key id: %w", err)
	}
	req := validation.NewRequest(parsed...)
	if req.Empty() {
		return nil, fmt.Errorf("at least one key id is required")
	}
	ids := make([]int64, req.Len())
	for i, id := range req.IDs() {
		ids[i] = int64(id)
	}
	return ids, nil
}

// collectKeys merges keys from args and file, dropping blanks and duplicates.
func collectKeys(args []string, file string) ([]string, error) {
	text := strings.Join(args, "\n")
	if file != "" {
		var (
			raw []byte
			err error
		)
		if file == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read keys: %w", err)
		}
		text += "\n" + string(raw)
	}

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == ' ' || r == '\t'
	})
	seen := make(map[string]struct{}, len(fields))
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		keys = append(keys, f)
	}
	return keys, nil
}

func renderKeys(keys []adminapi.APIKey) string {
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		status := "valid"
		if !k.IsValid {
			status = "invalid"
		}
		lastUsed := "-"
		if k.LastUsed != nil {
			lastUsed = *k.LastUsed
		}
		rows = append(rows, []string{
			strconv.FormatInt(k.ID, 10),
			k.KeyPartial,
			status,
			strconv.Itoa(k.FailureCount),
			lastUsed,
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "KEY", "STATUS", "FAILURES", "LAST USED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 2 && row >= 0 && row < len(rows) && rows[row][2] == "invalid":
				return invalidStyle
			}
			return cellStyle
		}).
		String()
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}
