package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	trendRange string
	logsPage   int
	logsSize   int
	logsClear  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Call statistics and logs",
}

var statsTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show call totals per model over a range",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}
		trend, err := client.Trend(cmd.Context(), trendRange)
		if err != nil {
			return err
		}
		if len(trend.Datasets) == 0 {
			fmt.Println("No calls in range.")
			return nil
		}

		rows := make([][]string, 0, len(trend.Datasets))
		for _, ds := range trend.Datasets {
			total, peak := 0, 0
			for _, n := range ds.Data {
				total += n
				peak = max(peak, n)
			}
			rows = append(rows, []string{ds.Label, strconv.Itoa(total), strconv.Itoa(peak)})
		}
		fmt.Printf("Range %s, %d buckets\n", trendRange, len(trend.Labels))
		fmt.Println(renderTable([]string{"MODEL", "CALLS", "PEAK"}, rows))
		return nil
	},
}

var statsErrorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show recorded upstream errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}

		if logsClear {
			if !confirmYesNo("Delete every error log entry?") {
				return fmt.Errorf("aborted")
			}
			if err := client.ClearErrorLogs(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("%s Error logs cleared\n", color.GreenString("✓"))
			return nil
		}

		page, err := client.ErrorLogs(cmd.Context(), logsPage, logsSize)
		if err != nil {
			return err
		}
		if len(page.Logs) == 0 {
			fmt.Println("No error logs.")
			return nil
		}
		rows := make([][]string, 0, len(page.Logs))
		for _, l := range page.Logs {
			rows = append(rows, []string{l.Timestamp, l.KeyPartial, l.ModelName, statusCode(l.IdentificationCode), l.ErrorMessage})
		}
		fmt.Println(renderTable([]string{"TIME", "KEY", "MODEL", "CODE", "ERROR"}, rows))
		fmt.Printf("Page %d of %d\n", page.CurrentPage, page.TotalPages)
		return nil
	},
}

var statsRequestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Show proxied request logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := mustAuth(cmd.Context())
		if err != nil {
			return err
		}
		page, err := client.RequestLogs(cmd.Context(), logsPage, logsSize)
		if err != nil {
			return err
		}
		if len(page.Logs) == 0 {
			fmt.Println("No request logs.")
			return nil
		}
		rows := make([][]string, 0, len(page.Logs))
		for _, l := range page.Logs {
			rows = append(rows, []string{l.Timestamp, l.KeyPartial, l.ModelName, statusCode(l.IdentificationCode)})
		}
		fmt.Println(renderTable([]string{"TIME", "KEY", "MODEL", "CODE"}, rows))
		fmt.Printf("Page %d of %d\n", page.CurrentPage, page.TotalPages)
		return nil
	},
}

func init() {
	statsTrendCmd.Flags().StringVar(&trendRange, "range", "7d", "trend range: 1d, 7d or 30d")

	for _, c := range []*cobra.Command{statsErrorsCmd, statsRequestsCmd} {
		c.Flags().IntVar(&logsPage, "page", 1, "page number")
		c.Flags().IntVar(&logsSize, "size", 20, "entries per page (max 50)")
	}
	statsErrorsCmd.Flags().BoolVar(&logsClear, "clear", false, "delete every error log entry")

	statsCmd.AddCommand(statsTrendCmd)
	statsCmd.AddCommand(statsErrorsCmd)
	statsCmd.AddCommand(statsRequestsCmd)
}

func statusCode(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}
