package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/LiquorXR/gemini-synapse/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify synapse-admin configuration.

Without arguments, displays every key.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/synapse-admin/config.yaml unless
--config names another file. SYNAPSE_* environment variables override it.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()

		switch len(args) {
		case 0:
			values, err := config.All(path)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s: %s\n", k, values[k])
			}
		case 1:
			value, err := config.Get(path, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
		default:
			if err := config.Set(path, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Set %s in %s\n", args[0], path)
		}
		return nil
	},
}
