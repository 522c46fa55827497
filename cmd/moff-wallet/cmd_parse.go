package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/deeplink"
	"moff.io/moff-wallet/pkg/log"
)

func init() {
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <url>",
	Short: "Classify a deep link and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		allowlist := deeplink.StaticAllowlist{}
		if err := config.Read(configPath); err != nil {
			log.Warnf("no configuration loaded, parsing without an allowlist:%v", err)
		} else {
			for _, e := range config.Global.DeepLink.Allowlist {
				allowlist.Entries = append(allowlist.Entries, deeplink.AllowlistEntry{URL: e.URL, OpenInApp: e.OpenInApp})
			}
		}
		result := deeplink.NewParser(allowlist, log.Tagged()).Parse(args[0])
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
