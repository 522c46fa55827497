package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"moff.io/moff-wallet/internal/cache"
	"moff.io/moff-wallet/internal/session"
	"moff.io/moff-wallet/pkg/errors"
)

var sessionReset bool

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionInitCmd)
	sessionInitCmd.Flags().BoolVar(&sessionReset, "reset", false, "forget the stored session id first")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the backend session",
}

var sessionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Find or create the backend session, solving challenges when asked to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if cfg.Session.BaseURL == "" {
			return errors.New("session.base_url is not configured")
		}
		if cfg.Redis.Address != "" {
			cache.Init(&cfg.Redis)
			defer cache.Close()
			if sessionReset {
				if err := cache.DeleteFromPrefix(ctx, session.DefaultRedisKey); err != nil {
					return err
				}
			}
		}
		result, err := newInitializer(cfg).Initialize(ctx)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
