package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"moff.io/moff-wallet/internal/aws"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

var (
	configPath string
	logLevel   int
)

var rootCmd = &cobra.Command{
	Use:           "moff-wallet",
	Short:         "Headless wallet: deep links, WalletConnect requests and session setup",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", config.DefaultPath, "configuration file")
	rootCmd.PersistentFlags().IntVar(&logLevel, "log-level", -1, "0 debug, 1 info, 2 warn, 3 error; overrides the config file")
}

func main() {
	defer func() {
		if i := recover(); i != nil {
			log.Fatal(errors.ErrorfAndReport("%v", i))
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up logging. Secrets are
// resolved from SSM when the config names any.
func loadConfig(ctx context.Context) (*config.Configuration, error) {
	if err := config.Read(configPath); err != nil {
		return nil, err
	}
	cfg := config.Global
	level := cfg.Log.Level
	if logLevel >= 0 {
		level = logLevel
	}
	log.SetLevel(level)
	log.SetOutputFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays)

	if cfg.Aws.Region != "" {
		aws.Init(cfg.Aws.Bucket, cfg.Aws.Region)
	}
	if cfg.NeedsSecrets() {
		if aws.Client == nil {
			return nil, errors.New("config refers to ssm secrets but aws.region is not set")
		}
		if err := cfg.ResolveSecrets(ctx, aws.Client.GetParameterFromSSM); err != nil {
			return nil, errors.Wrap(err, "resolve secrets")
		}
	}
	return cfg, nil
}

func initReporters(cfg *config.Configuration) {
	if err := errors.NewSentryReporter(cfg.Reporters.SentryDSN); err != nil {
		log.Warnf("sentry reporter:%v", err)
	}
	errors.NewLarkReporter(cfg.Reporters.LarkWebhook, cfg.Reporters.Silent)
	errors.NewDingTalkReporter(cfg.Reporters.DingTalkWebhook, cfg.Reporters.DingTalkSecret, cfg.Reporters.Silent)
}
