package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/log"
)

var (
	dappMessage string
	dappQROut   string
)

func init() {
	rootCmd.AddCommand(dappConnectCmd)
	dappConnectCmd.Flags().StringVar(&dappMessage, "message", "Sign in to moff wallet", "message the wallet is asked to sign")
	dappConnectCmd.Flags().StringVar(&dappQROut, "qr-out", "dapp.png", "QR code PNG file of the pairing URI")
}

var dappConnectCmd = &cobra.Command{
	Use:   "dapp-connect",
	Short: "Act as a dapp: offer a pairing, then ask the wallet to sign a message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		meta := walletconnect.ClientMeta{Name: "moff-wallet cli", Description: "WalletConnect test dapp"}
		bridge := ""
		if err := config.Read(configPath); err == nil {
			bridge = config.Global.WalletConnect.Bridge
		}
		client, err := walletconnect.NewDappClient(meta, bridge, 0)
		if err != nil {
			return err
		}
		wallet, err := client.Connect(ctx, dappMessage, func(uri string) error {
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return walletconnect.WriteQRCode(uri, dappQROut)
		})
		if err != nil {
			return err
		}
		switch {
		case wallet.Confirmed():
			log.Infof("wallet %v confirmed with accounts %v", wallet.Meta.Name, wallet.Accounts)
		case wallet.Approved():
			log.Warnf("wallet %v approved the session but did not sign", wallet.Meta.Name)
		default:
			log.Warn("wallet rejected the session")
		}
		return nil
	},
}
