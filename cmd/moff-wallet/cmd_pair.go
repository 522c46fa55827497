package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"moff.io/moff-wallet/internal/walletconnect"
)

var pairOut string

func init() {
	rootCmd.AddCommand(pairCmd)
	pairCmd.Flags().StringVarP(&pairOut, "out", "o", "walletconnect.png", "QR code PNG file")
}

var pairCmd = &cobra.Command{
	Use:   "pair <wc-uri>",
	Short: "Check a WalletConnect URI and write it as a QR code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uri, err := walletconnect.ParseURI(args[0])
		if err != nil {
			return err
		}
		if err := walletconnect.WriteQRCode(args[0], pairOut); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "topic %s, version %d, qr code written to %s\n", uri.Topic, uri.Version, pairOut)
		return nil
	},
}
