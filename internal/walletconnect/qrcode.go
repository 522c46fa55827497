package walletconnect

import (
	"github.com/skip2/go-qrcode"

	"moff.io/moff-wallet/pkg/errors"
)

const qrSize = 256

// QRCode renders uri as a PNG for wallets to scan.
func QRCode(uri string) ([]byte, error) {
	png, err := qrcode.Encode(uri, qrcode.Medium, qrSize)
	if err != nil {
		return nil, errors.Wrap(err, "encode wallet connect qr code")
	}
	return png, nil
}

// WriteQRCode renders uri into a PNG file.
func WriteQRCode(uri, filename string) error {
	return errors.Wrap(qrcode.WriteFile(uri, qrcode.Medium, qrSize, filename), "write wallet connect qr code")
}
