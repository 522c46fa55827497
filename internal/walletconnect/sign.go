package walletconnect

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifySignature checks that signatureHex is signAddrHex's personal_sign
// signature over msg.
func VerifySignature(signAddrHex, signatureHex string, msg []byte) bool {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	msg = accounts.TextHash(msg)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27 // Transform yellow paper V from 27/28 to 0/1
	}
	recovered, err := crypto.SigToPub(msg, sig)
	if err != nil {
		return false
	}
	recoveredAddr := crypto.PubkeyToAddress(*recovered)
	return strings.EqualFold(signAddrHex, recoveredAddr.Hex())
}

// signedMessage decodes a sign request message, hex when 0x prefixed.
func signedMessage(msg string) []byte {
	if strings.HasPrefix(msg, "0x") {
		if b, err := hexutil.Decode(msg); err == nil {
			return b
		}
	}
	return []byte(msg)
}

func hexToInt(s string) (int, error) {
	v, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
