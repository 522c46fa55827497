package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	signerAddr   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	viewOnlyAddr = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func useMemoryDB(t *testing.T) {
	cli, err := Open(&config.DBCredential{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	WalletDB = cli
	t.Cleanup(Close)
}

func TestAccounts(t *testing.T) {
	useMemoryDB(t)

	_, err := WalletAccount{}.Create(signerAddr, AccountKindSigner, "main")
	require.NoError(t, err)
	_, err = WalletAccount{}.Create(viewOnlyAddr, AccountKindViewOnly, "watch")
	require.NoError(t, err)

	_, err = WalletAccount{}.Create("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", AccountKindSigner, "again")
	assert.ErrorIs(t, err, ErrDuplicateAccount)
	_, err = WalletAccount{}.Create("0x123", AccountKindSigner, "bad")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	accounts := Accounts{}
	assert.True(t, accounts.HasAccount(viewOnlyAddr))
	assert.True(t, accounts.HasAccount("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	assert.False(t, accounts.HasAccount("0x0000000000000000000000000000000000000001"))
	assert.True(t, accounts.IsSigner(signerAddr))
	assert.False(t, accounts.IsSigner(viewOnlyAddr))
	assert.Equal(t, []string{signerAddr}, accounts.SignerAddresses())

	assert.Equal(t, "", accounts.ActiveAddress())
	require.NoError(t, accounts.SetActive(viewOnlyAddr))
	assert.Equal(t, viewOnlyAddr, accounts.ActiveAddress())
	require.NoError(t, accounts.SetActive(signerAddr))
	assert.Equal(t, signerAddr, accounts.ActiveAddress())
	assert.ErrorIs(t, accounts.SetActive("0x0000000000000000000000000000000000000001"), ErrAccountNotFound)

	require.NoError(t, WalletAccount{}.Remove(signerAddr))
	assert.False(t, accounts.HasAccount(signerAddr))
	assert.Empty(t, accounts.SignerAddresses())
	assert.Equal(t, "", accounts.ActiveAddress())
	assert.True(t, errors.Is(WalletAccount{}.Remove(signerAddr), ErrAccountNotFound))
}

func TestSessions(t *testing.T) {
	useMemoryDB(t)
	ctx := context.Background()
	store := Sessions{}

	rec := walletconnect.SessionRecord{
		Topic:     "topic-1",
		ClientID:  "client",
		PeerID:    "peer",
		Bridge:    "https://bridge.walletconnect.org",
		Key:       "41791102999c339c844880b23950704cc43aa840f3739e365323cda4dfa89e7a",
		ChainID:   10,
		Accounts:  []string{signerAddr},
		Dapp:      walletconnect.Dapp{Name: "Uniswap", URL: "https://app.uniswap.org"},
		CreatedAt: time.UnixMilli(time.Now().UnixMilli()),
	}
	require.NoError(t, store.SaveSession(ctx, rec))

	loaded, err := store.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, rec, loaded[0])

	require.NoError(t, store.DeleteSession(ctx, "topic-1"))
	loaded, err = store.LoadSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	// approving the same topic again revives it
	rec.ChainID = 1
	require.NoError(t, store.SaveSession(ctx, rec))
	loaded, err = store.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 1, loaded[0].ChainID)
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "pk"`)))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: wallet_accounts.address")))
}
