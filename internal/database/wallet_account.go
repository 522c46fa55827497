package database

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

type AccountKind string

const (
	AccountKindSigner   = AccountKind("signer")
	AccountKindViewOnly = AccountKind("view_only")
)

var (
	ErrInvalidAddress   = errors.New("invalid account address")
	ErrDuplicateAccount = errors.New("account already added")
	ErrAccountNotFound  = errors.New("account not found")
)

// WalletAccount is an address the wallet holds, with or without its key.
type WalletAccount struct {
	Address   string      `gorm:"primaryKey;type:varchar(42)"`
	Kind      AccountKind `gorm:"type:varchar(20);index"`
	Name      string      `gorm:"type:varchar(100)"`
	Active    bool
	CreatedAt int64  `gorm:"type:int8"`
	DeletedAt *int64 `gorm:"type:int8"`
}

// normalizeAddress returns the checksummed form of a hex address.
func normalizeAddress(address string) (string, bool) {
	if !common.IsHexAddress(address) {
		return "", false
	}
	return common.HexToAddress(address).Hex(), true
}

func (WalletAccount) Create(address string, kind AccountKind, name string) (*WalletAccount, error) {
	normalized, ok := normalizeAddress(address)
	if !ok {
		return nil, errors.Wrap(ErrInvalidAddress, address)
	}
	entity := &WalletAccount{
		Address:   normalized,
		Kind:      kind,
		Name:      name,
		CreatedAt: time.Now().UnixMilli(),
	}
	err := WalletDB.Create(entity).Error
	if IsDuplicateKeyErr(err) {
		return nil, errors.Wrap(ErrDuplicateAccount, normalized)
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "create wallet account")
	}
	return entity, nil
}

func (WalletAccount) SelectOne(address string) (*WalletAccount, error) {
	normalized, ok := normalizeAddress(address)
	if !ok {
		return nil, nil
	}
	var entity WalletAccount
	err := WalletDB.Where("address = ? AND deleted_at IS NULL", normalized).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "query wallet account")
	}
	return &entity, nil
}

func (WalletAccount) SelectAll() ([]*WalletAccount, error) {
	var entities []*WalletAccount
	err := WalletDB.Where("deleted_at IS NULL").Order("created_at").Find(&entities).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "query wallet accounts")
	}
	return entities, nil
}

// Remove soft deletes the account.
func (WalletAccount) Remove(address string) error {
	normalized, _ := normalizeAddress(address)
	res := WalletDB.Model(&WalletAccount{}).
		Where("address = ? AND deleted_at IS NULL", normalized).
		Updates(map[string]interface{}{"deleted_at": time.Now().UnixMilli(), "active": false})
	if res.Error != nil {
		return errors.WrapAndReport(res.Error, "remove wallet account")
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Accounts serves account lookups to the deep link dispatcher, the
// WalletConnect relay and the request orchestrator. Lookup failures are
// logged and read as "no such account".
type Accounts struct{}

func (Accounts) lookup(address string) *WalletAccount {
	account, err := WalletAccount{}.SelectOne(address)
	if err != nil {
		log.Error(err)
		return nil
	}
	return account
}

func (a Accounts) HasAccount(address string) bool {
	return a.lookup(address) != nil
}

func (a Accounts) IsSigner(address string) bool {
	account := a.lookup(address)
	return account != nil && account.Kind == AccountKindSigner
}

// SignerAddresses returns signer accounts, the active one first.
func (Accounts) SignerAddresses() []string {
	var entities []*WalletAccount
	err := WalletDB.Where("kind = ? AND deleted_at IS NULL", AccountKindSigner).
		Order("active DESC").Order("created_at").Find(&entities).Error
	if err != nil {
		log.Error(errors.WrapAndReport(err, "query signer accounts"))
		return nil
	}
	addresses := make([]string, 0, len(entities))
	for _, e := range entities {
		addresses = append(addresses, e.Address)
	}
	return addresses
}

func (Accounts) ActiveAddress() string {
	var entity WalletAccount
	err := WalletDB.Where("active = ? AND deleted_at IS NULL", true).First(&entity).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error(errors.WrapAndReport(err, "query active account"))
		}
		return ""
	}
	return entity.Address
}

// SetActive makes address the only active account.
func (Accounts) SetActive(address string) error {
	normalized, ok := normalizeAddress(address)
	if !ok {
		return errors.Wrap(ErrInvalidAddress, address)
	}
	return WalletDB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&WalletAccount{}).
			Where("address = ? AND deleted_at IS NULL", normalized).
			Update("active", true)
		if res.Error != nil {
			return errors.WrapAndReport(res.Error, "activate wallet account")
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		err := tx.Model(&WalletAccount{}).
			Where("address <> ? AND active = ?", normalized, true).
			Update("active", false).Error
		return errors.WrapAndReport(err, "deactivate wallet accounts")
	})
}
