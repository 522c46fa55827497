package database

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

// WalletConnectSession is an approved dapp session, kept so it can be
// resumed after a restart.
type WalletConnectSession struct {
	Topic     string      `gorm:"primaryKey;type:varchar(100)"`
	ClientID  string      `gorm:"type:varchar(100)"`
	PeerID    string      `gorm:"type:varchar(100)"`
	Bridge    string      `gorm:"type:varchar(500)"`
	Key       string      `gorm:"type:varchar(64)"`
	ChainID   int         `gorm:"type:int8"`
	Accounts  StringArray `gorm:"type:jsonb"`
	DappName  string      `gorm:"type:varchar(200)"`
	DappURL   string      `gorm:"type:varchar(500)"`
	DappIcon  string      `gorm:"type:varchar(500)"`
	CreatedAt int64       `gorm:"type:int8"`
	DeletedAt *int64      `gorm:"type:int8;index"`
}

func newWalletConnectSession(rec walletconnect.SessionRecord) *WalletConnectSession {
	return &WalletConnectSession{
		Topic:     rec.Topic,
		ClientID:  rec.ClientID,
		PeerID:    rec.PeerID,
		Bridge:    rec.Bridge,
		Key:       rec.Key,
		ChainID:   rec.ChainID,
		Accounts:  rec.Accounts,
		DappName:  rec.Dapp.Name,
		DappURL:   rec.Dapp.URL,
		DappIcon:  rec.Dapp.Icon,
		CreatedAt: rec.CreatedAt.UnixMilli(),
	}
}

func (in *WalletConnectSession) Record() walletconnect.SessionRecord {
	return walletconnect.SessionRecord{
		Topic:     in.Topic,
		ClientID:  in.ClientID,
		PeerID:    in.PeerID,
		Bridge:    in.Bridge,
		Key:       in.Key,
		ChainID:   in.ChainID,
		Accounts:  in.Accounts,
		Dapp:      walletconnect.Dapp{Name: in.DappName, URL: in.DappURL, Icon: in.DappIcon},
		CreatedAt: time.UnixMilli(in.CreatedAt),
	}
}

// Save inserts the session or revives a deleted one with the same topic.
func (in WalletConnectSession) Save(ctx context.Context) error {
	err := WalletDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "topic"}},
		UpdateAll: true,
	}).Create(&in).Error
	return errors.WrapAndReport(err, "save walletconnect session")
}

func (WalletConnectSession) SelectActive(ctx context.Context) ([]*WalletConnectSession, error) {
	var entities []*WalletConnectSession
	err := WalletDB.WithContext(ctx).Where("deleted_at IS NULL").Order("created_at").Find(&entities).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "query walletconnect sessions")
	}
	return entities, nil
}

func (WalletConnectSession) Delete(ctx context.Context, topic string) error {
	err := WalletDB.WithContext(ctx).Model(&WalletConnectSession{}).
		Where("topic = ? AND deleted_at IS NULL", topic).
		Update("deleted_at", time.Now().UnixMilli()).Error
	return errors.WrapAndReport(err, "delete walletconnect session")
}

// Sessions is the relay's walletconnect.SessionStore.
type Sessions struct{}

func (Sessions) SaveSession(ctx context.Context, rec walletconnect.SessionRecord) error {
	return newWalletConnectSession(rec).Save(ctx)
}

func (Sessions) DeleteSession(ctx context.Context, topic string) error {
	return WalletConnectSession{}.Delete(ctx, topic)
}

// LoadSessions returns the sessions to resume at startup.
func (Sessions) LoadSessions(ctx context.Context) ([]walletconnect.SessionRecord, error) {
	entities, err := WalletConnectSession{}.SelectActive(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]walletconnect.SessionRecord, 0, len(entities))
	for _, e := range entities {
		records = append(records, e.Record())
	}
	return records, nil
}
