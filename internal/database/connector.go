package database

import (
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

var WalletDB *gorm.DB

// Open connects to postgres, or to a sqlite file for the sqlite driver, and
// migrates the wallet tables.
func Open(conf *config.DBCredential) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch conf.Driver {
	case "sqlite":
		dialector = sqlite.Open(conf.Dsn())
	default:
		dialector = postgres.Open(conf.Dsn())
	}
	cli, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", conf.Driver)
	}

	db, err := cli.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get db conn")
	}
	if conf.Driver == "sqlite" {
		// an in-memory database lives in a single connection
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrapf(err, "ping to %s", conf.Driver)
	}

	err = cli.AutoMigrate(
		&WalletAccount{},
		&WalletConnectSession{},
	)
	if err != nil {
		return nil, errors.Wrap(err, "autoMigrate tables")
	}
	return cli, nil
}

func Init(conf *config.DBCredential) {
	cli, err := Open(conf)
	if err != nil {
		log.Fatal(err)
	}
	WalletDB = cli
	log.Infof("Connected to %s wallet database...", conf.Driver)
}

func Close() {
	if WalletDB == nil {
		return
	}
	if db, err := WalletDB.DB(); err == nil {
		_ = db.Close()
	}
}
