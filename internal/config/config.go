package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const DefaultPath = "internal/config/config.yml"

// DBCredential struct
type DBCredential struct {
	Driver   string `yaml:"driver"`
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

// Dsn returns the postgres DSN, or the sqlite file name for the sqlite driver.
func (c *DBCredential) Dsn() string {
	if c.Driver == "sqlite" {
		return c.Database
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.Address, c.Port, c.User, c.Password, c.Database)
}

// GetRedisAddress returns host:port of the redis server.
func (c *DBCredential) GetRedisAddress() string {
	return fmt.Sprintf("%v:%v", c.Address, c.Port)
}

// Configuration struct
type Configuration struct {
	Log           Log           `yaml:"log"`
	Server        Server        `yaml:"server"`
	Database      DBCredential  `yaml:"database"`
	Redis         DBCredential  `yaml:"redis"`
	Kafka         Kafka         `yaml:"kafka"`
	Aws           Aws           `yaml:"aws"`
	Reporters     Reporters     `yaml:"reporters"`
	DeepLink      DeepLink      `yaml:"deep_link"`
	Session       Session       `yaml:"session"`
	WalletConnect WalletConnect `yaml:"wallet_connect"`
}

type Log struct {
	// 0 debug, 1 info, 2 warn, 3 error
	Level      int    `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type Server struct {
	HTTPAddress string        `yaml:"http_address"`
	GRPCAddress string        `yaml:"grpc_address"`
	Timeout     time.Duration `yaml:"timeout"`
	// requests per minute per client ip, 0 disables limiting
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type Kafka struct {
	Servers       string `yaml:"servers"`
	DeepLinkTopic string `yaml:"deep_link_topic"`
	RequestTopic  string `yaml:"request_topic"`
}

type Aws struct {
	Region            string        `yaml:"region"`
	Bucket            string        `yaml:"bucket"`
	AllowlistKey      string        `yaml:"allowlist_key"`
	DeepLinkQueueURL  string        `yaml:"deep_link_queue_url"`
	QueueWorkers      int           `yaml:"queue_workers"`
	AllowlistInterval time.Duration `yaml:"allowlist_refresh_interval"`
}

type Reporters struct {
	SentryDSN       string        `yaml:"sentry_dsn"`
	LarkWebhook     string        `yaml:"lark_webhook"`
	DingTalkWebhook string        `yaml:"dingtalk_webhook"`
	DingTalkSecret  string        `yaml:"dingtalk_secret"`
	Silent          time.Duration `yaml:"silent"`
}

type AllowlistEntry struct {
	URL       string `yaml:"url"`
	OpenInApp *bool  `yaml:"open_in_app"`
}

type DeepLink struct {
	Allowlist []AllowlistEntry `yaml:"allowlist"`
}

type Session struct {
	BaseURL             string        `yaml:"base_url"`
	MaxChallengeRetries int           `yaml:"max_challenge_retries"`
	UpgradeOnInit       bool          `yaml:"upgrade_on_init"`
	AttemptsPerSecond   int           `yaml:"attempts_per_second"`
	Timeout             time.Duration `yaml:"timeout"`
}

type WalletMeta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Icons       []string `yaml:"icons"`
}

type WalletConnect struct {
	// bridge offered by dapp-connect, a public bridge when empty
	Bridge        string        `yaml:"bridge"`
	Meta          WalletMeta    `yaml:"meta"`
	EnabledChains []int         `yaml:"enabled_chains"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
}

func (in *Configuration) applyDefaults() {
	if in.Server.HTTPAddress == "" {
		in.Server.HTTPAddress = ":8080"
	}
	if in.Server.GRPCAddress == "" {
		in.Server.GRPCAddress = ":9090"
	}
	if in.Database.Driver == "" {
		in.Database.Driver = "postgres"
	}
	if in.Session.MaxChallengeRetries <= 0 {
		in.Session.MaxChallengeRetries = 3
	}
	if in.WalletConnect.ReadTimeout <= 0 {
		in.WalletConnect.ReadTimeout = 5 * time.Minute
	}
	if in.Reporters.Silent <= 0 {
		in.Reporters.Silent = time.Minute
	}
	if in.Aws.AllowlistInterval <= 0 {
		in.Aws.AllowlistInterval = 10 * time.Minute
	}
	if in.Aws.QueueWorkers <= 0 {
		in.Aws.QueueWorkers = 4
	}
	if len(in.WalletConnect.EnabledChains) == 0 {
		in.WalletConnect.EnabledChains = []int{1}
	}
}

// SecretResolver looks up a secret by name, e.g. from AWS SSM.
type SecretResolver func(ctx context.Context, name string) (string, error)

const ssmPrefix = "ssm:"

// ResolveSecrets replaces every secret written as ssm:<name> with its value.
func (in *Configuration) ResolveSecrets(ctx context.Context, resolve SecretResolver) error {
	for _, field := range []*string{
		&in.Database.Password,
		&in.Redis.Password,
		&in.Reporters.SentryDSN,
		&in.Reporters.LarkWebhook,
		&in.Reporters.DingTalkWebhook,
		&in.Reporters.DingTalkSecret,
	} {
		if !strings.HasPrefix(*field, ssmPrefix) {
			continue
		}
		val, err := resolve(ctx, strings.TrimPrefix(*field, ssmPrefix))
		if err != nil {
			return err
		}
		*field = val
	}
	return nil
}

// NeedsSecrets reports whether any secret must be resolved from SSM.
func (in *Configuration) NeedsSecrets() bool {
	for _, v := range []string{in.Database.Password, in.Redis.Password, in.Reporters.SentryDSN,
		in.Reporters.LarkWebhook, in.Reporters.DingTalkWebhook, in.Reporters.DingTalkSecret} {
		if strings.HasPrefix(v, ssmPrefix) {
			return true
		}
	}
	return false
}

func readConfig(path string) (*Configuration, error) {
	logrus.Info("Starting to load configuration file ...")
	dat, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s does not exist", path)
		}
		return nil, err
	}
	t := Configuration{}
	if err := yaml.Unmarshal(dat, &t); err != nil {
		return nil, fmt.Errorf("fail to decode config error: %v", err)
	}
	t.applyDefaults()
	return &t, nil
}

var Global *Configuration

// Read loads the configuration file at path into Global.
func Read(path string) error {
	if path == "" {
		path = DefaultPath
	}
	logrus.Infof("Loading configuration file from %s", path)
	globalConfig, err := readConfig(path)
	if err != nil {
		return err
	}
	Global = globalConfig
	return nil
}
