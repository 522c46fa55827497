package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/ratelimit"

	"moff.io/moff-wallet/internal/aws"
	"moff.io/moff-wallet/internal/cache"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/database"
	"moff.io/moff-wallet/internal/databus"
	"moff.io/moff-wallet/internal/deeplink"
	"moff.io/moff-wallet/internal/http"
	"moff.io/moff-wallet/internal/requests"
	"moff.io/moff-wallet/internal/rpc"
	"moff.io/moff-wallet/internal/session"
	"moff.io/moff-wallet/internal/starter"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/log"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wallet HTTP and gRPC servers with their workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Configuration) error {
	log.Infof("Starting app")
	initReporters(cfg)

	database.Init(&cfg.Database)
	defer database.Close()
	if cfg.Redis.Address != "" {
		cache.Init(&cfg.Redis)
		defer cache.Close()
	}
	publisher := newPublisher(cfg)

	var elems []starter.Startable
	allowlist := allowlistSource(cfg, &elems)
	parser := deeplink.NewParser(allowlist, log.Tagged())
	accounts := database.Accounts{}

	relay := walletconnect.NewRelay(ctx, walletconnect.RelayOptions{
		Meta:        walletMeta(cfg),
		ReadTimeout: cfg.WalletConnect.ReadTimeout,
		Intake:      walletconnect.NewIntake(cfg.WalletConnect.EnabledChains),
		Store:       database.Sessions{},
		Accounts:    accounts,
		Logger:      log.Tagged(),
	})
	defer relay.Close()

	loop := requests.NewLoop(0)
	orchestrator := requests.NewOrchestrator(loop, relay, accounts,
		requests.WithPublisher(publisher), requests.WithLogger(log.Tagged()))
	relay.SetSink(orchestrator)

	dispatcher := deeplink.NewDispatcher(parser, relay, deeplink.LogNavigator{}, accounts,
		deeplink.WithPublisher(publisher), deeplink.WithLogger(log.Tagged()))

	httpOpts := http.Options{
		Address:            cfg.Server.HTTPAddress,
		Timeout:            cfg.Server.Timeout,
		DeepLinks:          dispatcher,
		Modal:              orchestrator,
		Pairer:             relay,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	}
	if cache.RateLimiter != nil {
		httpOpts.RateLimiter = cache.RateLimiter
	}
	if cfg.Session.BaseURL != "" {
		httpOpts.Session = newInitializer(cfg)
	}
	grpcServer := rpc.NewServer(cfg.Server.GRPCAddress)

	elems = append(elems, loop, grpcServer, http.NewServer(httpOpts),
		starter.Func(func(ctx context.Context) { resumeSessions(ctx, relay) }))
	if cfg.Aws.DeepLinkQueueURL != "" && aws.Client != nil {
		if cache.Redis == nil {
			log.Warn("deep link queue configured without redis, queue consumer disabled")
		} else {
			worker := aws.Client.NewSQSWorker(cfg.Aws.DeepLinkQueueURL, cfg.Aws.QueueWorkers,
				cache.NewRedisDeduper(cache.Redis), aws.DeepLinkHandler(dispatcher))
			elems = append(elems, starter.Func(worker.Run))
		}
	}

	starter.Start(ctx, elems...)
	grpcServer.Watch(ctx, rpc.RequestLoopService, loop.Stopped())

	<-ctx.Done()
	log.Info("Shutting down...")
	starter.Stop(elems...)
	<-loop.Stopped()
	return nil
}

func newPublisher(cfg *config.Configuration) databus.Publisher {
	databus.SetTopics(cfg.Kafka.DeepLinkTopic, cfg.Kafka.RequestTopic)
	if cfg.Kafka.Servers == "" {
		return databus.LocalBus{}
	}
	if err := databus.InitDataBus(cfg.Kafka.Servers); err != nil {
		log.Errorf("kafka unavailable, events are logged only:%v", err)
		return databus.LocalBus{}
	}
	return databus.GetDataBus()
}

// allowlistSource returns the configured allowlist, refreshed from S3 when
// an object key is set.
func allowlistSource(cfg *config.Configuration, elems *[]starter.Startable) deeplink.AllowlistSource {
	static := deeplink.Allowlist{}
	for _, e := range cfg.DeepLink.Allowlist {
		static.Entries = append(static.Entries, deeplink.AllowlistEntry{URL: e.URL, OpenInApp: e.OpenInApp})
	}
	if aws.Client == nil || cfg.Aws.AllowlistKey == "" {
		return deeplink.StaticAllowlist(static)
	}
	refreshing := deeplink.NewRefreshingAllowlist(static, aws.Client.AllowlistLoader(cfg.Aws.AllowlistKey))
	*elems = append(*elems, starter.Func(func(ctx context.Context) {
		aws.RefreshAllowlist(ctx, refreshing, cfg.Aws.AllowlistInterval)
	}))
	return refreshing
}

func walletMeta(cfg *config.Configuration) walletconnect.ClientMeta {
	m := cfg.WalletConnect.Meta
	return walletconnect.ClientMeta{Name: m.Name, Description: m.Description, URL: m.URL, Icons: m.Icons}
}

func newInitializer(cfg *config.Configuration) *session.Initializer {
	var store session.Store = &session.MemoryStore{}
	if cache.Redis != nil {
		store = session.NewRedisStore(cache.Redis, session.DefaultRedisKey, 0)
	}
	opts := session.Options{
		MaxChallengeRetries: cfg.Session.MaxChallengeRetries,
		UpgradeOnInit:       func() bool { return cfg.Session.UpgradeOnInit },
		OnStateChange:       func(s session.State) { log.Debugf("session state: %v", s) },
		Logger:              log.Tagged(),
	}
	if cfg.Session.AttemptsPerSecond > 0 {
		opts.Limiter = ratelimit.New(cfg.Session.AttemptsPerSecond)
	}
	return session.NewInitializer(
		session.NewHTTPService(cfg.Session.BaseURL, cfg.Session.Timeout, store),
		session.Registry{session.ChallengeTypeHashcash: session.HashcashSolver{}},
		opts,
	)
}

func resumeSessions(ctx context.Context, relay *walletconnect.Relay) {
	records, err := database.Sessions{}.LoadSessions(ctx)
	if err != nil {
		log.Error(err)
		return
	}
	for _, rec := range records {
		if err := relay.Resume(ctx, rec); err != nil {
			log.Warnf("resume walletconnect session %v:%v", rec.Topic, err)
			continue
		}
		log.Infof("resumed walletconnect session %v", rec.Topic)
	}
}
