package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SlackScheduler/api"
	"SlackScheduler/config"
	"SlackScheduler/db"
	"SlackScheduler/internal/core"
	"SlackScheduler/internal/logging"
	"SlackScheduler/internal/router"
	"SlackScheduler/internal/slack"
	"SlackScheduler/internal/sqlite"
	"SlackScheduler/scheduler"
	"SlackScheduler/utils"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

type Options struct {
	EnvFile     string `long:"env-file" description:"dotenv file to load" default:".env"`
	MigrateOnly bool   `long:"migrate-only" description:"apply database migrations and exit"`
}

type store interface {
	core.CredentialStore
	core.MessageStore
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	var opts Options
	if _, err := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash).Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Stdout.WriteString(err.Error() + "\n")
			os.Exit(0)
		}
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	config.LoadEnv(opts.EnvFile)
	cfg := config.Load()
	logging.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		for _, e := range multierr.Errors(err) {
			log.Error().Err(e).Msg("invalid configuration")
		}
		os.Exit(1)
	}

	if err := run(cfg, opts); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func openStore(ctx context.Context, cfg config.Config) (store, error) {
	if cfg.StoreDriver == "sqlite" {
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite store")
		return sqlite.Open(cfg.SQLitePath)
	}
	gdb, err := db.Connect(ctx, cfg.DatabaseURL, 8)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}
	return db.New(gdb), nil
}

func listen(ctx context.Context, cfg config.Config) (net.Listener, error) {
	if cfg.NgrokAuthToken == "" {
		return net.Listen("tcp", ":"+cfg.Port)
	}
	tun, err := ngrok.Listen(ctx, ngrokconfig.HTTPEndpoint(), ngrok.WithAuthtoken(cfg.NgrokAuthToken))
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", tun.URL()).Msg("ngrok tunnel ready, point SLACK_REDIRECT_URI at <url>/api/auth/slack/callback")
	return tun, nil
}

func run(cfg config.Config, opts Options) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()
	if opts.MigrateOnly {
		log.Info().Msg("migrations applied")
		return nil
	}

	sealer, err := utils.NewSealer(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	creds := utils.NewSealedCredentials(st, sealer)

	client := slack.New(slack.Config{
		ClientID:     cfg.SlackClientID,
		ClientSecret: cfg.SlackClientSecret,
		RedirectURI:  cfg.SlackRedirectURI,
		APIURL:       cfg.SlackAPIURL,
		Timeout:      cfg.SlackTimeout,
		RatePerSec:   cfg.SlackRatePerSec,
	})

	var svcOpts []api.ServiceOption
	if cfg.RedisURL != "" {
		rdb, rerr := utils.NewRedis(ctx, cfg.RedisURL)
		if rerr != nil {
			log.Warn().Err(rerr).Msg("redis unavailable, channel listings are not cached")
		} else {
			defer func() { err = multierr.Append(err, rdb.Close()) }()
			svcOpts = append(svcOpts, api.WithChannelCache(utils.NewChannelCache(rdb, cfg.ChannelCacheTTL)))
		}
	}
	svc := api.NewService(creds, st, client, svcOpts...)

	sched := scheduler.New(st, creds, client,
		scheduler.WithInterval(cfg.SchedulerInterval),
		scheduler.WithWorkers(cfg.SchedulerWorkers),
		scheduler.WithBatch(cfg.SchedulerBatch),
	)
	sched.Start()
	defer sched.Stop()

	ln, err := listen(ctx, cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           router.New(svc, st, router.Options{Env: cfg.Env, FrontendURL: cfg.FrontendURL, Logger: log.Logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("server running")
		errCh <- srv.Serve(ln)
	}()
	if _, nerr := daemon.SdNotify(false, daemon.SdNotifyReady); nerr != nil {
		log.Debug().Err(nerr).Msg("sd_notify ready")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case serr := <-errCh:
		if !errors.Is(serr, http.ErrServerClosed) {
			return serr
		}
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
