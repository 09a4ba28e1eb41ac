package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/route-survey/internal/admin"
	"github.com/Spok95/route-survey/internal/availability"
	"github.com/Spok95/route-survey/internal/bot"
	"github.com/Spok95/route-survey/internal/config"
	"github.com/Spok95/route-survey/internal/domain/catalog"
	"github.com/Spok95/route-survey/internal/domain/quota"
	"github.com/Spok95/route-survey/internal/domain/submissions"
	"github.com/Spok95/route-survey/internal/infra/db"
	httpx "github.com/Spok95/route-survey/internal/infra/http"
	"github.com/Spok95/route-survey/internal/infra/logger"
	"github.com/Spok95/route-survey/internal/infra/metrics"
	"github.com/Spok95/route-survey/internal/infra/notify"
	"github.com/Spok95/route-survey/internal/recorder"
	"github.com/Spok95/route-survey/internal/survey"
	"github.com/Spok95/route-survey/internal/tracker"
	"github.com/Spok95/route-survey/migrations"
)

func configPath() string {
	if p := os.Getenv("APP_CONFIG"); p != "" {
		return p
	}
	return "config/example.yaml"
}

type stores struct {
	quotas      quota.Store
	submissions submissions.Store
	close       func()
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("using in-memory storage, state is lost on restart")
		return stores{
			quotas:      quota.NewMemoryStore(),
			submissions: submissions.NewMemoryStore(),
			close:       func() {},
		}, nil
	case "postgres", "":
		if err := db.Migrate(cfg.Postgres.DSN, migrations.FS); err != nil {
			return stores{}, fmt.Errorf("migrations: %w", err)
		}
		log.Info("migrations applied")

		pool, err := db.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return stores{}, err
		}
		log.Info("db connected")
		return stores{
			quotas:      quota.NewRepo(pool),
			submissions: submissions.NewRepo(pool),
			close:       pool.Close,
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newTelegram возвращает nil, если Telegram не настроен.
func newTelegram(cfg config.Config, log *slog.Logger) *tgbotapi.BotAPI {
	if cfg.Telegram.Token == "" || cfg.Telegram.AdminChatID == 0 {
		log.Info("telegram disabled")
		return nil
	}
	// клиент общий для long polling и отправки, поэтому таймаут длиннее опроса
	client := &http.Client{Timeout: time.Duration(cfg.Telegram.PollTimeout)*time.Second + 10*time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		log.Error("telegram init failed, admin bot and notifications disabled", "err", err)
		return nil
	}
	log.Info("telegram authorized", "bot", api.Self.UserName)
	return api
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.App.Env)

	if err := run(cfg, log); err != nil {
		log.Error("service stopped", "err", err)
		os.Exit(1)
	}
	log.Info("graceful shutdown complete")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.LoadFile(cfg.Survey.DefinitionsPath)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	tg := newTelegram(cfg, log)
	var notifier notify.Notifier = notify.Nop{}
	if tg != nil {
		notifier = notify.NewTelegram(tg, cfg.Telegram.AdminChatID)
	}

	m := metrics.New(nil)
	tr := tracker.New(st.quotas, cat, tracker.CategoryLimits(cfg.Quota.CategoryLimits), cfg.Admission.Timeout, log, m)
	res := availability.NewResolver(cat, tr, st.submissions, log)
	rec := recorder.New(cat, res, tr, st.submissions, notifier, log, m, recorder.Options{
		Attempts:      cfg.Admission.Attempts,
		Backoff:       cfg.Admission.Backoff,
		NotifyTimeout: cfg.Telegram.SendTimeout,
	})
	svc := survey.NewService(cat, res, rec, tr)
	adm := admin.New(st.quotas, tr, st.submissions, rec, log)

	srv := httpx.New(cfg.HTTP.Addr, httpx.NewAPI(svc, adm, cfg.Admin.Token, log), cfg.Metrics.Enabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server started", "addr", cfg.HTTP.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if tg != nil {
		adminBot := bot.New(tg, log, cfg.Telegram.AdminChatID, cat, tr, adm)
		g.Go(func() error {
			if err := adminBot.Run(gctx, cfg.Telegram.PollTimeout); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
