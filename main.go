package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/meeples-gambit/internal/board"
	"github.com/robalobadob/meeples-gambit/internal/bus"
	"github.com/robalobadob/meeples-gambit/internal/config"
	"github.com/robalobadob/meeples-gambit/internal/controller"
	"github.com/robalobadob/meeples-gambit/internal/httpserver"
	"github.com/robalobadob/meeples-gambit/internal/protocol"
	"github.com/robalobadob/meeples-gambit/internal/store"
)

func main() {
	envFile := flag.String("env", "", "optional .env file (defaults to ./.env)")
	mint := flag.String("mint-admin-token", "", "print an admin token for `subject` and exit")
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	setupLogging(cfg)

	if *mint != "" {
		tok, exp, err := httpserver.SignAdminToken(cfg.AdminSecret, *mint, time.Duration(cfg.AdminTokenDays)*24*time.Hour)
		if err != nil {
			log.Fatal().Err(err).Msg("mint admin token")
		}
		log.Info().Str("subject", *mint).Time("expires", exp).Msg("admin token minted")
		fmt.Println(tok)
		return
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("controller exited")
	}
}

func setupLogging(cfg config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func openJournal(path string) (store.Journal, func(), error) {
	if path == "" {
		log.Warn().Msg("DB_PATH empty, match journal kept in memory")
		return store.NewMemoryJournal(), func() {}, nil
	}
	db, err := openDB(path)
	if err != nil {
		return nil, nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store.NewSQLite(db), func() { _ = db.Close() }, nil
}

func run(cfg config.Config) error {
	layout, err := board.Load(cfg.BoardFile)
	if err != nil {
		return fmt.Errorf("board: %w", err)
	}
	journal, closeJournal, err := openJournal(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer closeJournal()

	topics := protocol.NewTopics(cfg.TopicRoot)
	var ctrl *controller.Controller
	deliver := func(topic string, payload []byte) { ctrl.Deliver(topic, payload) }

	var b bus.Bus
	closeBus := func() {}
	if cfg.DryRun {
		mem := bus.NewMemory(topics.DisplayAck(), cfg.Timing.AckTimeout, true)
		mem.SetHandler(deliver)
		b = mem
		log.Warn().Msg("dry run: no broker, publishes stay in memory")
	} else {
		m := bus.NewMQTT(bus.MQTTConfig{
			Broker:          cfg.Broker,
			ClientID:        cfg.ClientIDPrefix + "_" + uuid.NewString()[:8],
			AckTopic:        topics.DisplayAck(),
			ConnectionTopic: topics.Connection(),
			WillTopic:       topics.Status(),
			WillPayload:     string(protocol.StatusOffline),
			AckTimeout:      cfg.Timing.AckTimeout,
		}, deliver, log.Logger)
		b, closeBus = m, m.Close
	}

	ctrl = controller.New(controller.Deps{
		Bus:     b,
		Topics:  topics,
		Board:   layout,
		Journal: journal,
		Rand:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(os.Getpid()))),
		Timing:  cfg.Timing,
		Log:     log.Logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, t := range topics.Subscriptions() {
		if err := b.Subscribe(t); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	if m, ok := b.(*bus.MQTT); ok {
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := m.Connect(cctx)
		cancel()
		if err != nil {
			return err
		}
	}
	defer closeBus()

	api := httpserver.New(ctrl, journal, httpserver.Options{
		ClientOrigin: cfg.ClientOrigin,
		AdminSecret:  cfg.AdminSecret,
	}, log.Logger)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("status API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status API exited")
		}
	}()

	ctrl.Start()
	log.Info().Str("root", cfg.TopicRoot).Bool("dryRun", cfg.DryRun).Msg("controller running")
	_ = ctrl.Run(ctx)

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
	ctrl.Shutdown()
	return nil
}
