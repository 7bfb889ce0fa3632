package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"log/slog"

	"github.com/mattn/go-sqlite3"

	"github.com/ponyo877/chatroom/server/adaptor"
	"github.com/ponyo877/chatroom/server/config"
	"github.com/ponyo877/chatroom/server/domain"
	"github.com/ponyo877/chatroom/server/repository"
	"github.com/ponyo877/chatroom/server/usecase"
)

func regex(re, s string) (bool, error) {
	return regexp.MatchString(re, s)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(logger, "chatroom")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sql.Register("sqlite3_with_go_func",
		&sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("regexp", regex, true)
			},
		})
	conn, err := sql.Open("sqlite3_with_go_func", cfg.Server.DBPath)
	if err != nil {
		logger.Error("failed to open db", "path", cfg.Server.DBPath, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	rp := repository.NewRepository(conn)
	if err := rp.Init(); err != nil {
		logger.Error("failed to initialize db schema", "error", err)
		os.Exit(1)
	}
	uc := usecase.NewUsecase(rp)
	seedDefaultRoom(uc, cfg.Chat.DefaultRoom, logger)

	registry := domain.NewRegistry(logger)
	statusBus := domain.NewBus[domain.StatusChange]()
	discoBus := domain.NewBus[domain.Disconnect]()
	su := usecase.NewSessionUsecase(uc, registry, statusBus, discoBus, usecase.SessionConfig{
		HistoryLimit:  cfg.Chat.HistoryLimit,
		RateLimit:     cfg.Chat.RateLimit,
		RateWindow:    cfg.Chat.RateWindow,
		TypingTimeout: cfg.Chat.TypingTimeout,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	su.Start(ctx)

	disconnects := discoBus.Subscribe()
	go func() {
		for d := range disconnects {
			logger.Info("user disconnected", "user", d.UserID, "username", d.Username)
		}
	}()

	ad := adaptor.NewAdaptor(su, uc, logger)
	srv := &http.Server{Addr: cfg.Server.Address, Handler: ad.Routes()}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
		statusBus.Close()
		discoBus.Close()
	}()

	logger.Info("server is running", "addr", cfg.Server.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("failed to serve", "error", err)
		os.Exit(1)
	}
}

func seedDefaultRoom(uc *usecase.Usecase, name string, logger *slog.Logger) {
	if name == "" {
		return
	}
	rooms, err := uc.Rooms()
	if err != nil {
		logger.Warn("failed to list rooms for seeding", "error", err)
		return
	}
	if len(rooms) > 0 {
		return
	}
	room, err := uc.CreateRoom(name)
	if err != nil {
		logger.Warn("failed to seed default room", "name", name, "error", err)
		return
	}
	logger.Info("seeded default room", "name", name, "id", room.ID)
}
