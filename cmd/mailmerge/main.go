// Command mailmerge serves the mail-merge HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pure-golang/mailmerge/api"
	"github.com/pure-golang/mailmerge/dispatch"
	"github.com/pure-golang/mailmerge/env"
	"github.com/pure-golang/mailmerge/httpserver"
	"github.com/pure-golang/mailmerge/jobs"
	"github.com/pure-golang/mailmerge/logger"
	"github.com/pure-golang/mailmerge/mail/smtp"
	"github.com/pure-golang/mailmerge/mail/transport"
	"github.com/pure-golang/mailmerge/plaintext"
	"github.com/pure-golang/mailmerge/telemetry"
)

const drainTimeout = 2 * time.Minute

type config struct {
	Logger    logger.Config
	Telemetry telemetry.Config
	Transport transport.Config
	SMTP      smtp.Config
	Dispatch  dispatch.Config
	Jobs      jobs.Config
	API       api.Config
	Server    httpserver.Config
}

func main() {
	if err := run(); err != nil {
		slog.Default().Error("mailmerge failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var c config
	if err := env.InitConfig(&c.Logger, &c.Telemetry, &c.Transport, &c.SMTP, &c.Dispatch, &c.Jobs, &c.API, &c.Server); err != nil {
		return err
	}

	logger.InitDefault(c.Logger)
	l := slog.Default()

	tel, err := telemetry.Init(c.Telemetry)
	if err != nil {
		return err
	}
	defer closeWithLog(l, "telemetry", tel.Close)

	dialer, err := transport.NewDialer(c.Transport, c.SMTP, l)
	if err != nil {
		return err
	}
	engine := dispatch.New(dialer, plaintext.New(plaintext.WithLogger(l)), c.Dispatch)

	ctx := logger.NewContext(context.Background(), l)
	store, err := jobs.NewStore(ctx, c.Jobs)
	if err != nil {
		return err
	}
	defer closeWithLog(l, "job store", store.Close)

	manager := jobs.NewManager(engine, store, c.Jobs)

	server := httpserver.NewDefault(c.Server, api.NewHandler(engine, manager, c.API).Router())
	server.Run()
	l.Info("mailmerge started", "addr", server.Addr(), "mail_provider", c.Transport.Provider)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	l.Info("shutting down", "signal", (<-sig).String())

	closeWithLog(l, "http server", server.Close)

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	closeWithLog(l, "job manager", func() error { return manager.Close(drainCtx) })

	return nil
}

func closeWithLog(l *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		l.Error("failed to close "+name, "error", err)
	}
}
