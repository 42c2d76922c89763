// Package httpserver runs the HTTP listener of the service.
package httpserver

import (
	"context"
	stdErr "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const ShutdownTimeout = 15 * time.Second

type Provider interface {
	Start() error
	io.Closer
}

type Runner interface {
	Run()
}

type RunableProvider interface {
	Provider
	Runner
}

var _ RunableProvider = (*Server)(nil)

type Config struct {
	Host        string        `envconfig:"WEBSERVER_HOST"`
	Port        int           `envconfig:"WEBSERVER_PORT" default:"8000"`
	TLSCertPath string        `envconfig:"WEBSERVER_TLS_CERT_PATH"`
	TLSKeyPath  string        `envconfig:"WEBSERVER_TLS_KEY_PATH"`
	ReadTimeout time.Duration `envconfig:"WEBSERVER_READ_TIMEOUT" default:"30s"`
}

type Server struct {
	logger *slog.Logger
	server *http.Server
	config Config
}

// NewDefault creates a Server whose internal errors go to the default logger.
func NewDefault(c Config, h http.Handler) *Server {
	s := New(c, h)

	s.server.ErrorLog = slog.NewLogLogger(s.logger.Handler(), slog.LevelError)

	return s
}

func New(c Config, h http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:              net.JoinHostPort(c.Host, fmt.Sprint(c.Port)),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second, // Slowloris
			ReadTimeout:       c.ReadTimeout,
		},
		logger: slog.Default().WithGroup("webserver"),
		config: c,
	}
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start serves until Close. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	var err error
	s.logger.Info("server starting", slog.String("addr", s.server.Addr))

	if s.config.TLSCertPath == "" {
		err = s.server.ListenAndServe()
	} else {
		err = s.server.ListenAndServeTLS(s.config.TLSCertPath, s.config.TLSKeyPath)
	}

	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return errors.Wrapf(err, "serve failed")
}

// Close waits up to ShutdownTimeout for requests in progress, then drops
// remaining connections.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		err = stdErr.Join(err, errors.Wrapf(s.server.Close(), "failed to close server"))
	}

	s.logger.Info("server closed")

	return errors.Wrapf(err, "server shutdown failed")
}

// Run starts the server in the background.
func (s *Server) Run() {
	go func() {
		err := s.Start()
		if err != nil {
			s.logger.With("error", err).Error("webserver crashed")
		}
	}()
}
