// Package nats publishes appointment lifecycle and assistant session events
// to a JetStream stream and replays them for the appointment history view.
package nats

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/zeina-health/companion/pkg/logger"
	"github.com/zeina-health/companion/pkg/metrics"
)

const (
	// DefaultStreamName is the lifecycle event stream used when Config.Stream is empty.
	DefaultStreamName = "COMPANION"
	// DefaultSubjectPrefix roots every subject when Config.SubjectPrefix is empty.
	DefaultSubjectPrefix = "companion"
	// DefaultRetention is how long events stay in the stream.
	DefaultRetention = 365 * 24 * time.Hour
)

// Config describes the event bus: where it is, how to authenticate, and
// which stream and subject tree the companion owns on it.
type Config struct {
	URL        string
	ClientName string

	Stream        string
	SubjectPrefix string
	Retention     time.Duration

	// CAFile, CertFile and KeyFile enable mutual TLS. Set all three or none.
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// withDefaults fills the stream topology left empty.
func (c Config) withDefaults() Config {
	if c.ClientName == "" {
		c.ClientName = "companion-api"
	}
	if c.Stream == "" {
		c.Stream = DefaultStreamName
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	return c
}

// Validate rejects settings that would publish outside the companion's
// subject tree or silently drop half a TLS setup.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("nats: URL is required")
	}
	if strings.ContainsAny(c.Stream, " .*>") {
		return fmt.Errorf("nats: invalid stream name %q", c.Stream)
	}
	if c.SubjectPrefix != "" && (strings.ContainsAny(c.SubjectPrefix, " *>") ||
		strings.HasPrefix(c.SubjectPrefix, ".") || strings.HasSuffix(c.SubjectPrefix, ".")) {
		return fmt.Errorf("nats: invalid subject prefix %q", c.SubjectPrefix)
	}
	set := 0
	for _, f := range []string{c.CAFile, c.CertFile, c.KeyFile} {
		if f != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return errors.New("nats: CA, certificate and key files must be set together")
	}
	return nil
}

// Client is a connection to the event bus bound to one stream.
type Client struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	cfg      Config
	subjects Subjects
	logger   *logger.Logger
}

// Connect dials the event bus. Reconnection is unbounded; the connection
// state is reported on the event_bus_connected gauge.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	log = log.With(zap.String("stream", cfg.Stream))

	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			metrics.SetEventBusConnected(false)
			log.Warn("event bus disconnected, lifecycle events will be buffered", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			metrics.SetEventBusConnected(true)
			log.Info("event bus reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			metrics.SetEventBusConnected(false)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("event bus error", zap.Error(err))
		}),
	}

	if cfg.CAFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event bus: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	metrics.SetEventBusConnected(true)
	log.Info("event bus connected", zap.String("url", nc.ConnectedUrl()), zap.String("subjects", cfg.SubjectPrefix+".>"))

	return &Client{
		conn:     nc,
		js:       js,
		cfg:      cfg,
		subjects: Subjects{Prefix: cfg.SubjectPrefix},
		logger:   log,
	}, nil
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Subjects returns the subject layout of the client's stream.
func (c *Client) Subjects() Subjects {
	return c.subjects
}

// Close flushes buffered events and closes the connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("event bus drain failed, pending events may be lost", zap.Error(err))
		c.conn.Close()
	}
}

// IsConnected reports whether the bus is reachable right now. The readiness
// probe uses it.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("no certificates in CA file %s", caFile)
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
