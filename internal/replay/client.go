// Package replay fetches previously collected task results from a Replay
// server over a plain TCP line protocol.
//
// Request, three lines written in this order and flushed together:
//
//	<taskId>
//	<elementId>
//	<attrName1>,<attrName2>,...
//
// Response, read until the server closes the connection:
//
//	<attrNameA><BDNA,TASK,RESULT><valueA><BDNA,TASK,RESULT><attrNameB>...
package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSentinel separates names and values in a response.
	DefaultSentinel = "<BDNA,TASK,RESULT>"

	// DefaultRetryLimit is the number of connection attempts made when the
	// transport fails.
	DefaultRetryLimit = 3

	// DefaultLineTerminator ends each request line.
	DefaultLineTerminator = "\r\n"
)

// ErrInvalidRequest is returned for requests that cannot be sent without
// breaking the line framing. It is never retried.
var ErrInvalidRequest = errors.New("invalid replay request")

// Config describes where the Replay server lives and how hard to try.
type Config struct {
	Host           string
	Port           int
	RetryLimit     int
	Sentinel       string
	LineTerminator string
	// IOTimeout bounds each socket operation. Zero leaves the operating
	// system defaults in place.
	IOTimeout time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.RetryLimit <= 0 {
		c.RetryLimit = DefaultRetryLimit
	}
	if c.Sentinel == "" {
		c.Sentinel = DefaultSentinel
	}
	if c.LineTerminator == "" {
		c.LineTerminator = DefaultLineTerminator
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dialer opens the TCP connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TransportError wraps a connect, send or receive failure. Only these are
// retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("replay %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Request is what the server is asked for.
type Request struct {
	TaskID         int64
	ElementID      int64
	AttributeNames []string
}

// Encode renders the three request lines.
func (r Request) Encode(terminator string) (string, error) {
	names := strings.Join(r.AttributeNames, ",")
	if strings.ContainsAny(names, "\r\n") {
		return "", fmt.Errorf("%w: attribute names contain a line break", ErrInvalidRequest)
	}

	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(r.TaskID, 10))
	sb.WriteString(terminator)
	sb.WriteString(strconv.FormatInt(r.ElementID, 10))
	sb.WriteString(terminator)
	sb.WriteString(names)
	sb.WriteString(terminator)
	return sb.String(), nil
}

// Client talks to one Replay server. It holds no per-call state and may be
// shared.
type Client struct {
	cfg    Config
	dialer Dialer
	logger *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithDialer replaces the default net.Dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Replay client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.ApplyDefaults()
	c := &Client{
		cfg:    cfg,
		dialer: &net.Dialer{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "replay_client")
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Fetch performs a single connect, send, receive exchange and returns the
// raw response.
func (c *Client) Fetch(ctx context.Context, req Request) (string, error) {
	payload, err := req.Encode(c.cfg.LineTerminator)
	if err != nil {
		return "", err
	}

	logger := c.logger.With("task_id", req.TaskID)
	addr := c.cfg.Address()

	logger.Debug("Connecting to replay server", "addr", addr)
	start := time.Now()
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	logger.Debug("Connect complete", "addr", addr, "elapsed", time.Since(start))
	if err != nil {
		return "", &TransportError{Op: "connect", Err: err}
	}
	defer conn.Close()

	if err := c.setDeadline(ctx, conn); err != nil {
		return "", &TransportError{Op: "connect", Err: err}
	}
	// Unblock send and receive when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	logger.Debug("Sending request", "bytes", len(payload))
	start = time.Now()
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(payload); err != nil {
		return "", ioError(ctx, "send", err)
	}
	if err := w.Flush(); err != nil {
		return "", ioError(ctx, "send", err)
	}
	logger.Debug("Send complete", "elapsed", time.Since(start))

	start = time.Now()
	data, err := io.ReadAll(conn)
	logger.Debug("Read complete", "bytes", len(data), "elapsed", time.Since(start))
	if err != nil {
		return "", ioError(ctx, "receive", err)
	}

	return string(data), nil
}

// ioError reports a cancelled ctx as itself so it is not retried.
func ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("replay %s: %w", op, ctxErr)
	}
	return &TransportError{Op: op, Err: err}
}

func (c *Client) setDeadline(ctx context.Context, conn net.Conn) error {
	var deadline time.Time
	if c.cfg.IOTimeout > 0 {
		deadline = time.Now().Add(c.cfg.IOTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if deadline.IsZero() {
		return nil
	}
	return conn.SetDeadline(deadline)
}
