package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksfwd/internal/dialer"
	"github.com/die-net/socksfwd/internal/relay"
	"github.com/die-net/socksfwd/internal/socks5"
)

const (
	exitConfig = 1
	exitServer = 2
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var ce *configError
		if errors.As(err, &ce) {
			os.Exit(exitConfig)
		}
		os.Exit(exitServer)
	}
}

func run(args []string) error {
	opts, err := parseOptions(args, os.Getenv)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, opts.verbose)

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: opts.keepAlive}
		debugLn, err := lc.Listen(ctx, "tcp", opts.debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info().Str("addr", opts.debugListen).Msg("debug listening")
	}

	ln, err := relay.ListenTCP("tcp", opts.listen.String(), opts.keepAlive, opts.reusePort)
	if err != nil {
		return fmt.Errorf("relay listen: %w", err)
	}

	dialCfg := dialer.Config{
		DialTimeout:        opts.handshakeTimeout,
		NegotiationTimeout: opts.handshakeTimeout,
		KeepAlive:          opts.keepAlive,
	}

	srv := relay.NewServer(ctx, relay.Config{
		Target: opts.target,
		Dialer: dialer.NewSOCKS5ProxyDialer(dialCfg, opts.proxy),
		Logger: logger,
	})
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil {
			return fmt.Errorf("relay serve: %w", err)
		}
		return nil
	})

	logger.Info().
		Stringer("listen", ln.Addr()).
		Stringer("target", opts.target).
		Stringer("proxy", opts.proxy).
		Dur("handshake_timeout", opts.handshakeTimeout).
		Msg("relay listening")

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	logger.Info().Msg("shutting down")
	return err
}

type options struct {
	listen           socks5.Endpoint
	proxy            socks5.Endpoint
	target           socks5.Endpoint
	handshakeTimeout time.Duration
	keepAlive        net.KeepAliveConfig
	reusePort        bool
	debugListen      string
	verbose          bool
}

// configError marks errors that are detected before any socket is opened.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func configErrorf(format string, a ...any) error {
	return &configError{err: fmt.Errorf(format, a...)}
}

// parseOptions parses args. Flags that are not given fall back to the
// SOCKSFWD_* environment variables looked up through getenv.
func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := pflag.NewFlagSet("socksfwd", pflag.ContinueOnError)
	fs.SortFlags = false

	var (
		listenHost = fs.String("listen-host", envOr(getenv, "SOCKSFWD_LISTEN_HOST", "127.0.0.1"), "Host to accept client connections on")
		listenPort = fs.String("listen-port", envOr(getenv, "SOCKSFWD_LISTEN_PORT", "8080"), "Port to accept client connections on")
		proxyHost  = fs.String("proxy-host", envOr(getenv, "SOCKSFWD_PROXY_HOST", "127.0.0.1"), "SOCKS5 proxy host")
		proxyPort  = fs.String("proxy-port", envOr(getenv, "SOCKSFWD_PROXY_PORT", "1055"), "SOCKS5 proxy port")
		targetHost = fs.String("target-host", getenv("SOCKSFWD_TARGET_HOST"), "Destination host requested through the proxy (required)")
		targetPort = fs.String("target-port", getenv("SOCKSFWD_TARGET_PORT"), "Destination port requested through the proxy (required)")
		timeoutMS  = fs.String("handshake-timeout-ms", envOr(getenv, "SOCKSFWD_HANDSHAKE_TIMEOUT_MS", "8000"), "Timeout in milliseconds for the proxy connect and each SOCKS5 handshake read")

		tcpKeepAlive = fs.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		reusePort    = fs.Bool("reuse-port", false, "Bind the listener with SO_REUSEPORT")
		debugListen  = fs.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		verbose      = fs.Bool("verbose", false, "Enable per-connection debug logging")
	)

	if !relay.ReusePortSupported {
		_ = fs.MarkHidden("reuse-port")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return options{}, err
		}
		return options{}, &configError{err: err}
	}

	if *targetHost == "" {
		return options{}, configErrorf("missing required --target-host")
	}
	if *targetPort == "" {
		return options{}, configErrorf("missing required --target-port")
	}

	var opts options
	var err error

	if opts.listen, err = parseEndpoint("listen", *listenHost, *listenPort); err != nil {
		return options{}, err
	}
	if opts.proxy, err = parseEndpoint("proxy", *proxyHost, *proxyPort); err != nil {
		return options{}, err
	}
	if opts.target, err = parseEndpoint("target", *targetHost, *targetPort); err != nil {
		return options{}, err
	}

	ms, err := parsePositiveInt(*timeoutMS)
	if err != nil {
		return options{}, configErrorf("invalid --handshake-timeout-ms: %w", err)
	}
	opts.handshakeTimeout = time.Duration(ms) * time.Millisecond

	if opts.keepAlive, err = parseTCPKeepAlive(*tcpKeepAlive); err != nil {
		return options{}, configErrorf("invalid --tcp-keepalive: %w", err)
	}

	opts.reusePort = *reusePort
	opts.debugListen = *debugListen
	opts.verbose = *verbose

	return opts, nil
}

func parseEndpoint(name, host, port string) (socks5.Endpoint, error) {
	p, err := parsePort(port)
	if err != nil {
		return socks5.Endpoint{}, configErrorf("invalid --%s-port: %w", name, err)
	}
	ep := socks5.NewEndpoint(strings.TrimSpace(host), p)
	if err := ep.Validate(); err != nil {
		return socks5.Endpoint{}, configErrorf("invalid --%s-host: %w", name, err)
	}
	return ep, nil
}

func parsePort(s string) (uint16, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	if n > 65535 {
		return 0, errors.New("must be <= 65535")
	}
	return uint16(n), nil
}

func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
