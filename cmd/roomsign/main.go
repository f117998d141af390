package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"roomsign/internal/capture"
	"roomsign/internal/config"
	"roomsign/internal/convert"
	"roomsign/internal/display"
	appLog "roomsign/internal/log"
	"roomsign/internal/signage"
	"roomsign/internal/web"
)

// flagConfig holds CLI flag values; non-empty values override the config file.
type flagConfig struct {
	configPath string
	listen     string
	room       string
	loadTime   string
	message    string
	clockOnly  bool
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	applyFlags(conf, flags)
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("roomsign starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"room", conf.Room,
		"schema", conf.Feed.Schema,
		"policy", conf.Policy.Kind,
		"clock_only", conf.ClockOnly,
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	sig, err := signage.New(conf, time.Now())
	if err != nil {
		appLog.Error("failed to initialise sign", err)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		appLog.Info("signal received, shutting down", "signal", s.String())
		cancel()
	}()

	sink := display.NewTextSink(os.Stdout, sig.Formatter(), uint(conf.Display.WrapWidth))

	if flags.once {
		os.Exit(runOnce(ctx, sig, sink))
	}

	go func() {
		// Errors are published into the sign and rendered as the error state.
		_ = sig.Load(ctx)
	}()

	c := cron.New(
		cron.WithLocation(sig.Location()),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := c.AddFunc(conf.Display.Refresh, func() {
		if _, err := sink.Render(sig.Tick(time.Now())); err != nil {
			appLog.Error("render failed", err)
		}
	}); err != nil {
		appLog.Error("invalid display.refresh", err, "spec", conf.Display.Refresh)
		os.Exit(1)
	}
	if conf.Capture.Enabled {
		if err := addCaptureJob(ctx, c, conf); err != nil {
			appLog.Error("invalid capture schedule", err, "spec", conf.Capture.Cron)
			os.Exit(1)
		}
	}
	c.Start()

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, sig).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	stopCtx := c.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	select {
	case <-stopCtx.Done():
	case <-shutdownCtx.Done():
		appLog.Warn("cron jobs still running at exit")
	}
	appLog.Info("roomsign exiting")
}

// runOnce loads the feed, prints one state and returns the exit code.
func runOnce(ctx context.Context, sig *signage.Signage, sink *display.TextSink) int {
	loadErr := sig.Load(ctx)
	if _, err := sink.Render(sig.Tick(time.Now())); err != nil {
		appLog.Error("render failed", err)
		return 1
	}
	if loadErr != nil {
		return 1
	}
	return 0
}

func addCaptureJob(ctx context.Context, c *cron.Cron, conf *config.Config) error {
	opts := capture.Options{
		URL:        kioskURL(conf.Listen, conf.Room),
		OutputPath: conf.Capture.OutputPath,
		Width:      conf.Capture.Width,
		Height:     conf.Capture.Height,
		Timeout:    time.Duration(conf.Capture.TimeoutSecs) * time.Second,
		Monochrome: conf.Capture.Monochrome,
		RawPath:    conf.Capture.RawPath,
		Ink: convert.Options{
			Threshold: conf.Capture.Threshold,
			Invert:    conf.Capture.Invert,
		},
	}
	_, err := c.AddFunc(conf.Capture.Cron, func() {
		if err := capture.KioskPNG(ctx, opts); err != nil {
			appLog.Error("kiosk capture failed", err)
		}
	})
	return err
}

// kioskURL is the local address Chromium loads for captures.
func kioskURL(listen, room string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		host, port = "127.0.0.1", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(host, port), Path: "/"}
	if room != "" {
		u.RawQuery = url.Values{"r": {room}}.Encode()
	}
	return u.String()
}

func applyFlags(conf *config.Config, f flagConfig) {
	if f.listen != "" {
		conf.Listen = f.listen
	}
	if f.room != "" {
		conf.Room = f.room
	}
	if f.loadTime != "" {
		conf.LoadTime = f.loadTime
	}
	if f.clockOnly {
		conf.ClockOnly = true
	}
	if f.message != "" {
		conf.Message = f.message
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/roomsign/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.room, "room", "", "Room name or slug (overrides config if set)")
	flag.StringVar(&cfg.loadTime, "lt", "", "Pretend startup happens at this RFC 3339 instant")
	flag.BoolVar(&cfg.clockOnly, "clock-only", false, "Show only a clock and the message")
	flag.StringVar(&cfg.message, "message", "", "Message for clock-only mode")
	flag.BoolVar(&cfg.once, "once", false, "Load the feed, print one state and exit")

	flag.Parse()

	return cfg
}

// cronLogger adapts appLog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
