package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/net/netutil"

	"github.com/lanikai/framelink"
	"github.com/lanikai/framelink/internal/logging"
	"github.com/lanikai/framelink/internal/preview"
)

// Populated via -ldflags="-X ...".
var GitRevisionId string

var log = logging.DefaultLogger.WithTag("framelinkd")

// Concurrent HTTP connections (metrics scrapes plus preview viewers).
const maxHTTPConns = 8

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}

	cfg := framelink.DefaultConfig()
	if flagConfig != "" {
		var err error
		if cfg, err = framelink.LoadConfig(flagConfig); err != nil {
			log.Fatalf("%v", err)
		}
	}
	applyFlags(&cfg)

	// Bind before the device and broker are touched so a bad address
	// exits without leaving them half set up.
	var ln net.Listener
	if cfg.HTTPAddr != "" {
		var err error
		if ln, err = listen(cfg.HTTPAddr); err != nil {
			log.Fatalf("%v", err)
		}
	}

	agent, err := framelink.NewAgent(cfg, handleCommand)
	if err != nil {
		if ln != nil {
			ln.Close()
		}
		log.Fatalf("%v", err)
	}
	defer agent.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if ln != nil {
		srv := serveHTTP(ln, agent)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := agent.Run(ctx); err != nil {
		log.Error("%v", err)
	}
	log.Info("shutting down")
}

// Command line flags override the configuration file only when given.
func applyFlags(cfg *framelink.Config) {
	set := func(name string, apply func()) {
		if flag.CommandLine.Changed(name) {
			apply()
		}
	}
	set("input", func() { cfg.Device = flagInput })
	set("format", func() { cfg.PixelFormat = flagFormat })
	set("width", func() { cfg.Width = flagWidth })
	set("height", func() { cfg.Height = flagHeight })
	set("output-width", func() { cfg.OutputWidth = flagOutputWidth })
	set("output-height", func() { cfg.OutputHeight = flagOutputHeight })
	set("fps", func() { cfg.FPS = flagFPS })
	set("hflip", func() { cfg.HFlip = flagHorizontalFlip })
	set("vflip", func() { cfg.VFlip = flagVerticalFlip })
	set("mqtt-address", func() { cfg.Broker = flagBroker })
	set("client-id", func() { cfg.ClientID = flagClientID })
	set("sub-topic", func() { cfg.SubscribeTopic = flagSubTopic })
	set("pub-topic", func() { cfg.PublishTopic = flagPubTopic })
	set("qos", func() { cfg.QoS = flagQoS })
	set("frame-header", func() { cfg.FrameHeader = flagHeader })
	set("count", func() { cfg.MaxCycles = flagCount })
	set("http-address", func() { cfg.HTTPAddr = flagHTTPAddress })
}

// listen binds addr, admitting at most maxHTTPConns connections at once.
func listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return netutil.LimitListener(ln, maxHTTPConns), nil
}

func serveHTTP(ln net.Listener, agent *framelink.Agent) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", agent.Metrics().Handler())
	mux.Handle("/preview", preview.NewHandler(agent.Preview()))

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("http: %v", err)
		}
	}()
	log.Info("serving metrics and preview on %s", ln.Addr())
	return srv
}
