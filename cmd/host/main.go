// Command host shares this machine's screen with one remote client
// over the local network, gated by PIN pairing and secured with TLS.
package main

import (
	"crypto/tls"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/lanmirror/lanmirror/internal/capture"
	"github.com/lanmirror/lanmirror/internal/channel"
	"github.com/lanmirror/lanmirror/internal/clock"
	"github.com/lanmirror/lanmirror/internal/config"
	"github.com/lanmirror/lanmirror/internal/deltacodec"
	"github.com/lanmirror/lanmirror/internal/logx"
	"github.com/lanmirror/lanmirror/internal/pairing"
	"github.com/lanmirror/lanmirror/internal/quality"
	"github.com/lanmirror/lanmirror/internal/security"
	"github.com/lanmirror/lanmirror/internal/session"
	"github.com/lanmirror/lanmirror/internal/version"
)

func main() {
	configPath := flag.String("config", "lanmirror.yaml", "Configuration file path")
	port := flag.Int("port", 0, "Listen port (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		logx.EnableDebug()
	}
	logx.Infof("Host v%s", version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		logx.Errorf("%v", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.ListenPort = *port
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		logx.Errorf("create data dir: %v", err)
		os.Exit(1)
	}

	tlsCfg, err := hostTLS(cfg)
	if err != nil {
		logx.Errorf("TLS setup: %v", err)
		os.Exit(1)
	}

	var store session.Store
	if cfg.Session.HistoryDB != "" {
		store, err = session.NewSQLiteStore(cfg.Session.HistoryDB)
		if err != nil {
			logx.Errorf("open session history: %v", err)
			os.Exit(1)
		}
		defer store.Close() //nolint:errcheck
	}

	h := newHost(cfg, tlsCfg, store)
	if err := h.start(); err != nil {
		logx.Errorf("%v", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logx.Infof("Shutting down")
	h.shutdown()
}

// hostTLS builds the listening-side TLS configuration: a PKCS#12
// bundle when configured, an on-demand self-signed certificate
// otherwise, nil when TLS is disabled.
func hostTLS(cfg *config.Config) (*tls.Config, error) {
	if !cfg.TLS.Enabled {
		logx.Warnf("TLS disabled; the channel is unencrypted")
		return nil, nil
	}
	if cfg.TLS.PKCS12File != "" {
		return security.ServerTLSFromPKCS12(cfg.TLS.PKCS12File, cfg.TLS.PKCS12Password)
	}
	tlsCfg, paths, err := security.LoadOrGenerateTLS(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logx.Debugf("Using certificate %s", paths.CertPath)
	return tlsCfg, nil
}

// newHost assembles the streaming engine around the loaded config.
func newHost(cfg *config.Config, tlsCfg *tls.Config, store session.Store) *host {
	gate := pairing.NewGate(
		pairing.WithTTL(cfg.Pairing.PinTTL.Std()),
		pairing.WithMaxAttempts(cfg.Pairing.MaxAttempts),
	)

	opts := []session.Option{
		session.WithMaxReconnectAttempts(cfg.Session.MaxReconnectAttempts),
		session.WithEvents(session.Events{
			SessionCreated: func(s session.Session) {
				logx.Infof("Session %s created for %s", s.ID, s.ClientName)
			},
			SessionConnected: func(s session.Session) {
				logx.Infof("Session %s connected", s.ID)
			},
			SessionDisconnected: func(s session.Session) {
				logx.Warnf("Session %s disconnected: %s", s.ID, s.DisconnectReason)
			},
			SessionEnded: func(s session.Session) {
				logx.Infof("Session %s ended after %s connected", s.ID, s.ConnectedDuration)
			},
			ReconnectFailed: func(s session.Session) {
				logx.Errorf("Session %s: reconnect attempts exhausted", s.ID)
			},
		}),
	}
	if store != nil {
		opts = append(opts, session.WithStore(store))
	}

	encoder := deltacodec.NewEncoder()
	encoder.SetDeltaThreshold(cfg.Codec.DeltaThresholdPercent)

	ch := channel.New(channel.Config{
		WriteTimeout: cfg.Channel.WriteTimeout.Std(),
		DialTimeout:  cfg.Channel.DialTimeout.Std(),
		TLS:          tlsCfg,
	})

	return &host{
		id:         uuid.NewString(),
		name:       cfg.HostName,
		cfg:        cfg,
		gate:       gate,
		sessions:   session.NewManager(opts...),
		encoder:    encoder,
		controller: quality.NewController(clock.Real()),
		source:     capture.NewTestPattern(1280, 800),
		ch:         ch,
		files:      newFileSink(filepath.Join(cfg.DataDir, "downloads"), ch),
	}
}
