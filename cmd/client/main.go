// Command client connects to a host, pairs with its PIN, and receives
// the screen stream.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/lanmirror/lanmirror/internal/channel"
	"github.com/lanmirror/lanmirror/internal/config"
	"github.com/lanmirror/lanmirror/internal/deltacodec"
	"github.com/lanmirror/lanmirror/internal/logx"
	"github.com/lanmirror/lanmirror/internal/protocol"
	"github.com/lanmirror/lanmirror/internal/security"
	"github.com/lanmirror/lanmirror/internal/session"
	"github.com/lanmirror/lanmirror/internal/version"
)

func main() {
	addr := flag.String("host", "", "Host address to connect to")
	port := flag.Int("port", 7820, "Host port")
	pin := flag.String("pin", "", "Pairing PIN shown on the host")
	name := flag.String("name", "", "Display name (defaults to hostname)")
	configPath := flag.String("config", "lanmirror.yaml", "Configuration file path")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		logx.EnableDebug()
	}
	logx.Infof("Client v%s", version.String())

	if *addr == "" || *pin == "" {
		logx.Errorf("both -host and -pin are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logx.Errorf("%v", err)
		os.Exit(1)
	}
	if *name == "" {
		*name, _ = os.Hostname()
	}

	var chCfg channel.Config
	chCfg.WriteTimeout = cfg.Channel.WriteTimeout.Std()
	chCfg.DialTimeout = cfg.Channel.DialTimeout.Std()
	if cfg.TLS.Enabled {
		chCfg.TLS = security.ClientTLSConfig(cfg.TLS.StrictVerify, cfg.TLS.ServerName)
	}

	// Outside a discovery flow the target is assembled from flags.
	target := protocol.DeviceInfo{
		Name:    *addr,
		Address: *addr,
		Port:    *port,
		Kind:    protocol.DeviceDesktop,
		Online:  true,
	}

	c := &client{
		id:       uuid.NewString(),
		name:     *name,
		target:   target,
		pin:      *pin,
		ch:       channel.New(chCfg),
		decoder:  deltacodec.NewDecoder(),
		sessions: session.NewManager(session.WithMaxReconnectAttempts(cfg.Session.MaxReconnectAttempts)),
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- c.run() }()

	select {
	case <-sig:
		logx.Infof("Shutting down")
		c.shutdown()
	case err := <-done:
		if err != nil {
			logx.Errorf("%v", err)
			os.Exit(1)
		}
	}
}
