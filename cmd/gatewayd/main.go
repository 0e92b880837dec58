// Command gatewayd runs the LoRa gateway agent core: it beacons for
// Proof-of-Coverage, forwards uplinks/downlinks between the local packet
// forwarder and the cloud router, and keeps region parameters fresh.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/loragw/gateway-agent/internal/config"
	"github.com/loragw/gateway-agent/internal/forwarder"
	"github.com/loragw/gateway-agent/internal/log"
	"github.com/loragw/gateway-agent/internal/server"
	"github.com/loragw/gateway-agent/key"
)

func main() {
	app := &cli.App{
		Name:  "gatewayd",
		Usage: "LoRa gateway agent: beaconing, router conduit, region sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to the agent's TOML configuration file",
				Required: true,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "gatewayd:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	level := log.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	log.Configure(level, cfg.LogJSON)
	l := log.DefaultLogger().Named("main")

	kp, err := key.LoadKeypair(cfg.KeypairURI)
	if err != nil {
		return err
	}

	fwd, err := forwarder.Listen(cfg.Listen)
	if err != nil {
		return err
	}
	defer fwd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		l.Infow("shutting down", "signal", sig.String())
		close(shutdown)
	}()

	err = server.Run(ctx, shutdown, server.Settings{
		Config:    cfg,
		Keypair:   kp,
		Forwarder: fwd,
	})
	if err != nil {
		l.Errorw("agent exited with error", "error", err)
		return err
	}
	l.Infow("agent stopped cleanly")
	return nil
}
