// Command secretsd brings up the Request Processor: it loads
// configuration, opens the bookkeeping store, wires the plugin
// registry, permission oracle, lock-key cache, relock scheduler and
// signal bus, then runs the actor until terminated.
//
// Plugin discovery/loading and the client-facing remoting shim are
// collaborators with their own contracts; this entrypoint constructs
// the processor and leaves attaching real plugin instances and a
// transport to whatever embeds it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sealbox/secretsd/internal/bookkeeping"
	"github.com/sealbox/secretsd/internal/bus"
	"github.com/sealbox/secretsd/internal/config"
	"github.com/sealbox/secretsd/internal/logging"
	"github.com/sealbox/secretsd/internal/permission"
	"github.com/sealbox/secretsd/internal/processor"
	"github.com/sealbox/secretsd/internal/queue"
	"github.com/sealbox/secretsd/internal/registry"
)

func main() {
	cfg := config.FromEnv()

	logging.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logging.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bookkeeping.Open(ctx, cfg.BookkeepingPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.BookkeepingPath).Msg("open bookkeeping database")
	}
	defer store.Close()

	reg := registry.New()
	if cfg.PluginManifestPath != "" {
		manifest, err := config.LoadPluginManifest(cfg.PluginManifestPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PluginManifestPath).Msg("load plugin manifest")
		}
		// Instantiating the plugin objects a manifest entry names
		// (opening a shared object, spawning a plugin process, dialing
		// an encrypted-storage backend) is a host-application concern.
		// Logging the manifest's intent is as far as this entrypoint
		// goes; the embedding application calls reg.RegisterStorage /
		// RegisterEncryption / RegisterEncryptedStorage / RegisterAuth
		// (or registry.LoadPlugins with already-instantiated candidates)
		// once it has real plugin objects in hand.
		for _, entry := range manifest.Plugins {
			log.Info().Str("plugin", entry.Name).Str("class", entry.ExpectedClass).
				Msg("plugin manifest entry declared; instantiation is a host-application concern")
		}
	}

	signalBus, err := bus.New(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Str("nats_url", cfg.NATSURL).Msg("construct signal bus")
	}
	defer signalBus.Close()

	resolver := permission.StaticResolver{}
	oracle := permission.New(resolver, "platform")

	results := queue.New(cfg.ResultQueueCapacity)

	actor := processor.NewActor(processor.Config{
		Registry:      reg,
		Bookkeeping:   store,
		Permission:    oracle,
		Results:       results,
		Bus:           signalBus,
		DeviceLockKey: cfg.DeviceLockKey,
		AutotestMode:  cfg.AutotestMode,
	})

	log.Info().Str("plugin_dir", cfg.PluginDir).Bool("autotest_mode", cfg.AutotestMode).
		Msg("secretsd request processor starting")

	actor.Run(ctx)

	log.Info().Msg("secretsd request processor stopped")
}
