// Command ks-demo is a minimal embedding example: it boots a keystone
// Environment against an on-disk project directory, runs its entry script,
// and drives Update in a fixed-step loop until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/keystone-engine/keystone/internal/vfs"
	"github.com/keystone-engine/keystone/keystone"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		configFile  = flag.String("config", "", "path to an EngineConfig JSON file (defaults built in if omitted)")
		assetRoot   = flag.String("assets", "assets", "asset root directory")
		scriptRoot  = flag.String("scripts", "scripts", "script root directory")
		entry       = flag.String("entry", "scripts://main.lua", "entry script virtual path")
		tracePath   = flag.String("trace", "", "write a Chrome Tracing profile to this path")
		hotReload   = flag.Bool("hot-reload", true, "watch scripts and assets for changes")
		tickHz      = flag.Int("tick-hz", 60, "fixed-step Update frequency")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "ks-demo runs a KeyStone runtime environment against a project directory.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("ks-demo (keystone runtime demo)")
		os.Exit(0)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	cfg := keystone.DefaultEngineConfig()
	if *configFile != "" {
		loaded, err := keystone.LoadEngineConfig(*configFile)
		if err != nil {
			log.Fatal().Err(err).Msg("ks-demo: load config")
		}
		cfg = loaded
	}
	cfg.AssetRoot = *assetRoot
	cfg.ScriptRoot = *scriptRoot
	cfg.EntryScript = *entry
	cfg.HotReload = *hotReload

	env, err := keystone.New(cfg, vfs.NewOS(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("ks-demo: build environment")
	}
	defer env.Close()

	if *tracePath != "" {
		if err := env.AttachProfiling(*tracePath); err != nil {
			log.Warn().Err(err).Msg("ks-demo: profiling disabled")
		} else {
			defer env.EndProfiling()
		}
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*tickHz))
	defer ticker.Stop()

	log.Info().Str("entry", *entry).Int("tick_hz", *tickHz).Msg("ks-demo: running")

	for {
		select {
		case <-sigc:
			log.Info().Msg("ks-demo: shutting down")
			return
		case <-ticker.C:
			env.Update()
			env.World.Progress(1.0 / float64(*tickHz))
		}
	}
}
