// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"audiohost/cmd"
	"audiohost/internal/app"
	"audiohost/internal/config"
	applog "audiohost/internal/log"
	"audiohost/internal/output"
	"audiohost/internal/tui"
	"audiohost/pkg/build"
)

// main is the entry point for the audio host.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands if requested
//   - Wire sinks, chains, transports and start the configured modules
//
// 2. Concurrent Phase (Hot Path):
//   - Run the decode loop feeding effects, sample cache and outputs
//   - Run the module manager UI if requested
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or end of stream
//   - Stop every module and wait for visualization workers
//   - Release outputs and transports
func main() {
	if err := run(); err != nil {
		applog.Fatalf("%v", err)
	}
}

func run() error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Release builds carry version, commit hash and build time.
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build info incomplete: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if errors.Is(err, cmd.ErrNoCommand) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	opts.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closeLog, err := setupLogging(cfg, opts)
	if err != nil {
		return err
	}
	defer closeLog()

	// Handle one-off commands that don't require the decode loop.
	if opts.Command == cmd.CommandList {
		return listDevices(os.Stdout)
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			applog.Errorf("Error during shutdown: %v", err)
		}
	}()

	if opts.Command == cmd.CommandModules {
		a.PrintModules(os.Stdout)
		return nil
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Setup signal handling for graceful shutdown
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !opts.TUI {
			defer cancel()
		}
		return a.Play(ctx, opts.File)
	})
	if opts.TUI {
		g.Go(func() error {
			defer cancel()
			return tui.Run(ctx, a.Host, a.Status)
		})
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	return g.Wait()
}

func setupLogging(cfg *config.Config, opts *cmd.Options) (func(), error) {
	level, _ := applog.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)

	switch {
	case opts.LogFile != "":
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		applog.SetOutput(f)
		return func() { f.Close() }, nil
	case opts.TUI:
		// The module manager owns the terminal.
		applog.SetOutput(io.Discard)
	}
	return func() {}, nil
}

func listDevices(w io.Writer) error {
	if err := output.Initialize(); err != nil {
		return err
	}
	defer output.Terminate()

	devices, err := output.GetDevices()
	if err != nil {
		return err
	}
	output.PrintDevices(w, devices)
	return nil
}
