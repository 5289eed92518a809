// Command perpbot is the perp execution client entry point. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and runs the configured mode: submit an order, watch an existing one, or
// archive aged journal entries.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/perpbot/internal/app"
	"github.com/alanyoungcy/perpbot/internal/config"
	"github.com/alanyoungcy/perpbot/internal/domain"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override configured mode (submit, watch, archive)")

	// Submit mode flags.
	symbol := flag.String("symbol", "", "market symbol, e.g. ETH-USD")
	side := flag.String("side", "", "order side: long or short")
	kind := flag.String("kind", "limit", "order kind: market or limit")
	qty := flag.Float64("qty", 0, "order quantity")
	unit := flag.String("unit", "base", "quantity unit: base or quote")
	slippage := flag.Float64("slippage", 0, "market order slippage percent (0 uses the configured default)")

	// Watch mode flags.
	orderID := flag.String("order-id", "", "venue order id to watch")

	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	opts, err := buildRunOptions(cfg.Mode, *symbol, *side, *kind, *unit, *qty, *slippage, *orderID)
	if err != nil {
		logger.Error("invalid flags", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("perpbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx, opts); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("shut down gracefully")
		} else {
			logger.Error("exited with error", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("perpbot stopped")
}

// buildRunOptions translates command-line flags into the per-invocation
// inputs for the selected mode.
func buildRunOptions(mode, symbol, side, kind, unit string, qty, slippage float64, orderID string) (app.RunOptions, error) {
	var opts app.RunOptions

	switch strings.ToLower(mode) {
	case "submit":
		if symbol == "" {
			return opts, fmt.Errorf("-symbol is required in submit mode")
		}
		if qty <= 0 {
			return opts, fmt.Errorf("-qty must be positive, got %g", qty)
		}

		var s domain.Side
		switch strings.ToLower(side) {
		case "long":
			s = domain.SideLong
		case "short":
			s = domain.SideShort
		default:
			return opts, fmt.Errorf("-side must be long or short, got %q", side)
		}

		var k domain.OrderKind
		switch strings.ToLower(kind) {
		case "market":
			k = domain.OrderKindMarket
		case "limit":
			k = domain.OrderKindLimit
		default:
			return opts, fmt.Errorf("-kind must be market or limit, got %q", kind)
		}

		var u domain.SizeUnit
		switch strings.ToLower(unit) {
		case "base":
			u = domain.SizeUnitBase
		case "quote":
			u = domain.SizeUnitQuote
		default:
			return opts, fmt.Errorf("-unit must be base or quote, got %q", unit)
		}

		opts.Order = &domain.OrderRequest{
			Symbol:      symbol,
			Side:        s,
			Kind:        k,
			Qty:         qty,
			Unit:        u,
			SlippagePct: slippage,
		}

	case "watch":
		if orderID == "" {
			return opts, fmt.Errorf("-order-id is required in watch mode")
		}
		opts.WatchID = orderID
	}

	return opts, nil
}
