package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ligun0805/bundle-wallets/internal/config"
	"github.com/ligun0805/bundle-wallets/internal/logger"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, st config.Settings, args []string) error
}

var commands = []command{
	{"generate", "append new wallets to the session", runGenerate},
	{"grind", "search for a vanity Solana address", runGrind},
	{"refresh", "refresh native and token balances", runRefresh},
	{"fund", "send native currency to session wallets", runFund},
	{"sweep", "withdraw EVM wallet balances to one address", runSweep},
	{"export", "write wallets as CSV", runExport},
	{"quote", "estimate a pump.fun initial buy", runQuote},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bundlecli <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.usage)
	}
}

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	st := config.Load()
	if err := logger.Init(st.LogLevel, st.LogJSON); err != nil {
		die(err.Error())
	}
	defer func() { _ = logger.Sync() }()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		usage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, c := range commands {
		if c.name != name {
			continue
		}
		err := c.run(ctx, st, os.Args[2:])
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if err != nil {
			logger.L().Error(name+" failed", zap.Error(err))
			_ = logger.Sync()
			die(err.Error())
		}
		return
	}
	usage()
	die("unknown command: " + name)
}
