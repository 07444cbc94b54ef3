// Command shopchat runs the storefront chat widget in a terminal and the demo
// storefront backend it talks to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/xiaot623/shopchat/internal/config"
	"github.com/xiaot623/shopchat/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "shopchat",
		Usage: "Storefront chat widget and demo backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error); overrides LOG_LEVEL",
			},
		},
		Commands: []*cli.Command{
			chatCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "shopchat:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. fallback is used when neither the
// flag nor LOG_LEVEL is set.
func newLogger(cmd *cli.Command, cfg *config.Config, fallback string) (*zap.Logger, error) {
	level := fallback
	if _, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = cfg.LogLevel
	}
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	return logging.New(level)
}
