package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/xiaot623/shopchat/internal/catalog"
	"github.com/xiaot623/shopchat/internal/config"
	"github.com/xiaot623/shopchat/internal/policy"
	"github.com/xiaot623/shopchat/internal/store"
	"github.com/xiaot623/shopchat/internal/storefront"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the demo storefront backend",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "ws-port",
				Usage: "WebSocket port; overrides WS_PORT",
			},
			&cli.IntFlag{
				Name:  "http-port",
				Usage: "internal HTTP port; overrides HTTP_PORT",
			},
			&cli.StringFlag{
				Name:  "catalog",
				Usage: "YAML product catalog; overrides CATALOG_PATH",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database for carts and messages; overrides CART_DB",
			},
			&cli.StringFlag{
				Name:  "policy",
				Usage: "Rego cart policy; overrides POLICY_PATH",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Load()
	if cmd.IsSet("ws-port") {
		cfg.WSPort = cmd.Int("ws-port")
	}
	if cmd.IsSet("http-port") {
		cfg.HTTPPort = cmd.Int("http-port")
	}
	if cmd.IsSet("catalog") {
		cfg.CatalogPath = cmd.String("catalog")
	}
	if cmd.IsSet("db") {
		cfg.CartDBPath = cmd.String("db")
	}
	if cmd.IsSet("policy") {
		cfg.PolicyPath = cmd.String("policy")
	}

	logger, err := newLogger(cmd, cfg, "info")
	if err != nil {
		return err
	}
	defer logger.Sync()

	products, err := catalog.Load(cfg.CatalogPath, cfg.DefaultCurrency)
	if err != nil {
		return err
	}
	cartPolicy, err := policy.Load(ctx, cfg.PolicyPath)
	if err != nil {
		return err
	}
	repo, err := store.NewSQLiteStore(cfg.CartDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	logger.Info("Starting storefront backend",
		zap.Int("ws_port", cfg.WSPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("products", products.Len()),
		zap.String("db", cfg.CartDBPath))

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	connectionHub := storefront.NewHub(cfg.SendBuffer, logger)
	go connectionHub.Run(hubCtx)

	wsServer := storefront.NewServer(storefront.Options{
		PingInterval:   cfg.PingInterval,
		WriteTimeout:   cfg.WriteTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
		DefaultUserID:  cfg.CartUserID,
	}, connectionHub, storefront.NewResponder(products, cartPolicy), repo, logger)
	wsEcho := wsServer.Echo()
	apiServer := storefront.NewAPIServer(connectionHub, wsServer, logger)

	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.WSPort)
		if err := wsEcho.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("websocket server: %w", err)
		}
	}()
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := apiServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("internal http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down storefront backend")
	case runErr = <-errCh:
		logger.Error("Server failed", zap.Error(runErr))
	}

	// Stopping the hub sends a going-away close frame to every widget.
	stopHub()
	<-connectionHub.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wsEcho.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to shutdown WebSocket server gracefully", zap.Error(err))
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to shutdown HTTP server gracefully", zap.Error(err))
	}

	logger.Info("Storefront backend stopped")
	return runErr
}
