package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/xiaot623/shopchat/internal/config"
	"github.com/xiaot623/shopchat/internal/render"
	"github.com/xiaot623/shopchat/internal/session"
	"github.com/xiaot623/shopchat/internal/transport/ws"
)

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with the storefront assistant",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "backend WebSocket address; overrides SHOPCHAT_SERVER_URL",
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "session id sent to the backend",
			},
		},
		Action: runChat,
	}
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Load()
	logger, err := newLogger(cmd, cfg, "warn")
	if err != nil {
		return err
	}
	defer logger.Sync()

	server := cfg.ServerURL
	if cmd.IsSet("server") {
		server = cmd.String("server")
	}
	address, err := chatAddress(server, cmd.String("session"), cfg.CartUserID)
	if err != nil {
		return err
	}

	out := render.New(os.Stdout)
	ctrl, err := session.New(session.Options{
		Address:         address,
		Greeting:        cfg.Greeting,
		ErrorNotice:     cfg.ErrorNotice,
		UserID:          cfg.CartUserID,
		DefaultCurrency: cfg.DefaultCurrency,
		Dialer: ws.NewDialer(ws.Options{
			PingInterval:   cfg.PingInterval,
			WriteTimeout:   cfg.WriteTimeout,
			ReadTimeout:    cfg.ReadTimeout,
			MaxMessageSize: cfg.MaxMessageSize,
			SendBuffer:     cfg.SendBuffer,
			Logger:         logger,
		}),
		Observer: out.Update,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	fmt.Printf("Connecting to %s...\n", address)
	if err := ctrl.Open(ctx); err != nil {
		logger.Warn("Failed to open chat session", zap.Error(err))
	}
	fmt.Println("Type a message and press Enter. /help lists commands.")

	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, ctrl, out, line); quit {
				fmt.Println("¡Hasta luego!")
				return nil
			}
		}
	}
}

// handleLine executes one line of input and reports whether to exit.
func handleLine(ctx context.Context, ctrl *session.Controller, out *render.Renderer, line string) bool {
	c, err := parseCommand(line)
	if err != nil {
		fmt.Println(err)
		return false
	}

	switch c.kind {
	case cmdSay:
		if ctrl.State() != session.StateConnected && c.text != "" {
			fmt.Println("Not connected. Use /reconnect.")
			return false
		}
		if err := ctrl.SendUserMessage(c.text); err != nil {
			fmt.Println(err)
		}
	case cmdCart:
		out.Cart(ctrl.Cart())
	case cmdRemove:
		ctrl.RemoveItem(c.productID)
		out.Cart(ctrl.Cart())
	case cmdQty:
		if err := ctrl.UpdateQuantity(c.productID, c.quantity); err != nil {
			fmt.Println(err)
			return false
		}
		out.Cart(ctrl.Cart())
	case cmdReconnect:
		if err := ctrl.Open(ctx); err != nil {
			fmt.Println(err)
		}
	case cmdHelp:
		fmt.Println(helpText)
	case cmdQuit:
		return true
	}
	return false
}

// readLines delivers stdin lines until EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
