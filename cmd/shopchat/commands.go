package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type commandKind int

const (
	cmdSay commandKind = iota
	cmdCart
	cmdRemove
	cmdQty
	cmdReconnect
	cmdHelp
	cmdQuit
)

// command is one parsed line of chat input.
type command struct {
	kind      commandKind
	text      string
	productID string
	quantity  int
}

const helpText = `Commands:
  /cart               show the cart
  /remove <id>        remove a product from the cart
  /qty <id> <n>       set a product quantity (0 removes it)
  /reconnect          reopen the connection
  /help               show this help
  /quit               exit
Anything else is sent to the assistant.`

// parseCommand parses a line of input. Lines not starting with "/" are
// messages for the assistant.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSay, text: line}, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/cart", "/carrito":
		return command{kind: cmdCart}, nil
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/reconnect":
		return command{kind: cmdReconnect}, nil
	case "/remove":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: /remove <id>")
		}
		return command{kind: cmdRemove, productID: fields[1]}, nil
	case "/qty":
		if len(fields) != 3 {
			return command{}, fmt.Errorf("usage: /qty <id> <n>")
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return command{}, fmt.Errorf("invalid quantity %q", fields[2])
		}
		return command{kind: cmdQty, productID: fields[1], quantity: n}, nil
	default:
		return command{}, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
}

// chatAddress adds the session and user query parameters the storefront
// backend understands. Parameters already present in base are kept.
func chatAddress(base, sessionID, userID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server url %q: scheme must be ws or wss", base)
	}

	q := u.Query()
	if sessionID != "" && q.Get("session_id") == "" {
		q.Set("session_id", sessionID)
	}
	if userID != "" && q.Get("user_id") == "" {
		q.Set("user_id", userID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
