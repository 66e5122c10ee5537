package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"room-chat/internal/client"
	"room-chat/internal/config"
	"room-chat/internal/models"
	"room-chat/pkg/logger"

	"github.com/gookit/color"
)

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		slog.Error("Client exited with error", "error", err)
		os.Exit(1)
	}
}

func sessionOptions(cfg config.ClientConfig, log *slog.Logger) client.Options {
	return client.Options{
		ReconnectionAttempts: cfg.ReconnectionAttempts,
		ReconnectionDelay:    cfg.ReconnectionDelay,
		ReconnectionDelayMax: cfg.ReconnectionDelayMax,
		ConnectRetries:       cfg.ConnectRetries,
		FallbackEnabled:      cfg.FallbackEnabled,
		FallbackInterval:     cfg.FallbackInterval,
		FallbackMaxRetries:   cfg.FallbackMaxRetries,
		DialTimeout:          cfg.DialTimeout,
		Logger:               log,
	}
}

func run(in io.Reader, out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Logs go to stderr so they never interleave with the chat
	log := logger.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ui := newConsole(out, color.SupportColor())
	session := client.NewSession(client.NewWSTransport(cfg.Client.ServerURL), sessionOptions(cfg.Client, log))

	// The server forgets names on every new connection, so the chosen
	// name is sent again after each (re)connect
	var nameMu sync.Mutex
	name := cfg.Client.Username
	currentName := func() string {
		nameMu.Lock()
		defer nameMu.Unlock()
		return name
	}

	session.On(models.EventMessage, func(data json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("Dropping malformed message", "error", err)
			return
		}
		ui.message(msg)
	})
	session.On(models.EventUserList, func(data json.RawMessage) {
		var ps []models.Participant
		if err := json.Unmarshal(data, &ps); err != nil {
			log.Warn("Dropping malformed roster", "error", err)
			return
		}
		ui.roster(ps)
	})
	session.OnStateChange(func(change client.StateChange) {
		ui.status(session.Status())
		if change.To != client.StateConnected {
			return
		}
		if n := currentName(); n != "" {
			if err := session.Send(models.EventSetUsername, n); err != nil {
				log.Warn("Failed to announce name", "error", err)
			}
		}
	})

	ui.println(color.New(color.FgCyan, color.OpBold).Render("Chat: " + cfg.Client.ServerURL))
	if currentName() == "" {
		ui.println("Escribe /name <nombre> para unirte. /help muestra los comandos.")
	}

	session.Connect()
	defer session.Disconnect()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := parseCommand(scanner.Text())

		var sendErr error
		switch cmd.kind {
		case cmdNone:
			continue
		case cmdQuit:
			return nil
		case cmdHelp:
			ui.println(helpText)
		case cmdStatus:
			ui.status(session.Status())
		case cmdInvalid:
			ui.errorf("%s", cmd.text)
		case cmdName:
			nameMu.Lock()
			name = cmd.text
			nameMu.Unlock()
			sendErr = session.Send(models.EventSetUsername, cmd.text)
		case cmdList:
			sendErr = session.Send(models.EventGetUserList, nil)
		case cmdPrivate:
			sendErr = session.Send(models.EventPrivateMessage, models.PrivateMessageRequest{
				TargetID: cmd.target,
				Message:  models.MessageRequest{Text: cmd.text, SenderName: currentName()},
			})
		case cmdSay:
			sendErr = session.Send(models.EventMessage, models.MessageRequest{Text: cmd.text, SenderName: currentName()})
		}

		if errors.Is(sendErr, client.ErrNotConnected) {
			ui.errorf("Sin conexión: %s", session.Status().State)
		} else if sendErr != nil {
			ui.errorf("Error: %v", sendErr)
		}
	}
	return scanner.Err()
}
