// momento is the terminal client for ephemeral chat rooms.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/mcdev12/momento/go/internal/client/channel"
	"github.com/mcdev12/momento/go/internal/client/roomclient"
	"github.com/mcdev12/momento/go/internal/client/session"
	"github.com/mcdev12/momento/go/internal/client/tui"
	"github.com/mcdev12/momento/go/internal/client/username"
	"github.com/mcdev12/momento/go/internal/models"
)

const (
	requestTimeout = 10 * time.Second
	// farewellTimeout bounds how long exit waits for a LEAVE to flush.
	farewellTimeout = 2 * time.Second
)

type options struct {
	server  string
	minutes int
	logFile string
	seed    int64
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("momento", pflag.ContinueOnError)
	flagSet.StringVar(&opts.server, "server", "http://localhost:8080", "momento server base URL")
	flagSet.IntVar(&opts.minutes, "minutes", models.DefaultExpiryMinutes, "lifetime of rooms you create, 1 to 60")
	flagSet.StringVar(&opts.logFile, "log-file", "", "write JSON log lines to this file")
	flagSet.Int64Var(&opts.seed, "seed", 0, "username random seed (0 uses the clock)")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if flagSet.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	opts.minutes = models.ClampExpiryMinutes(opts.minutes)
	return opts, nil
}

// setupLogging points the global logger at a file, or nowhere. The
// terminal belongs to the UI.
func setupLogging(path string) (func(), error) {
	if path == "" {
		log.Logger = zerolog.New(io.Discard)
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { f.Close() }, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	wsURL, err := channel.WebSocketURL(opts.server)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	names := username.NewGenerator(opts.seed)
	mailbox := session.NewMailbox()
	manager := channel.NewManager(channel.DefaultConfig())

	controller := session.NewController(session.ControllerConfig{
		Reducer: session.Reducer{
			Names: names.Next,
			Now:   time.Now,
		},
		Rooms:          roomclient.New(opts.server, requestTimeout),
		Channel:        manager,
		WebSocketURL:   wsURL,
		RequestTimeout: requestTimeout,
		Observer:       mailbox.Post,
	})
	controller.Dispatch(session.MinutesChanged{Minutes: opts.minutes})

	controllerDone := make(chan struct{})
	go func() {
		defer close(controllerDone)
		controller.Run(ctx)
	}()

	log.Info().Str("server", opts.server).Str("ws_url", wsURL).Msg("momento client starting")

	program := tea.NewProgram(tui.NewModel(controller, mailbox), tea.WithAltScreen())
	_, err = program.Run()

	cancel()
	<-controllerDone
	mailbox.Close()
	waitForFarewell(manager, farewellTimeout)
	return err
}

// waitForFarewell lets the channel flush a LEAVE queued on shutdown.
func waitForFarewell(manager *channel.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := manager.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("channel did not close before exit")
	}
}
