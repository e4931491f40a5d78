package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/loqalabs/loqa-tutor/internal/bus"
	"github.com/loqalabs/loqa-tutor/internal/config"
	"github.com/loqalabs/loqa-tutor/internal/protocol"
	"github.com/loqalabs/loqa-tutor/internal/ui"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'send', 'watch', 'validate' or 'version'")
		os.Exit(2)
	}
	_ = godotenv.Load()

	var configPath string
	flags := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	flags.StringVar(&configPath, "config", os.Getenv("LOQA_TUTOR_CONFIG"), "Path to configuration file")

	var err error
	switch os.Args[1] {
	case "send":
		flags.Parse(os.Args[2:])
		err = runSend(configPath, flags.Args())
	case "watch":
		flags.Parse(os.Args[2:])
		err = runWatch(configPath)
	case "validate":
		flags.Parse(os.Args[2:])
		if _, err = config.Load(configPath); err == nil {
			fmt.Println("config valid")
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connect(ctx context.Context, path string) (*bus.Client, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	busCfg := cfg.Bus
	if busCfg.Embedded {
		busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
	}
	return bus.Connect(ctx, "tutorctl", busCfg, logger)
}

// runSend publishes one action, e.g. `tutorctl send set_rate 1.5`.
func runSend(path string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tutorctl send <kind> [value]")
	}
	action := protocol.Action{Kind: args[0]}
	if len(args) > 1 {
		action.Value = args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := connect(ctx, path)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.PublishJSON(protocol.SubjectUIAction, action); err != nil {
		return err
	}
	return client.Flush(ctx)
}

// runWatch prints status changes and alerts until interrupted.
func runWatch(path string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	client, err := connect(connectCtx, path)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	lines := make(chan string, 16)
	var last string
	if _, err := client.Subscribe(protocol.SubjectUIState, func(data []byte) {
		var st ui.State
		if err := json.Unmarshal(data, &st); err != nil || st.Status == last {
			return
		}
		last = st.Status
		lines <- fmt.Sprintf("[%s] %s", st.Severity, st.Status)
	}); err != nil {
		return err
	}
	if _, err := client.Subscribe(protocol.SubjectUIAlert, func(data []byte) {
		var a protocol.Alert
		if err := json.Unmarshal(data, &a); err == nil {
			lines <- "ALERT: " + a.Message
		}
	}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			fmt.Println(line)
		}
	}
}
