package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vk/fmriflow/internal/app"
	"github.com/vk/fmriflow/internal/cli"
	"github.com/vk/fmriflow/internal/hcl_adapter"
)

// main is the entrypoint for the fmriflow application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	// The real main function handles errors and exit codes.
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// Registry validation panics on programmer errors; report them cleanly.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	fmriApp, err := app.NewApp(outW, appConfig, hcl_adapter.NewLoader())
	if err != nil {
		return &cli.ExitError{Code: 1, Message: err.Error()}
	}

	summary, err := fmriApp.Run(ctx)
	if errors.Is(err, app.ErrSubjectsFailed) {
		return &cli.ExitError{
			Code:    1,
			Message: fmt.Sprintf("%v (see %s)", err, summaryHint(appConfig, summary)),
		}
	}
	return err
}

func summaryHint(cfg *app.Config, s *app.Summary) string {
	if s == nil {
		return cfg.OutputDir
	}
	return filepath.Join(cfg.OutputDir, "logs", "fmriflow-"+s.RunID+".yaml")
}
