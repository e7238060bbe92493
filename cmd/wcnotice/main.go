package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wcnotice/internal/app"
)

func main() {
	var opts app.Options
	flag.StringVar(&opts.SettingsPath, "settings", "", "path to settings yaml/json (optional)")
	flag.StringVar(&opts.SchedulePath, "schedule", "", "path to the schedule document (default: user config dir)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "override logging.level")
	flag.BoolVar(&opts.NoTray, "no-tray", false, "do not create a tray icon")
	flag.BoolVar(&opts.NoConsole, "no-console", false, "do not read commands from stdin")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(opts)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopQuit
	}
	if a.Err() != nil {
		reason = app.StopFatal
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
}
