package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"clocktick/internal/app"
	"clocktick/internal/config"
	"clocktick/internal/handlers/echo"
	"clocktick/internal/handlers/reminder"
	logx "clocktick/pkg/logx"
	"clocktick/pkg/route"
	"clocktick/pkg/schedule"
)

func buildRoutes(cfg *config.Config, log logx.Logger) (route.Group, error) {
	routes := route.Group{}
	for k, v := range echo.Routes(log) {
		routes[k] = v
	}
	if cfg.Reminder != nil {
		h, err := reminder.New(*cfg.Reminder, log)
		if err != nil {
			return nil, err
		}
		for k, v := range h.Routes() {
			routes[k] = v
		}
	}
	return routes, nil
}

func main() {
	var (
		cfgPath  string
		jobPath  string
		jobText  string
		jobDelay time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.StringVar(&jobPath, "schedule", "", "schedule one job at this handler path and exit")
	flag.StringVar(&jobText, "text", "", "string argument for -schedule")
	flag.DurationVar(&jobDelay, "in", time.Minute, "delay before the -schedule job fires")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, buildRoutes)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if jobPath != "" {
		// One-shot mode: submit and exit without serving. The webhook that
		// eventually fires is answered by the long-running daemon instance.
		props := schedule.FromNow().
			Seconds(uint(jobDelay / time.Second)).
			CustomID("cli-" + uuid.NewString())
		var args []any
		if jobText != "" {
			args = append(args, jobText)
		}
		created, err := a.Schedule(ctx, jobPath, props, args...)
		if err != nil {
			fmt.Println("schedule failed:", err)
			_ = a.Stop(context.Background())
			os.Exit(1)
		}
		fmt.Println("scheduled:", created.JobID)
		_ = a.Stop(context.Background())
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	<-ctx.Done()
	_ = a.Stop(context.Background())
}
