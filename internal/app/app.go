// Package app wires the daemon together: config, logging, storage, the SDK
// server and the webhook listener.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"clocktick/internal/config"
	"clocktick/internal/httpx"
	"clocktick/internal/storage"
	"clocktick/pkg/clocktick"
	logx "clocktick/pkg/logx"
	"clocktick/pkg/route"
	"clocktick/pkg/schedule"
)

// RouteBuilder assembles the handler namespace from the loaded config.
// Handler sets that need credentials (the Telegram reminder, say) read them
// off cfg and may refuse to register.
type RouteBuilder func(cfg *config.Config, log logx.Logger) (route.Group, error)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	sdk   *clocktick.Server
	http  *httpx.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads the config and constructs every component. Nothing is serving
// yet; Start does that.
func New(cfgPath string, build RouteBuilder) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := openStorage(cfg, log)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	routes, err := build(cfg, logSvc.Logger())
	if err != nil {
		closeQuietly(store)
		logSvc.Close()
		return nil, err
	}

	sdkOpts := []clocktick.Option{
		clocktick.WithLogger(log.With(logx.String("comp", "sdk"))),
	}
	if cfg.Service.BaseURL != "" {
		sdkOpts = append(sdkOpts, clocktick.WithBaseURL(cfg.Service.BaseURL))
	}
	sdk, err := clocktick.New(clocktick.Config{
		APIKey:          cfg.Service.APIKey,
		Secret:          cfg.Service.Secret,
		PublicKey:       cfg.Service.PublicKey,
		DefaultEndpoint: cfg.Service.DefaultEndpoint,
		Routes:          routes,
	}, sdkOpts...)
	if err != nil {
		closeQuietly(store)
		logSvc.Close()
		return nil, err
	}

	srv, err := httpx.New(cfg, sdk,
		httpx.RateLimit(cfg.HTTP.RatePerSec, cfg.HTTP.Burst, log.With(logx.String("comp", "http"))),
		httpx.Dedup(store, log.With(logx.String("comp", "http"))),
		logSvc.Logger(),
	)
	if err != nil {
		closeQuietly(store)
		logSvc.Close()
		return nil, err
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		sdk:     sdk,
		http:    srv,
	}, nil
}

// SDK exposes the scheduling client for operational tooling.
func (a *App) SDK() *clocktick.Server { return a.sdk }

// Addr is the bound webhook listen address.
func (a *App) Addr() string { return a.http.Addr() }

// Start brings the listener up and begins following the config file. Route
// and credential changes require a restart; logging changes apply live.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.http.Start()
	a.log.Info("handlers registered", logx.Any("routes", a.sdk.Routes()))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(mapLogConfig(cfg))
				a.log.Info("logging config applied")
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	return nil
}

// Stop drains the listener and closes everything in reverse order.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cancel != nil {
		a.cancel()
	}
	a.http.Stop(ctx)
	a.wg.Wait()

	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.log.Info("stopped")
	if err := a.logs.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Schedule submits a job and records it in the local ledger when storage is
// enabled. The ledger write is best effort; the service confirmation is the
// source of truth.
func (a *App) Schedule(
	ctx context.Context, path string, props schedule.Builder, args ...any,
) (clocktick.JobCreation, error) {
	created, err := a.sdk.ScheduleJob(ctx, path, props, args...)
	if err != nil {
		return clocktick.JobCreation{}, err
	}
	if a.store != nil {
		rec := storage.JobRecord{
			JobID:      created.JobID,
			JobType:    path,
			CreatedAt:  time.Now(),
			EndpointID: endpointOf(a.sdk, path),
		}
		if err := a.store.RecordJob(ctx, rec); err != nil {
			a.log.Warn("ledger write failed", logx.String("job_id", created.JobID), logx.Err(err))
		}
	}
	return created, nil
}

// Cancel deletes a job on the service and drops it from the ledger.
func (a *App) Cancel(ctx context.Context, jobID string) error {
	if err := a.sdk.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.RemoveJob(ctx, jobID); err != nil {
			a.log.Warn("ledger remove failed", logx.String("job_id", jobID), logx.Err(err))
		}
	}
	return nil
}

// Jobs lists the ledger. Returns storage.ErrDisabled when no store is
// configured.
func (a *App) Jobs(ctx context.Context) ([]storage.JobRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.ListJobs(ctx)
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func openStorage(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	if cfg.Storage == nil {
		return nil, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if st != nil {
		log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
	}
	return st, nil
}

func endpointOf(sdk *clocktick.Server, path string) string {
	ep, err := sdk.Endpoint(path)
	if err != nil {
		return ""
	}
	return ep
}

func closeQuietly(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}
