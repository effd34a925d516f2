// Package app assembles the daemon: config, logging, storage, the window
// agent client, the capture scheduler, notification forwarding, the local
// HTTP API and the daily window refresh.
package app

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"chatlogd/internal/api"
	"chatlogd/internal/capture"
	"chatlogd/internal/chatlog"
	"chatlogd/internal/collab"
	"chatlogd/internal/config"
	"chatlogd/internal/notify"
	"chatlogd/internal/parse"
	"chatlogd/internal/refresh"
	"chatlogd/internal/sched"
	"chatlogd/internal/store"
	logx "chatlogd/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store  *store.Store
	logbuf *chatlog.Buffer
	agent  *collab.Client
	cap    *capture.Service
	deb    *sched.Debouncer
	fwd    *notify.Forwarder
	api    *api.Server
	refr   *refresh.Service

	// targets maps agent target IDs to the last resolved Target, so the
	// capture handler does not re-resolve on every admitted signal.
	tmu     sync.Mutex
	targets map[string]capture.Target

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	agentTimeout, err := config.ParseDurationOrDefault("capture.agent.timeout", cfg.Capture.Agent.Timeout, 15*time.Second)
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}
	agent, err := collab.New(cfg.Capture.Agent.BaseURL, agentTimeout, log.With(logx.String("comp", "agent")))
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}

	logbuf := chatlog.NewBuffer()
	capSvc := capture.New(agent, agent, st, parse.ForName(cfg.Capture.Dialect), logbuf,
		log.With(logx.String("comp", "capture")))

	a := &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		store:   st,
		logbuf:  logbuf,
		agent:   agent,
		cap:     capSvc,
		targets: map[string]capture.Target{},
	}

	cooldown, err := config.ParseDurationOrDefault("capture.cooldown", cfg.Capture.Cooldown, sched.DefaultCooldown)
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}
	a.deb = sched.New(cooldown, a.handleSignal, log.With(logx.String("comp", "sched")))

	a.fwd, err = buildForwarder(cfg, log)
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}

	if cfg.API.Enabled {
		a.api = api.NewServer(api.Config{
			Addr:        cfg.API.Addr,
			HealthPaths: cfg.API.HealthPaths,
		}, st, a, log.With(logx.String("comp", "api")))
	}

	if cfg.Refresh.Enabled {
		hour, minute, err := config.ParseClock(cfg.Refresh.At)
		if err != nil {
			_ = st.Close()
			_ = logSvc.Close()
			return nil, err
		}
		a.refr = refresh.New(refresh.Config{
			Hour:   hour,
			Minute: minute,
			Titles: cfg.Refresh.Titles,
		}, agent, a.deb, log.With(logx.String("comp", "refresh")))
		a.refr.OnReopened = a.onReopened
	}

	return a, nil
}

func buildForwarder(cfg *config.Config, log logx.Logger) (*notify.Forwarder, error) {
	flog := log.With(logx.String("comp", "notify"))
	switch strings.ToLower(strings.TrimSpace(cfg.Notify.Sink)) {
	case "", "none":
		return nil, nil
	case "webhook":
		wc := cfg.Notify.Webhook
		timeout, err := config.ParseDurationOrDefault("notify.webhook.timeout", wc.Timeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		sink, err := notify.NewWebhookSink(wc.Endpoint, timeout)
		if err != nil {
			return nil, err
		}
		return notify.NewForwarder(sink, hostLabel(wc.Host), cfg.Notify.RatePerSec, flog), nil
	case "telegram":
		tc := cfg.Notify.Telegram
		sink, err := notify.NewTelegramSink(tc.Token, tc.ChatID, tc.ThreadID)
		if err != nil {
			return nil, err
		}
		return notify.NewForwarder(sink, hostLabel(""), cfg.Notify.RatePerSec, flog), nil
	}
	// Validate() rejects other values before we get here.
	return nil, nil
}

func hostLabel(configured string) string {
	if configured != "" {
		return configured
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "chatlogd"
}

// AdmitSignal resolves a raw signal reference through the window agent and
// offers it to the debouncer. The resolved target is cached for the handler.
func (a *App) AdmitSignal(ctx context.Context, ref string, code int) (bool, error) {
	t, err := a.agent.Resolve(ctx, ref)
	if err != nil {
		return false, err
	}

	a.tmu.Lock()
	a.targets[t.ID] = t
	a.tmu.Unlock()

	return a.deb.Admit(t.ID, code), nil
}

// handleSignal is the debouncer's single-worker capture handler.
func (a *App) handleSignal(sig sched.Signal) bool {
	ctx := a.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return false
	}

	a.tmu.Lock()
	t, ok := a.targets[sig.TargetID]
	a.tmu.Unlock()
	if !ok {
		// Raced with a Clear(); the next signal re-resolves.
		a.log.Debug("no cached target for admitted signal", logx.String("target", sig.TargetID))
		return false
	}

	res := a.cap.Capture(ctx, t)
	for _, w := range res.Warnings {
		a.log.Warn(w, logx.String("chat", t.Title))
	}
	if a.fwd != nil && len(res.NewMessages) > 0 {
		a.fwd.Forward(t.Title, res.NewMessages)
	}
	return res.Success
}

// onReopened migrates per-target state after the refresh run gives a chat a
// new window identity.
func (a *App) onReopened(title string, t capture.Target) {
	a.tmu.Lock()
	var oldID string
	for id, known := range a.targets {
		if known.Title == title && id != t.ID {
			oldID = id
			break
		}
	}
	delete(a.targets, oldID)
	a.targets[t.ID] = t
	a.tmu.Unlock()

	if oldID != "" {
		a.deb.ReplaceTarget(oldID, t.ID)
		a.logbuf.ReplaceKey(chatlog.Key(title, oldID), chatlog.Key(title, t.ID))
	}
}

func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.cancel = context.WithCancel(ctx)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(a.runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(a.runCtx); err != nil && a.runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	if a.api != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.api.Start(); err != nil {
				a.log.Error("api server failed", logx.Err(err))
			}
		}()
	}

	if a.refr != nil {
		if err := a.refr.Start(a.runCtx); err != nil {
			return err
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("daemon started")
	return nil
}

// reloadLoop applies hot-reloadable settings from committed config updates.
// Storage, agent, notify and API changes need a restart; logging and the
// capture cooldown apply live.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the newest committed config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})

			cooldown, err := config.ParseDurationOrDefault("capture.cooldown", cfg.Capture.Cooldown, sched.DefaultCooldown)
			if err == nil {
				a.deb.SetCooldown(cooldown)
			}

			a.log.Info("config reloaded")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	if a.cancel != nil {
		a.cancel()
	}
	if a.refr != nil {
		a.refr.Stop()
	}
	a.deb.Clear()

	if a.api != nil {
		if err := a.api.Shutdown(ctx); err != nil {
			a.log.Warn("api shutdown", logx.Err(err))
		}
	}
	if a.fwd != nil {
		a.fwd.Drain(5 * time.Second)
	}

	a.wg.Wait()

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}
