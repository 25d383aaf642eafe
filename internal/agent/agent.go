// Package agent wires the connection supervisor, job orchestrator, printer
// backend and state store into the long-running print agent process.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Riboost-Studio/print-agent/internal/config"
	"github.com/Riboost-Studio/print-agent/internal/model"
	"github.com/Riboost-Studio/print-agent/internal/services"
	"github.com/Riboost-Studio/print-agent/internal/templates"
	"github.com/Riboost-Studio/print-agent/internal/utils"
)

// Names of the JSON documents kept under config/.
const (
	identityConfig     = "agent"
	agentConfigName    = "agent_config"
	serverConfigName   = "server_config"
	printerCloseBudget = 5 * time.Second
)

type identity struct {
	AgentID   string    `json:"agentId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Agent is the composition root. It owns every long-lived component.
type Agent struct {
	cfg      *config.Config
	store    *utils.Store
	catalog  *templates.Catalog
	counters *model.AgentCounters
	logger   zerolog.Logger
	agentID  string
	now      func() time.Time

	supervisor   *services.Supervisor
	printer      services.PrinterBackend
	orchestrator *services.Orchestrator
}

func New(cfg *config.Config, store *utils.Store, version string, logger zerolog.Logger) (*Agent, error) {
	log := logger.With().Str("component", "agent").Logger()

	agentID, err := resolveAgentID(cfg.AgentID, store, log)
	if err != nil {
		return nil, err
	}

	if _, err := store.SaveConfig(agentConfigName, cfg.Redacted()); err != nil {
		log.Warn().Err(err).Msg("could not save configuration snapshot")
	}

	catalog := templates.Default()
	if !catalog.Exists(cfg.DefaultTemplate) {
		log.Warn().
			Str("template", cfg.DefaultTemplate).
			Str("fallback", catalog.DefaultName()).
			Msg("default template not found")
	}

	host, _ := os.Hostname()
	a := &Agent{
		cfg:      cfg,
		store:    store,
		catalog:  catalog,
		counters: model.NewAgentCounters(time.Now()),
		logger:   log.With().Str("agent_id", agentID).Logger(),
		agentID:  agentID,
		now:      time.Now,
	}
	a.supervisor = services.NewSupervisor(services.SupervisorConfig{
		URL:               cfg.ServerURL,
		Token:             cfg.Token,
		AgentID:           agentID,
		RestaurantID:      cfg.RestaurantID,
		ConnectTimeout:    cfg.ConnectionTimeout,
		MaxAttempts:       cfg.ReconnectAttempts,
		BaseDelay:         cfg.ReconnectDelay,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Version:           version,
		Host:              host,
	}, a, logger)
	return a, nil
}

func (a *Agent) ID() string { return a.agentID }

// resolveAgentID prefers the configured id, then the persisted one, and
// otherwise generates and persists a new one.
func resolveAgentID(configured string, store *utils.Store, log zerolog.Logger) (string, error) {
	if configured != "" {
		return configured, nil
	}

	var id identity
	err := store.LoadConfig(identityConfig, &id)
	switch {
	case err == nil && id.AgentID != "":
		return id.AgentID, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		log.Warn().Err(err).Msg("stored agent identity unreadable, generating a new one")
	}

	id = identity{AgentID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	if _, err := store.SaveConfig(identityConfig, id); err != nil {
		return "", fmt.Errorf("persist agent id: %w", err)
	}
	log.Info().Str("agent_id", id.AgentID).Msg("generated agent id")
	return id.AgentID, nil
}

// prepare selects and initializes the printer backend and builds the
// orchestrator around it.
func (a *Agent) prepare(ctx context.Context) {
	a.printer = a.selectPrinter(ctx)
	a.orchestrator = services.NewOrchestrator(services.OrchestratorConfig{
		DefaultTemplate: a.cfg.DefaultTemplate,
		QueueCapacity:   a.cfg.QueueCapacity,
		PrintTimeout:    a.cfg.PrintTimeout,
	}, a.printer, a.catalog, a.supervisor, a.counters, a.logger)
}

// selectPrinter returns the hardware backend, or the dry-run backend when
// configured or when the printer cannot be initialized.
func (a *Agent) selectPrinter(ctx context.Context) services.PrinterBackend {
	dry := services.NewDryRunPrinter(a.store, a.logger)
	if a.cfg.DryRun {
		a.logger.Info().Str("dir", a.store.PrintoutsDir()).Msg("dry-run mode, tickets are written to files")
		return dry
	}

	pcfg := a.cfg.Printer
	chromePath := ""
	if pcfg.Mode == model.PrinterModeRaster {
		if ok, path := utils.CheckChrome(); ok {
			chromePath = path
			a.logger.Info().Str("chrome", path).Str("version", utils.ChromeVersion(path)).Msg("raster mode enabled")
		} else {
			a.logger.Warn().Msg("Chrome not found, falling back to text mode")
			pcfg.Mode = model.PrinterModeText
		}
	}

	p, err := services.NewESCPOSPrinter(pcfg, chromePath, a.logger)
	if err == nil {
		err = p.Initialize(ctx)
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("printer unavailable, continuing in dry-run mode")
		return dry
	}
	return p
}

// Run starts every component and blocks until ctx is cancelled or a
// component fails fatally, then shuts down in order: pending work first, then
// the shutdown notice, then the connection, then the printer and a final
// backup.
func (a *Agent) Run(ctx context.Context) error {
	a.prepare(ctx)

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	connCtx, cancelConn := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelConn()

	var work, conn errgroup.Group
	start := func(g *errgroup.Group, ctx context.Context, name string, fn func(context.Context) error) {
		g.Go(func() error {
			err := a.guard(name, func() error { return fn(ctx) })
			if err != nil {
				stop(err)
			}
			return err
		})
	}

	start(&work, workCtx, "orchestrator", a.orchestrator.Run)
	start(&work, workCtx, "maintenance", a.maintain)
	if a.cfg.StatusAddr != "" {
		start(&work, workCtx, "status", a.serveStatus)
	}
	start(&conn, connCtx, "supervisor", a.supervisor.Run)

	a.logger.Info().
		Str("printer", a.printer.Name()).
		Str("template", a.cfg.DefaultTemplate).
		Msg("print agent started")

	<-runCtx.Done()

	reason := "shutdown"
	if ctx.Err() == nil {
		reason = fmt.Sprintf("fatal: %v", context.Cause(runCtx))
	}
	a.logger.Info().Str("reason", reason).Msg("stopping print agent")

	cancelWork()
	workErr := work.Wait()

	if err := a.supervisor.SendShutdown(reason); err != nil {
		a.logger.Debug().Err(err).Msg("shutdown notice not delivered")
	}
	cancelConn()
	connErr := conn.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), printerCloseBudget)
	a.printer.Close(closeCtx)
	cancel()

	if path, err := a.store.Backup(); err != nil {
		a.logger.Error().Err(err).Msg("final backup failed")
	} else {
		a.logger.Info().Str("file", path).Msg("configuration backed up")
	}

	stats := a.counters.Snapshot()
	a.logger.Info().
		Dur("uptime", a.counters.Uptime(a.now())).
		Int64("total", stats.Total).
		Int64("successful", stats.Successful).
		Int64("failed", stats.Failed).
		Msg("print agent stopped")

	return errors.Join(workErr, connErr)
}

// guard turns a panic in a component into an error after taking an
// emergency backup.
func (a *Agent) guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Str("task", name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("fatal error")
			a.EmergencyBackup()
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	return fn()
}

// EmergencyBackup snapshots the configuration after a fatal error.
func (a *Agent) EmergencyBackup() {
	path, err := a.store.Backup()
	if err != nil {
		a.logger.Error().Err(err).Msg("emergency backup failed")
		return
	}
	a.logger.Warn().Str("file", path).Msg("emergency backup written")
}

// HandleEvent reacts to supervisor events.
func (a *Agent) HandleEvent(ctx context.Context, ev services.Event) {
	switch ev := ev.(type) {
	case services.PrintRequestEvent:
		if ev.Err != nil {
			a.orchestrator.Reject(ev.Request, ev.Err)
			return
		}
		// rejections are reported by the orchestrator itself
		_, _ = a.orchestrator.Submit(ev.Request)

	case services.ServerStatusEvent:
		a.logger.Debug().RawJSON("status", orNull(ev.Status)).Msg("server status")

	case services.ConfigUpdateEvent:
		path, err := a.store.SaveConfig(serverConfigName, ev.Config)
		if err != nil {
			a.logger.Error().Err(err).Msg("could not save server configuration")
			return
		}
		a.logger.Info().Str("file", path).Msg("server configuration updated")

	case services.ConnectedEvent:
		a.logger.Info().Str("restaurant_id", ev.RestaurantID).Msg("agent online")

	case services.DisconnectedEvent:
		a.logger.Warn().Str("reason", ev.Reason).Int("queued", a.orchestrator.QueueDepth()).Msg("agent offline")

	case services.ReconnectFailedEvent:
		a.logger.Error().
			Int("attempts", ev.Attempts).
			Msg("giving up on reconnection; restart the agent or POST /reconnect")
	}
}

// Status is the telemetry snapshot sent in agent-status.
func (a *Agent) Status() model.StatusSnapshot {
	usage, err := a.store.DiskUsage()
	if err != nil {
		a.logger.Debug().Err(err).Msg("disk usage unavailable")
	}

	snap := model.StatusSnapshot{
		AgentID:        a.agentID,
		Connected:      a.supervisor.Connected(),
		PrinterStatus:  model.PrinterDisconnected,
		Stats:          a.counters.Snapshot(),
		UptimeMillis:   a.counters.Uptime(a.now()).Milliseconds(),
		DiskUsageBytes: usage,
	}
	if a.printer != nil {
		snap.PrinterStatus = a.printer.Status()
	}
	if a.orchestrator != nil {
		snap.QueueLength = a.orchestrator.QueueDepth()
	}
	return snap
}

// maintain runs the retention sweep and the periodic status broadcast.
func (a *Agent) maintain(ctx context.Context) error {
	cleanupEvery := a.cfg.CleanupInterval
	if cleanupEvery <= 0 {
		cleanupEvery = time.Hour
	}
	statusEvery := a.cfg.StatusInterval
	if statusEvery <= 0 {
		statusEvery = 5 * time.Minute
	}

	a.sweep()

	cleanup := time.NewTicker(cleanupEvery)
	defer cleanup.Stop()
	status := time.NewTicker(statusEvery)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-cleanup.C:
			a.sweep()
		case <-status.C:
			a.supervisor.SendStatus(a.Status())
		}
	}
}

func (a *Agent) sweep() {
	removed, err := a.store.Sweep(a.cfg.Retention())
	if err != nil {
		a.logger.Warn().Err(err).Msg("retention sweep incomplete")
	}
	if removed > 0 {
		a.logger.Info().Int("removed", removed).Msg("old printouts and logs removed")
	}
}

func orNull(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
