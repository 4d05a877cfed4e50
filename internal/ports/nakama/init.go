package nakama

import (
	"context"
	"database/sql"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"

	"battlearena/internal/app"
	"battlearena/internal/app/competition"
	"battlearena/internal/app/duel"
	"battlearena/internal/app/event"
	"battlearena/internal/app/tournament"
	"battlearena/internal/config"
	"battlearena/internal/domain"
	"battlearena/internal/history"
	"battlearena/internal/message"
	"battlearena/internal/ports"
	"battlearena/internal/scheduler"
)

const (
	defaultConfigPath = "data/arenas.yaml"
	staticRetryLimit  = 5
	loopBuffer        = 256
)

// Runtime is the part of runtime.NakamaModule the plugin depends on.
type Runtime interface {
	MatchRuntime
	Notifier
	UserLookup
	WalletUpdater
}

// Plugin holds the control loop and every component driven by it.
type Plugin struct {
	cfg     *config.Config
	arenas  []*domain.Arena
	logger  runtime.Logger
	loop    *scheduler.Loop
	manager *competition.Manager
	service *app.Service
	outbox  *outbox
	catalog *message.Catalog
	archive ports.ResultArchive

	static        map[string]bool
	stopTelemetry func(context.Context) error
}

// NewPlugin wires the application around nk. archive may be nil.
func NewPlugin(logger runtime.Logger, nk Runtime, cfg *config.Config, arenas []*domain.Arena, archive ports.ResultArchive) *Plugin {
	loop := scheduler.NewLoop(loopBuffer)
	catalog := message.NewCatalog(cfg.Messages)
	messenger := NewNotificationMessenger(nk, catalog)
	directory := NewNakamaAccountAdapter(nk)

	manager := competition.NewManager(competition.Options{
		Bus:            event.NewBus(),
		Scheduler:      loop,
		Logger:         logger,
		Provisioner:    NewMatchProvisioner(nk, logger),
		MaxDynamicMaps: cfg.MaxDynamicMaps,
		Tracer:         otel.Tracer("battlearena/competition"),
	})
	for _, a := range arenas {
		manager.RegisterArena(a)
	}

	tournaments := tournament.NewRegistry(tournament.Config{
		AdvanceDelay: cfg.Tournament.AdvanceDelay,
		WinCommands:  cfg.Tournament.WinCommands,
		QuietStart:   !cfg.Tournament.StartBroadcast,
	}, tournament.Deps{
		Manager:   manager,
		Scheduler: loop,
		Messenger: messenger,
		Directory: directory,
		Commands:  NewWalletCommands(NewNakamaEconomyAdapter(nk), messenger),
		Archive:   archive,
		Logger:    logger,
		Tracer:    otel.Tracer("battlearena/tournament"),
	})
	duels := duel.New(duel.Config{RequestTimeout: cfg.Duel.RequestTimeout}, duel.Deps{
		Manager:   manager,
		Scheduler: loop,
		Messenger: messenger,
		Directory: directory,
		Logger:    logger,
	})

	p := &Plugin{
		cfg:     cfg,
		arenas:  arenas,
		logger:  logger,
		loop:    loop,
		manager: manager,
		outbox:  newOutbox(manager),
		catalog: catalog,
		archive: archive,
		static:  make(map[string]bool),
	}
	p.service = app.NewService(app.Deps{
		Loop:        loop,
		Manager:     manager,
		Tournaments: tournaments,
		Duels:       duels,
		Archive:     archive,
		Directory:   directory,
		Voice:       app.NewVivoxService(cfg.Voice),
		Logger:      logger,
	})
	return p
}

// InitModule wires RPCs, the competition match handler and the shutdown hook for Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	debugErrors = env[EnvDebug] == "true"

	cfg, arenas, err := loadConfig(env)
	if err != nil {
		logger.Error(eris.ToString(err, true))
		return err
	}
	archive, err := history.Open(cfg.HistoryPath)
	if err != nil {
		logger.Error(eris.ToString(err, true))
		return err
	}
	stopTelemetry, err := initTelemetry(ctx, logger, cfg.Telemetry)
	if err != nil {
		logger.Error(eris.ToString(err, true))
		return err
	}

	p := NewPlugin(logger, nk, cfg, arenas, archive)
	p.stopTelemetry = stopTelemetry
	if err := p.Register(initializer); err != nil {
		return err
	}
	p.Start()

	logger.Info("Battle arena module loaded with %d arenas.", len(arenas))
	return nil
}

func loadConfig(env map[string]string) (*config.Config, []*domain.Arena, error) {
	path := env[EnvConfigPath]
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyEnv(env)
	arenas, err := cfg.BuildArenas()
	if err != nil {
		return nil, nil, eris.Wrapf(err, "invalid arenas in %s", path)
	}
	return cfg, arenas, nil
}

// Register installs the plugin's RPCs, match handler and lifecycle hooks.
func (p *Plugin) Register(initializer runtime.Initializer) error {
	if err := initializer.RegisterMatch(MatchNameCompetition, func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
		return &matchHandler{plugin: p}, nil
	}); err != nil {
		return eris.Wrap(err, "failed to register match handler")
	}
	if err := p.registerRPCs(initializer); err != nil {
		return err
	}
	if err := initializer.RegisterEventSessionEnd(p.onSessionEnd); err != nil {
		return eris.Wrap(err, "failed to register session end hook")
	}
	if err := initializer.RegisterShutdown(p.onShutdown); err != nil {
		return eris.Wrap(err, "failed to register shutdown hook")
	}
	return nil
}

// Start runs the control loop and brings up the competitions of every static map.
func (p *Plugin) Start() {
	p.loop.Start()
	p.loop.Run(func() { p.createStatic(1) })
}

// Stop ends every tournament and competition, then stops the loop and closes the archive.
func (p *Plugin) Stop(ctx context.Context) {
	if err := p.service.Shutdown(ctx); err != nil {
		p.logger.Warn("shutdown did not complete: %v", err)
	}
	p.loop.Stop()
	if closer, ok := p.archive.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Warn("failed to close history archive: %v", err)
		}
	}
	if p.stopTelemetry != nil {
		if err := p.stopTelemetry(ctx); err != nil {
			p.logger.Warn("failed to stop telemetry: %v", err)
		}
	}
}

// createStatic runs on the loop. Match creation can fail while Nakama is still starting,
// so failed maps are retried with a growing delay.
func (p *Plugin) createStatic(attempt int) {
	failed := 0
	for _, a := range p.arenas {
		for _, m := range a.Maps {
			key := a.Name + "/" + m.Name
			if m.Type != domain.MapStatic || p.static[key] {
				continue
			}
			if _, err := p.manager.CreateStatic(context.Background(), a.Name, m.Name); err != nil {
				failed++
				p.logger.WithFields(map[string]interface{}{
					"arena":   a.Name,
					"map":     m.Name,
					"attempt": attempt,
				}).Warn("static competition not created: %v", err)
				continue
			}
			p.static[key] = true
		}
	}
	if failed > 0 && attempt < staticRetryLimit {
		p.loop.After(time.Duration(attempt)*time.Second, func() { p.createStatic(attempt + 1) })
	}
}

func (p *Plugin) onShutdown(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, seconds int) {
	logger.Info("Battle arena module shutting down (grace %ds).", seconds)
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	p.Stop(ctx)
}
