package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go-batchd/internal/scheduler/middleware"
	"go-batchd/internal/scheduler/models"
	"go-batchd/internal/scheduler/routes"
	"go-batchd/internal/scheduler/services"
	"go-batchd/pkg/config"
	"go-batchd/pkg/database"
	"go-batchd/pkg/module"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
)

// Module wires the batch scheduler: the dispatch engine with its worker pool,
// the cron fan-out loop, the runner and compensator registries, and the two
// operator surfaces (form console and JSON API).
type Module struct {
	*module.BaseModule
	registry     *services.RunnerRegistry
	compensators *services.CompensatorRegistry
	pool         *services.WorkerPool
	txService    *services.TxService
	engine       *services.EngineService
	fanout       *services.FireService
	admin        *services.AdminService
	middleware   *middleware.Middleware
	forms        *routes.Forms
}

// New creates the scheduler module. Redis is optional; without it the stats
// cache degrades to direct reads.
func New(db *database.SQL, redis *database.Redis) (*Module, error) {
	picker, err := services.NewTaskPicker(db.Driver)
	if err != nil {
		return nil, err
	}

	repo := services.NewRepository(db)
	txService := services.NewTxService(db, picker)
	registry := services.NewRunnerRegistry()
	compensators := services.NewCompensatorRegistry()
	pool := services.NewWorkerPool(0)
	engine := services.NewEngineService(txService, registry, compensators, pool)
	fanout := services.NewFireService(db, repo)
	cache := services.NewSchedulerCache(redis)
	admin := services.NewAdminService(repo, engine, registry, cache, db, redis)

	return &Module{
		BaseModule:   module.NewBaseModule("scheduler", db, redis),
		registry:     registry,
		compensators: compensators,
		pool:         pool,
		txService:    txService,
		engine:       engine,
		fanout:       fanout,
		admin:        admin,
		middleware:   middleware.New(),
		forms:        routes.NewForms(admin),
	}, nil
}

// RegisterRunner binds a runner to a task type code at startup wiring.
func (m *Module) RegisterRunner(typeCode string, r models.Runner) error {
	return m.registry.Register(typeCode, r)
}

// RegisterRunnerFactory binds a factory name the mapping file may reference.
func (m *Module) RegisterRunnerFactory(name string, f services.RunnerFactory) error {
	return m.registry.RegisterFactory(name, f)
}

// RegisterCompensator binds a compensator to its action type.
func (m *Module) RegisterCompensator(c models.Compensator) error {
	return m.compensators.Register(c)
}

// InitRunners loads the mapping file and warms the resolution cache. Call it
// after all RegisterRunner/RegisterRunnerFactory wiring is done.
func (m *Module) InitRunners() {
	m.registry.Init()
}

// TxService exposes the transactional service so runners can record
// compensation entries while they execute.
func (m *Module) TxService() *services.TxService {
	return m.txService
}

// Routes registers the operator form surface: the HTML console on / and the
// POST endpoints that redirect back to it. The process-level /health route
// stays with the binary; module health is served by the JSON status
// operation.
func (m *Module) Routes(r chi.Router) {
	r.Use(m.middleware.RequestLogging)
	r.Use(m.middleware.SecurityHeaders)

	r.Group(func(gr chi.Router) {
		gr.Use(m.middleware.Tracing("scheduler-console"))
		m.forms.Register(gr)
	})
}

// RegisterUnifiedRoutes registers the JSON API on the shared Huma API.
func (m *Module) RegisterUnifiedRoutes(api huma.API, basePath string) {
	routes.RegisterSchedulerRoutes(api, basePath, m.admin)
	slog.Info("Scheduler unified routes registered", slog.String("base_path", basePath))
}

// StartBackgroundTasks starts the poll loop and the cron fan-out loop. Both
// run until the context is canceled or the module is stopped.
func (m *Module) StartBackgroundTasks(ctx context.Context) {
	slog.Info("Starting scheduler background tasks", slog.String("module", m.Name()))

	go m.runPollLoop(ctx)
	go m.runFanoutLoop(ctx)
}

// runPollLoop ticks the dispatch engine: each tick claims and dispatches up
// to SCHEDULER_POLL_BATCH tasks. The first tick is delayed so the database
// and runner wiring settle before dispatch starts.
func (m *Module) runPollLoop(ctx context.Context) {
	delay := config.GetDurationMSEnv("SCHEDULER_POLL_DELAY_MS", 2000)
	batch := config.GetIntEnv("SCHEDULER_POLL_BATCH", 16)

	slog.Info("Poll loop starting",
		slog.Duration("delay", delay),
		slog.Int("batch", batch),
		slog.String("owner", m.engine.Owner()))

	select {
	case <-time.After(3 * time.Second):
	case <-ctx.Done():
		return
	case <-m.StopChannel():
		return
	}

	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Poll loop stopped", slog.String("reason", "context canceled"))
			return
		case <-m.StopChannel():
			slog.Info("Poll loop stopped")
			return
		case <-ticker.C:
			for i := 0; i < batch; i++ {
				if !m.engine.PollAndRunOnce(ctx) {
					break
				}
			}
		}
	}
}

// runFanoutLoop ticks the cron fan-out service.
func (m *Module) runFanoutLoop(ctx context.Context) {
	delay := config.GetDurationMSEnv("SCHEDULER_FIRE_DELAY_MS", 10000)

	slog.Info("Fan-out loop starting", slog.Duration("delay", delay))

	select {
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
		return
	case <-m.StopChannel():
		return
	}

	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Fan-out loop stopped", slog.String("reason", "context canceled"))
			return
		case <-m.StopChannel():
			slog.Info("Fan-out loop stopped")
			return
		case <-ticker.C:
			if err := m.fanout.FireDue(ctx); err != nil {
				slog.Error("Cron fan-out failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop stops the background loops and waits for in-flight executions to
// finish their completion write-back.
func (m *Module) Stop() {
	slog.Info("Stopping scheduler module", slog.String("module", m.Name()))
	m.BaseModule.Stop()
	m.pool.Stop()
}
