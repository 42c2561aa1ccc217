// Package scheduler drives every DataSource with auto_pull set: once a
// minute it scans for import sources whose pull_interval_minutes has
// elapsed and triggers an import run against each one's open task, the way
// the teacher's worker pool polls a queue on a fixed cadence instead of
// waiting to be invoked by a request.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/exef-pl/exef/cache"
	"github.com/exef-pl/exef/config"
	"github.com/exef-pl/exef/flow"
	"github.com/exef-pl/exef/logging"
	"github.com/exef-pl/exef/model"
	"github.com/exef-pl/exef/router"
	"github.com/exef-pl/exef/worker"
)

var log = logging.New(map[string]interface{}{"component": "scheduler"})

// tickSpec runs the scan once a minute; pull_interval_minutes is then
// evaluated in Go rather than expressed as individual cron schedules, since
// every DataSource carries its own interval.
const tickSpec = "@every 1m"

// runLockTTL bounds how long a scheduler-held run lock survives a crash
// mid-run before another instance can retry the same source.
const runLockTTL = 10 * time.Minute

// Scheduler owns the cron loop and the flow engine it drives.
type Scheduler struct {
	mainDB *sqlx.DB
	cfg    config.Config
	router *router.Manager
	engine *flow.Engine
	locks  *cache.Manager // optional: nil means single-instance, no locking

	cron *cron.Cron
}

// New builds a Scheduler. locks may be nil when running a single instance
// with no Redis backend configured.
func New(mainDB *sqlx.DB, cfg config.Config, rt *router.Manager, engine *flow.Engine, locks *cache.Manager) *Scheduler {
	return &Scheduler{
		mainDB: mainDB,
		cfg:    cfg,
		router: rt,
		engine: engine,
		locks:  locks,
		cron:   cron.New(),
	}
}

// Start schedules the recurring tick and begins running it in the
// background. Call Stop to shut it down.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(tickSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule auto_pull tick: %w", err)
	}
	s.cron.Start()
	log.WithField("spec", tickSpec).Info("scheduler started")
	return nil
}

// Stop cancels the cron loop, waiting for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("scheduler stopped")
}

// dueSourceJob pairs a due source with the database it lives in, so
// worker.Run can fan the whole tick's work out across goroutines.
type dueSourceJob struct {
	db     *sqlx.DB
	source model.DataSource
}

// tick scans every reachable database for due import sources and runs them,
// logging and continuing past any single source's failure so one bad
// adapter never blocks the rest of the fleet.
func (s *Scheduler) tick(ctx context.Context) {
	dbs, err := s.candidateDatabases()
	if err != nil {
		log.WithField("error", err.Error()).Error("scheduler tick: list entity databases")
		return
	}

	now := time.Now().UTC()
	var jobs []dueSourceJob
	for _, db := range dbs {
		sources, err := dueImportSources(db, now)
		if err != nil {
			log.WithField("error", err.Error()).Error("scheduler tick: list due sources")
			continue
		}
		for _, source := range sources {
			jobs = append(jobs, dueSourceJob{db: db, source: source})
		}
	}

	// A run lock (when Redis is configured) keeps concurrent runs of the
	// same source from overlapping; distinct sources can pull at once.
	worker.Run(jobs, worker.DefaultConcurrency, func(j dueSourceJob) {
		s.runSource(ctx, j.db, j.source)
	})
	log.WithField("due_sources", len(jobs)).Debug("scheduler tick finished")
}

// candidateDatabases returns every database the scheduler should scan: just
// the main database when per-entity storage is disabled, or the main
// database plus every active entity's database when it is enabled.
func (s *Scheduler) candidateDatabases() ([]*sqlx.DB, error) {
	if !s.cfg.UseEntityDB {
		return []*sqlx.DB{s.mainDB}, nil
	}

	var entities []model.Entity
	if err := s.mainDB.Select(&entities, `SELECT * FROM entities WHERE is_archived = 0`); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	dbs := make([]*sqlx.DB, 0, len(entities))
	for _, e := range entities {
		nip := router.NormalizeNIPOrID(e.Nip, e.ID)
		db, err := s.router.Open(nip)
		if err != nil {
			log.WithField("entity_id", e.ID).WithField("error", err.Error()).Error("open entity database for scheduler scan")
			continue
		}
		dbs = append(dbs, db)
	}
	return dbs, nil
}

// dataSourceRow is the raw scan shape for one data_sources row: Config is
// stored as a JSON text column, so it cannot be scanned straight into
// model.DataSource.Config (a map).
type dataSourceRow struct {
	ID              string     `db:"id"`
	ProjectID       string     `db:"project_id"`
	Direction       string     `db:"direction"`
	SourceType      string     `db:"source_type"`
	Name            string     `db:"name"`
	Icon            string     `db:"icon"`
	ConfigText      string     `db:"config"`
	IsActive        bool       `db:"is_active"`
	AutoPull        bool       `db:"auto_pull"`
	PullIntervalMin int        `db:"pull_interval_minutes"`
	LastRunAt       *time.Time `db:"last_run_at"`
	LastRunStatus   string     `db:"last_run_status"`
	LastRunCount    int        `db:"last_run_count"`
	LastRunError    string     `db:"last_run_error"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r dataSourceRow) toModel() model.DataSource {
	cfg := map[string]any{}
	if r.ConfigText != "" {
		_ = json.Unmarshal([]byte(r.ConfigText), &cfg)
	}
	return model.DataSource{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		Direction:       model.SourceDirection(r.Direction),
		SourceType:      model.SourceType(r.SourceType),
		Name:            r.Name,
		Icon:            r.Icon,
		Config:          cfg,
		IsActive:        r.IsActive,
		AutoPull:        r.AutoPull,
		PullIntervalMin: r.PullIntervalMin,
		LastRunAt:       r.LastRunAt,
		LastRunStatus:   r.LastRunStatus,
		LastRunCount:    r.LastRunCount,
		LastRunError:    r.LastRunError,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func dueImportSources(db *sqlx.DB, now time.Time) ([]model.DataSource, error) {
	var rows []dataSourceRow
	err := db.Select(&rows, `SELECT id, project_id, direction, source_type, name, icon, config,
		is_active, auto_pull, pull_interval_minutes, last_run_at, last_run_status, last_run_count,
		last_run_error, created_at, updated_at
		FROM data_sources WHERE direction = ? AND is_active = 1 AND auto_pull = 1`, model.DirectionImport)
	if err != nil {
		return nil, fmt.Errorf("select auto_pull sources: %w", err)
	}

	var due []model.DataSource
	for _, r := range rows {
		source := r.toModel()
		interval := time.Duration(source.PullIntervalMin) * time.Minute
		if interval <= 0 {
			interval = time.Hour
		}
		if source.LastRunAt == nil || now.Sub(*source.LastRunAt) >= interval {
			due = append(due, source)
		}
	}
	return due, nil
}

// runSource resolves an open task for source's project and triggers an
// import against it, holding the distributed run lock for the duration
// when a cache.Manager is configured.
func (s *Scheduler) runSource(ctx context.Context, db *sqlx.DB, source model.DataSource) {
	logEntry := log.WithField("source_id", source.ID).WithField("source_type", source.SourceType)

	if s.locks != nil {
		acquired, err := s.locks.AcquireRunLock(ctx, source.ID, string(model.DirectionImport), runLockTTL)
		if err != nil {
			logEntry.WithField("error", err.Error()).Error("acquire run lock")
			return
		}
		if !acquired {
			logEntry.Debug("run lock held by another instance, skipping")
			return
		}
		defer func() {
			if err := s.locks.ReleaseRunLock(context.Background(), source.ID, string(model.DirectionImport)); err != nil {
				logEntry.WithField("error", err.Error()).Error("release run lock")
			}
		}()
	}

	task, err := openTaskForProject(db, source.ProjectID)
	if err != nil {
		logEntry.WithField("error", err.Error()).Warn("no open task to import into, skipping")
		return
	}

	if _, err := s.engine.TriggerImportSystem(ctx, source.ID, task.ID); err != nil {
		logEntry.WithField("task_id", task.ID).WithField("error", err.Error()).Error("scheduled import run failed")
		return
	}
	logEntry.WithField("task_id", task.ID).Info("scheduled import run completed")
}

// openTaskForProject picks the most recently created pending or in_progress task in
// project to receive a scheduled pull; auto_pull has no concept of "current
// period" of its own, so it defers to whatever task a human already opened.
func openTaskForProject(db *sqlx.DB, projectID string) (*model.Task, error) {
	var task model.Task
	err := db.Get(&task, `SELECT * FROM tasks WHERE project_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`, projectID, model.TaskPending, model.TaskInProgress)
	if err != nil {
		return nil, fmt.Errorf("no pending/in_progress task for project %s: %w", projectID, err)
	}
	return &task, nil
}
