package store

import (
	iface "CourtVision/interface"
	"CourtVision/logger"
	"CourtVision/session"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const flushEvery = 256

// Store persists per-frame summaries of analysis runs in SQLite. It is a
// session.Consumer.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	runID   string
	pending []row
}

type row struct {
	index       int64
	state       string
	confidence  float64
	actions     int
	hasBall     bool
	players     int
	courtRegion int
}

type Run struct {
	ID         string
	Video      string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Frames     int64
}

type FrameRow struct {
	FrameIndex  int64
	GameState   iface.GameState
	Confidence  float64
	ActionCount int
	HasBall     bool
	PlayerCount int
	CourtCount  int
}

// Span is a run of consecutive frames sharing one game state.
type Span struct {
	State          iface.GameState
	StartFrame     int64
	EndFrame       int64
	MeanConfidence float64
}

func (s Span) Frames() int64 {
	return s.EndFrame - s.StartFrame + 1
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	s := &Store{db: db, log: logger.Named("store")}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// MigrateUp runs all pending migrations up to the latest version.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns 0, false, nil before any migration was applied.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// newMigrate is not closed by callers: closing it closes the shared *sql.DB.
func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{log: s.log}
	return m, nil
}

type migrateLogger struct {
	log *zap.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Sugar().Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Start(run session.RunInfo) error {
	_, err := s.db.Exec(`INSERT INTO runs (id, video, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Video.Path, run.Started.UTC())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	s.runID = run.ID
	s.pending = s.pending[:0]
	return nil
}

func (s *Store) Consume(_ iface.Frame, res iface.FrameResult) error {
	s.pending = append(s.pending, row{
		index:       res.Index,
		state:       res.GameState.State.String(),
		confidence:  float64(res.GameState.Confidence),
		actions:     len(res.Actions),
		hasBall:     res.Ball != nil,
		players:     len(res.Players),
		courtRegion: len(res.Court),
	})
	if len(s.pending) >= flushEvery {
		return s.flush()
	}
	return nil
}

func (s *Store) Finish(run session.RunInfo, frames int64) error {
	if err := s.flush(); err != nil {
		return err
	}
	_, err := s.db.Exec(`UPDATE runs SET finished_at = ?, frames = ? WHERE id = ?`,
		time.Now().UTC(), frames, run.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	s.log.Info("run stored", zap.String("run", run.ID), zap.Int64("frames", frames))
	return nil
}

func (s *Store) flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO frame_results
		(run_id, frame_index, game_state, confidence, action_count, has_ball, player_count, court_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range s.pending {
		if _, err := stmt.Exec(s.runID, r.index, r.state, r.confidence, r.actions, r.hasBall, r.players, r.courtRegion); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert frame %d: %w", r.index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, video, started_at, finished_at, frames FROM runs ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Video, &r.StartedAt, &r.FinishedAt, &r.Frames); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) FrameResults(runID string) ([]FrameRow, error) {
	rows, err := s.db.Query(`SELECT frame_index, game_state, confidence, action_count, has_ball, player_count, court_count
		FROM frame_results WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FrameRow
	for rows.Next() {
		var r FrameRow
		var state string
		if err := rows.Scan(&r.FrameIndex, &state, &r.Confidence, &r.ActionCount, &r.HasBall, &r.PlayerCount, &r.CourtCount); err != nil {
			return nil, err
		}
		if r.GameState, err = iface.ParseGameState(state); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GameStateSpans collapses a run's frames into maximal spans of equal state.
func (s *Store) GameStateSpans(runID string) ([]Span, error) {
	frames, err := s.FrameResults(runID)
	if err != nil {
		return nil, err
	}
	var spans []Span
	var confs []float64
	closeSpan := func() {
		if n := len(spans); n > 0 {
			spans[n-1].MeanConfidence = stat.Mean(confs, nil)
		}
	}
	for _, f := range frames {
		if n := len(spans); n > 0 && spans[n-1].State == f.GameState && spans[n-1].EndFrame+1 == f.FrameIndex {
			spans[n-1].EndFrame = f.FrameIndex
			confs = append(confs, f.Confidence)
			continue
		}
		closeSpan()
		spans = append(spans, Span{State: f.GameState, StartFrame: f.FrameIndex, EndFrame: f.FrameIndex})
		confs = append(confs[:0], f.Confidence)
	}
	closeSpan()
	return spans, nil
}
