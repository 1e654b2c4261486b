// Package journal persists transition events for offline diagnosis. Record is
// called from the frame loop and only enqueues; a writer goroutine batches
// inserts so the frame never waits on the database.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EngineStateManager/extension/internal/config"
	"github.com/EngineStateManager/extension/internal/database"
	"github.com/EngineStateManager/extension/internal/events"
	"github.com/EngineStateManager/extension/internal/logging"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// FlushInterval is how often queued events are written.
	FlushInterval = 500 * time.Millisecond
	queueSize     = 4096
	maxBatch      = 500
)

// Transition is one journaled event.
type Transition struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	SessionID string         `gorm:"size:36;index" json:"sessionId"`
	Kind      string         `gorm:"size:32;index" json:"kind"`
	Vehicle   int32          `gorm:"index" json:"vehicle"`
	GameTime  int64          `json:"gameTime"`
	Reason    string         `gorm:"size:64" json:"reason"`
	Fields    datatypes.JSON `json:"fields"`
}

func (Transition) TableName() string {
	return "engine_transitions"
}

// Journal is an events.Sink backed by gorm.
type Journal struct {
	db      *gorm.DB
	cfg     config.JournalConfig
	session string
	logger  logging.Logger

	queue    chan events.Event
	flushReq chan chan error
	stop     chan struct{}
	wg       sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
	dropped   atomic.Int64
}

// Open connects the journal's database, migrates the schema and starts the
// writer. A postgres journal that cannot connect falls back to in-memory
// SQLite.
func Open(cfg config.JournalConfig, dbCfg config.DBConfig, session string, logger logging.Logger) (*Journal, error) {
	db, err := connect(cfg, dbCfg, logger)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Transition{}); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}

	j := &Journal{
		db:       db,
		cfg:      cfg,
		session:  session,
		logger:   logger,
		queue:    make(chan events.Event, queueSize),
		flushReq: make(chan chan error),
		stop:     make(chan struct{}),
	}
	j.wg.Add(1)
	go j.run()

	logger.Info("Journal opened", "backend", db.Dialector.Name(), "session", session)
	return j, nil
}

func connect(cfg config.JournalConfig, dbCfg config.DBConfig, logger logging.Logger) (*gorm.DB, error) {
	if cfg.Type == "postgres" {
		db, err := database.OpenPostgres(dbCfg)
		if err == nil {
			return db, nil
		}
		logger.Error("Failed to connect to Postgres, falling back to SQLite", "error", err)
	}

	db, err := database.OpenSqlite("")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite journal: %w", err)
	}
	return db, nil
}

// Backend returns the gorm dialect in use.
func (j *Journal) Backend() string {
	return j.db.Dialector.Name()
}

// Record enqueues e. When the queue is full the event is dropped and counted.
func (j *Journal) Record(e events.Event) {
	select {
	case <-j.stop:
		return
	default:
	}
	select {
	case j.queue <- e:
	default:
		j.dropped.Add(1)
	}
}

// Dropped returns how many events were dropped on a full queue.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

// Flush writes everything queued so far and waits for the insert.
func (j *Journal) Flush() error {
	ack := make(chan error, 1)
	select {
	case j.flushReq <- ack:
		return <-ack
	case <-j.stop:
		return errors.New("journal closed")
	}
}

func (j *Journal) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	var dumpC <-chan time.Time
	if j.dumpEnabled() && j.cfg.DumpInterval > 0 {
		dumpTicker := time.NewTicker(j.cfg.DumpInterval)
		defer dumpTicker.Stop()
		dumpC = dumpTicker.C
	}

	batch := make([]Transition, 0, maxBatch)
	write := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := j.db.CreateInBatches(batch, maxBatch).Error
		if err != nil {
			j.logger.Error("Failed to write journal batch", "rows", len(batch), "error", err)
		}
		batch = batch[:0]
		return err
	}
	drain := func() {
		for {
			select {
			case e := <-j.queue:
				batch = append(batch, j.row(e))
			default:
				return
			}
		}
	}

	for {
		select {
		case e := <-j.queue:
			batch = append(batch, j.row(e))
			if len(batch) >= maxBatch {
				_ = write()
			}
		case <-ticker.C:
			_ = write()
		case ack := <-j.flushReq:
			drain()
			ack <- write()
		case <-dumpC:
			start := time.Now()
			if err := database.DumpToDisk(j.db, j.cfg.DumpPath); err != nil {
				j.logger.Error("Error dumping journal to disk", "error", err)
			} else {
				j.logger.Debug("Dumped journal to disk", "duration", time.Since(start))
			}
		case <-j.stop:
			drain()
			_ = write()
			return
		}
	}
}

func (j *Journal) row(e events.Event) Transition {
	var fields datatypes.JSON
	if len(e.Fields) > 0 {
		raw, err := json.Marshal(e.Fields)
		if err != nil {
			j.logger.Warn("Dropping unencodable event fields", "kind", string(e.Kind), "error", err)
		} else {
			fields = raw
		}
	}
	return Transition{
		SessionID: j.session,
		Kind:      string(e.Kind),
		Vehicle:   int32(e.Vehicle),
		GameTime:  e.At,
		Reason:    e.Reason,
		Fields:    fields,
	}
}

func (j *Journal) dumpEnabled() bool {
	return j.cfg.DumpPath != "" && database.IsSqlite(j.db)
}

// Recent returns up to limit of the newest rows, newest first.
func (j *Journal) Recent(limit int) ([]Transition, error) {
	var out []Transition
	err := j.db.Order("id desc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return out, nil
}

// CountByKind returns how many rows of kind this session wrote.
func (j *Journal) CountByKind(kind events.Kind) (int64, error) {
	var n int64
	err := j.db.Model(&Transition{}).
		Where("session_id = ? AND kind = ?", j.session, string(kind)).
		Count(&n).Error
	return n, err
}

// Close stops the writer after a final flush, dumps SQLite to disk when a dump
// path is set and closes the database. Safe to call repeatedly.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		close(j.stop)
		j.wg.Wait()

		var errs []error
		if j.dumpEnabled() {
			if err := database.DumpToDisk(j.db, j.cfg.DumpPath); err != nil {
				errs = append(errs, err)
			} else {
				j.logger.Info("Journal dumped to disk", "path", j.cfg.DumpPath)
			}
		}
		if n := j.dropped.Load(); n > 0 {
			j.logger.Warn("Journal dropped events on a full queue", "count", n)
		}
		if err := database.Close(j.db); err != nil {
			errs = append(errs, err)
		}
		j.closeErr = errors.Join(errs...)
	})
	return j.closeErr
}
