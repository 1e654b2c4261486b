package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/EngineStateManager/extension/internal/config"
	"github.com/EngineStateManager/extension/internal/events"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

const (
	// TransitionMeasurement holds one point per transition event.
	TransitionMeasurement = "engine_transition"
	// TrackerMeasurement holds one point per tracker heartbeat.
	TrackerMeasurement = "aircraft_tracker"

	pingTimeout = 2 * time.Second
)

// Manager handles InfluxDB connections and writes. When the server cannot be
// reached points go to a gzip line-protocol backup file instead.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string
	Session      string

	mu         sync.Mutex
	backupFile *os.File
	closed     bool
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath, session string) *Manager {
	return &Manager{
		Logger:     log,
		BackupPath: backupPath,
		Session:    session,
	}
}

// URL returns the server address for cfg.
func URL(cfg config.InfluxConfig) string {
	return fmt.Sprintf("%s://%s:%s", cfg.Protocol, cfg.Host, cfg.Port)
}

// Connect establishes a connection to InfluxDB, falling back to the backup
// file when the server does not answer.
func (m *Manager) Connect(cfg config.InfluxConfig) error {
	if !cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		URL(cfg),
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	running, err := m.Client.Ping(ctx)

	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %w", err)
			}
			m.backupFile = file
			m.BackupWriter = gzip.NewWriter(file)
		}
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
		return nil
	}

	m.IsValid = true
	if err := m.setupOrganizationAndBucket(cfg); err != nil {
		return err
	}
	m.createWriter(cfg)
	m.Logger.Info().Str("bucket", cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) setupOrganizationAndBucket(cfg config.InfluxConfig) error {
	ctx := context.Background()

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", cfg.Org).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, cfg.Org)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 30, // 30 days
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

func (m *Manager) createWriter(cfg config.InfluxConfig) {
	m.Writer = m.Client.WriteAPI(cfg.Org, cfg.Bucket)

	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
}

// WritePoint writes a point to InfluxDB or the backup file. The write API
// batches in the background, so this does not block on the network.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("influx manager closed")
	}
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := strings.TrimSuffix(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n")
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Record writes e as an engine_transition point.
func (m *Manager) Record(e events.Event) {
	if err := m.WritePoint(TransitionPoint(m.Session, e, time.Now())); err != nil {
		m.Logger.Debug().Err(err).Str("kind", string(e.Kind)).Msg("Transition point not written")
	}
}

// WriteSample writes an aircraft_tracker point for one heartbeat.
func (m *Manager) WriteSample(now int64, tracked, enforced int) {
	point := influxdb2_write.NewPointWithMeasurement(TrackerMeasurement).
		AddTag("session", m.Session).
		AddField("game_time", now).
		AddField("tracked", tracked).
		AddField("enforced", enforced).
		SetTime(time.Now())
	if err := m.WritePoint(point); err != nil {
		m.Logger.Debug().Err(err).Msg("Tracker sample not written")
	}
}

// TransitionPoint converts e into a point. Scalar event fields become point
// fields; anything else is written as its string form.
func TransitionPoint(session string, e events.Event, at time.Time) *influxdb2_write.Point {
	point := influxdb2_write.NewPointWithMeasurement(TransitionMeasurement).
		AddTag("session", session).
		AddTag("kind", string(e.Kind)).
		AddTag("vehicle", strconv.FormatInt(int64(e.Vehicle), 10)).
		AddField("game_time", e.At).
		SetTime(at)
	if e.Reason != "" {
		point.AddField("reason", e.Reason)
	}
	for k, v := range e.Fields {
		switch v.(type) {
		case bool, string, int, int32, int64, uint, uint32, uint64, float32, float64:
			point.AddField(k, v)
		default:
			point.AddField(k, fmt.Sprint(v))
		}
	}
	return point
}

// Close flushes pending writes and releases the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		if err := m.BackupWriter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.backupFile != nil {
		if err := m.backupFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
