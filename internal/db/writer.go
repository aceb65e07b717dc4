package db

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/metrics"
	"github.com/tcsintel/intelgraph/internal/models"
)

const upsertSession = `
INSERT INTO research_sessions (
    id, status, research_focus, competitors, max_age_days, min_sources,
    error_messages, data_sources_count, report, created_at, completed_at, archived_at
) VALUES (
    :id, :status, :research_focus, :competitors, :max_age_days, :min_sources,
    :error_messages, :data_sources_count, :report, :created_at, :completed_at, :archived_at
)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    error_messages = EXCLUDED.error_messages,
    data_sources_count = EXCLUDED.data_sources_count,
    report = EXCLUDED.report,
    completed_at = EXCLUDED.completed_at,
    archived_at = EXCLUDED.archived_at`

// sessionRow is the archive row shape.
type sessionRow struct {
	ID               string     `db:"id"`
	Status           string     `db:"status"`
	ResearchFocus    string     `db:"research_focus"`
	Competitors      string     `db:"competitors"`
	MaxAgeDays       int        `db:"max_age_days"`
	MinSources       int        `db:"min_sources"`
	ErrorMessages    string     `db:"error_messages"`
	DataSourcesCount int        `db:"data_sources_count"`
	Report           *string    `db:"report"`
	CreatedAt        time.Time  `db:"created_at"`
	CompletedAt      *time.Time `db:"completed_at"`
	ArchivedAt       time.Time  `db:"archived_at"`
}

// Writer drains a bounded queue of terminal sessions into the archive
// database on a single goroutine. Enqueue never blocks; when the queue is
// full the record is dropped and counted.
type Writer struct {
	client  *Client
	queue   chan *models.Session
	logger  *zap.Logger
	wg      sync.WaitGroup
	stopped sync.Once
}

// NewWriter creates an archive writer with the given queue size.
func NewWriter(client *Client, queueSize int, logger *zap.Logger) *Writer {
	if queueSize < 1 {
		queueSize = 256
	}
	return &Writer{
		client: client,
		queue:  make(chan *models.Session, queueSize),
		logger: logger,
	}
}

// Start launches the writer goroutine.
func (w *Writer) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for sess := range w.queue {
			w.write(sess)
			metrics.ArchiveQueueDepth.Set(float64(len(w.queue)))
		}
	}()
}

// Stop closes the queue and waits for pending writes to drain.
func (w *Writer) Stop() {
	w.stopped.Do(func() { close(w.queue) })
	w.wg.Wait()
}

// Enqueue hands a session to the writer. Returns false when the queue is
// full and the record was dropped.
func (w *Writer) Enqueue(sess *models.Session) bool {
	select {
	case w.queue <- sess:
		metrics.ArchiveQueueDepth.Set(float64(len(w.queue)))
		return true
	default:
		metrics.ArchiveDrops.Inc()
		return false
	}
}

func (w *Writer) write(sess *models.Session) {
	row, err := rowFromSession(sess)
	if err != nil {
		metrics.ArchiveWrites.WithLabelValues("error").Inc()
		w.logger.Error("Failed to encode session for archive",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := w.client.db.NamedExecContext(ctx, upsertSession, row); err != nil {
		metrics.ArchiveWrites.WithLabelValues("error").Inc()
		w.logger.Error("Failed to archive session",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		return
	}

	metrics.ArchiveWrites.WithLabelValues("ok").Inc()
	w.logger.Debug("Archived session", zap.String("session_id", sess.ID))
}

func rowFromSession(sess *models.Session) (*sessionRow, error) {
	competitors, err := json.Marshal(sess.Competitors)
	if err != nil {
		return nil, err
	}
	errMsgs, err := json.Marshal(sess.ErrorMessages)
	if err != nil {
		return nil, err
	}

	row := &sessionRow{
		ID:            sess.ID,
		Status:        string(sess.Status),
		ResearchFocus: sess.ResearchFocus,
		Competitors:   string(competitors),
		MaxAgeDays:    sess.MaxAgeDays,
		MinSources:    sess.MinSourcesPerCompetitor,
		ErrorMessages: string(errMsgs),
		CreatedAt:     sess.CreatedAt,
		CompletedAt:   sess.CompletedAt,
		ArchivedAt:    time.Now().UTC(),
	}
	if sess.Report != nil {
		data, err := json.Marshal(sess.Report)
		if err != nil {
			return nil, err
		}
		s := string(data)
		row.Report = &s
		row.DataSourcesCount = sess.Report.DataSourcesCount
	}
	return row, nil
}
