package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType is the kind of an activity event.
type EventType string

const (
	EventPhotosUpload      EventType = "photos_upload"
	EventPhotosDelete      EventType = "photos_delete"
	EventShippingReconcile EventType = "shipping_reconcile"
	EventVariantsPost      EventType = "variants_post"
)

// timeLayout matches SQLite's CURRENT_TIMESTAMP so stored and generated
// values compare as strings.
const timeLayout = "2006-01-02 15:04:05"

// Activity is one finished batch.
type Activity struct {
	Type      EventType
	SessionID string
	Success   bool
	Items     int
	Detail    string
}

// Logger persists activity events.
type Logger struct {
	db  *sql.DB
	log logrus.FieldLogger
	now func() time.Time
}

func New(db *sql.DB) *Logger {
	return &Logger{
		db:  db,
		log: logrus.WithField("component", "activity"),
		now: time.Now,
	}
}

// LogEvent inserts an activity event. Failures are logged and returned; the
// caller's batch outcome never depends on them.
func (l *Logger) LogEvent(ctx context.Context, a Activity) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO activity_events (event_type, session_id, success, items, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(a.Type), a.SessionID, a.Success, a.Items, a.Detail, l.now().UTC().Format(timeLayout))
	if err != nil {
		l.log.WithError(err).WithField("event_type", a.Type).Warn("Activity: failed to log event")
		return fmt.Errorf("log activity %s: %w", a.Type, err)
	}
	return nil
}

// Counts is the activity of one window.
type Counts struct {
	Uploads           int64
	Deletes           int64
	ShippingSyncs     int64
	VariantPosts      int64
	Failures          int64
	PhotosTransferred int64
}

// Stats holds aggregated activity over the last 7 and 30 days.
type Stats struct {
	Last7Days  Counts
	Last30Days Counts
}

// GetStats aggregates activity for the dashboard.
func (l *Logger) GetStats(ctx context.Context) (*Stats, error) {
	now := l.now().UTC()

	week, err := l.countSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, err
	}
	month, err := l.countSince(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		return nil, err
	}
	return &Stats{Last7Days: week, Last30Days: month}, nil
}

func (l *Logger) countSince(ctx context.Context, since time.Time) (Counts, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT event_type, success, COUNT(*), COALESCE(SUM(items), 0)
		 FROM activity_events WHERE created_at >= ?
		 GROUP BY event_type, success`,
		since.Format(timeLayout))
	if err != nil {
		return Counts{}, fmt.Errorf("count activity: %w", err)
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var (
			typ     string
			success bool
			n       int64
			items   int64
		)
		if err := rows.Scan(&typ, &success, &n, &items); err != nil {
			return Counts{}, fmt.Errorf("scan activity: %w", err)
		}
		if !success {
			c.Failures += n
			continue
		}
		switch EventType(typ) {
		case EventPhotosUpload:
			c.Uploads += n
			c.PhotosTransferred += items
		case EventPhotosDelete:
			c.Deletes += n
		case EventShippingReconcile:
			c.ShippingSyncs += n
		case EventVariantsPost:
			c.VariantPosts += n
		}
	}
	return c, rows.Err()
}

// PruneBefore deletes events older than cutoff and returns how many went.
func (l *Logger) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM activity_events WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}
	return res.RowsAffected()
}
