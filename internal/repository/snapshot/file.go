package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oshokin/alarm-clock/internal/config"
	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
)

// Repository defines persistence operations for the pending alarm set.
type Repository interface {
	Load(ctx context.Context) ([]*domain.Alarm, error)
	Save(ctx context.Context, alarms []*domain.Alarm) error
}

// Record is the on-disk form of one alarm.
type Record struct {
	// Datetime is the fire time in "YYYY-MM-DD HH:MM" form.
	Datetime string `json:"datetime"`
	// Site is the site identifier the alarm rings on.
	Site string `json:"site"`
	// Missed marks alarms whose ringing timed out unacknowledged.
	Missed bool `json:"missed"`
	// ID is the alarm's unique identifier.
	ID string `json:"id"`
	// Kind is the alarm kind ("normal" or "alert").
	Kind string `json:"kind"`
}

// FileRepository persists the alarm set to a JSON file on disk.
// Writes go through a temporary file followed by a rename, so a crash
// mid-write never leaves a truncated snapshot behind.
type FileRepository struct {
	// path is the filesystem location of the JSON snapshot file.
	path string
	// mu protects concurrent access to the snapshot file.
	mu sync.Mutex
}

// ErrNotFound is returned when the snapshot file does not exist yet.
var ErrNotFound = errors.New("snapshot not found")

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the alarm set from disk. Records that cannot be parsed are
// dropped with a warning rather than failing the whole snapshot.
func (r *FileRepository) Load(ctx context.Context) ([]*domain.Alarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	var records []Record
	if err = json.Unmarshal(contents, &records); err != nil {
		return nil, fmt.Errorf("decode snapshot file: %w", err)
	}

	alarms := make([]*domain.Alarm, 0, len(records))

	for _, record := range records {
		parsed, err := fromRecord(record)
		if err != nil {
			logger.WarnKV(ctx, "Dropping unreadable snapshot record", "id", record.ID, "error", err)

			continue
		}

		alarms = append(alarms, parsed)
	}

	return alarms, nil
}

// Save writes the full alarm set to disk, replacing the previous snapshot
// atomically from the reader's perspective.
func (r *FileRepository) Save(_ context.Context, alarms []*domain.Alarm) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]Record, 0, len(alarms))
	for _, a := range alarms {
		records = append(records, toRecord(a))
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	temporary := r.path + ".tmp"
	if err = os.WriteFile(temporary, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}

	if err = os.Rename(temporary, r.path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	return nil
}

// toRecord converts a domain alarm into its on-disk form.
func toRecord(a *domain.Alarm) Record {
	return Record{
		Datetime: a.Datetime.Format(domain.TimeLayout),
		Site:     a.SiteID,
		Missed:   a.Missed,
		ID:       a.ID,
		Kind:     string(a.Kind),
	}
}

// fromRecord converts an on-disk record back into a domain alarm.
// Unknown kinds fall back to normal; snapshots written by older builds
// carry no kind field at all.
func fromRecord(record Record) (*domain.Alarm, error) {
	if record.ID == "" {
		return nil, errors.New("record has no id")
	}

	datetime, err := time.ParseInLocation(domain.TimeLayout, record.Datetime, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse datetime: %w", err)
	}

	kind, _ := domain.ParseKind(record.Kind)

	return &domain.Alarm{
		ID:       record.ID,
		Datetime: datetime,
		SiteID:   record.Site,
		Kind:     kind,
		Missed:   record.Missed,
	}, nil
}
