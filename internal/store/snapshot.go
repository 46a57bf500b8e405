package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// snapshotRecord is the on-disk shape of a task. Timestamps are serialized
// as RFC 3339 strings so the snapshot stays readable and portable.
type snapshotRecord struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Description        string        `json:"description,omitempty"`
	Priority           task.Priority `json:"priority"`
	Status             task.Status   `json:"status"`
	Dependencies       []string      `json:"dependencies,omitempty"`
	BlockedBy          []string      `json:"blocked_by,omitempty"`
	AcceptanceCriteria []string      `json:"acceptance_criteria,omitempty"`
	RelatedFiles       []string      `json:"related_files,omitempty"`
	PlanRefs           []string      `json:"plan_refs,omitempty"`
	EstimatedHours     float64       `json:"estimated_hours,omitempty"`
	FromPlanningTeam   bool          `json:"from_planning_team"`
	Kind               task.Kind     `json:"kind,omitempty"`
	Metadata           task.Metadata `json:"metadata,omitempty"`
	CreatedAt          string        `json:"created_at"`
	UpdatedAt          string        `json:"updated_at"`
}

// Snapshotter persists and restores the task set.
type Snapshotter interface {
	Save(tasks []*task.Task) error
	Load() ([]*task.Task, error)
}

// FileSnapshotter stores the task set as a single JSON array in one file.
type FileSnapshotter struct {
	path   string
	logger *zap.Logger
}

// NewFileSnapshotter creates a snapshotter writing to path.
func NewFileSnapshotter(path string, logger *zap.Logger) (*FileSnapshotter, error) {
	if path == "" {
		return nil, errors.New("snapshot path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSnapshotter{path: path, logger: logger}, nil
}

// Save writes the task set atomically (temp file plus rename).
func (f *FileSnapshotter) Save(tasks []*task.Task) error {
	records := make([]snapshotRecord, 0, len(tasks))
	for _, t := range tasks {
		records = append(records, toRecord(t))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot back, keeping only active tasks. Terminal tasks
// are expected to have been archived elsewhere and are dropped silently.
// A missing, corrupt, or non-array file means an empty start, never an
// error: the snapshot is best-effort by contract.
func (f *FileSnapshotter) Load() ([]*task.Task, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		f.logger.Warn("snapshot unreadable, starting fresh",
			zap.String("path", f.path), zap.Error(err))
		return nil, nil
	}

	var records []snapshotRecord
	if err := json.Unmarshal(data, &records); err != nil {
		f.logger.Warn("snapshot corrupt, starting fresh",
			zap.String("path", f.path), zap.Error(err))
		return nil, nil
	}

	now := time.Now()
	tasks := make([]*task.Task, 0, len(records))
	for _, r := range records {
		t := fromRecord(r)
		if t.Status.Terminal() {
			continue
		}
		t.CreatedAt = f.parseTime(r.ID, "created_at", r.CreatedAt, now)
		t.UpdatedAt = f.parseTime(r.ID, "updated_at", r.UpdatedAt, now)
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// parseTime converts a persisted timestamp string. Unparseable or missing
// values fall back to now with a warning, never an error.
func (f *FileSnapshotter) parseTime(taskID, field, value string, now time.Time) time.Time {
	if value == "" {
		f.logger.Warn("snapshot record missing timestamp, using now",
			zap.String("task_id", taskID), zap.String("field", field))
		return now
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		f.logger.Warn("snapshot record has unparseable timestamp, using now",
			zap.String("task_id", taskID),
			zap.String("field", field),
			zap.String("value", value))
		return now
	}
	return ts
}

func toRecord(t *task.Task) snapshotRecord {
	return snapshotRecord{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Priority:           t.Priority,
		Status:             t.Status,
		Dependencies:       t.Dependencies,
		BlockedBy:          t.BlockedBy,
		AcceptanceCriteria: t.AcceptanceCriteria,
		RelatedFiles:       t.RelatedFiles,
		PlanRefs:           t.PlanRefs,
		EstimatedHours:     t.EstimatedHours,
		FromPlanningTeam:   t.FromPlanningTeam,
		Kind:               t.Kind,
		Metadata:           t.Metadata,
		CreatedAt:          t.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:          t.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func fromRecord(r snapshotRecord) *task.Task {
	return &task.Task{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		Priority:           r.Priority,
		Status:             r.Status,
		Dependencies:       r.Dependencies,
		BlockedBy:          r.BlockedBy,
		AcceptanceCriteria: r.AcceptanceCriteria,
		RelatedFiles:       r.RelatedFiles,
		PlanRefs:           r.PlanRefs,
		EstimatedHours:     r.EstimatedHours,
		FromPlanningTeam:   r.FromPlanningTeam,
		Kind:               r.Kind,
		Metadata:           r.Metadata,
	}
}
