package workflow

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/muster-fabric/internal/store"
)

// Store persists workflow definitions and their run/step audit trail.
type Store interface {
	SaveDefinition(def Definition) error
	GetDefinition(name string) (Definition, bool, error)
	ListDefinitions() ([]Definition, error)
	SetEnabled(name string, enabled bool) error

	SaveRun(run Run) error
	UpdateRun(run Run) error
	GetRun(id string) (Run, bool, error)
	ListRunsForWorkflow(workflow string) ([]Run, error)
}

// SQLiteStore is the Store implementation backing production use,
// built on the shared store.DB.
type SQLiteStore struct {
	db *store.DB
}

// NewSQLiteStore wraps db as a workflow Store.
func NewSQLiteStore(db *store.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) SaveDefinition(def Definition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("workflow store: marshal definition %q: %w", def.Name, err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.db.WithWriteLock(func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO workflows (name, definition, enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET definition=excluded.definition, enabled=excluded.enabled, updated_at=excluded.updated_at
		`, def.Name, string(data), boolToInt(def.Enabled), now, now)
		return err
	})
}

func (s *SQLiteStore) GetDefinition(name string) (Definition, bool, error) {
	var data string
	var enabled int
	err := s.db.Read(func(db *sql.DB) error {
		return db.QueryRow(`SELECT definition, enabled FROM workflows WHERE name = ?`, name).Scan(&data, &enabled)
	})
	if err == sql.ErrNoRows {
		return Definition{}, false, nil
	}
	if err != nil {
		return Definition{}, false, fmt.Errorf("workflow store: get definition %q: %w", name, err)
	}
	var def Definition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return Definition{}, false, fmt.Errorf("workflow store: unmarshal definition %q: %w", name, err)
	}
	def.Enabled = enabled != 0
	return def, true, nil
}

func (s *SQLiteStore) ListDefinitions() ([]Definition, error) {
	var defs []Definition
	err := s.db.Read(func(db *sql.DB) error {
		rows, err := db.Query(`SELECT definition, enabled FROM workflows ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var data string
			var enabled int
			if err := rows.Scan(&data, &enabled); err != nil {
				return err
			}
			var def Definition
			if err := json.Unmarshal([]byte(data), &def); err != nil {
				return err
			}
			def.Enabled = enabled != 0
			defs = append(defs, def)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("workflow store: list definitions: %w", err)
	}
	return defs, nil
}

func (s *SQLiteStore) SetEnabled(name string, enabled bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.db.WithWriteLock(func(db *sql.DB) error {
		res, err := db.Exec(`UPDATE workflows SET enabled = ?, updated_at = ? WHERE name = ?`, boolToInt(enabled), now, name)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("workflow %q not found", name)
		}
		return nil
	})
}

func (s *SQLiteStore) SaveRun(run Run) error {
	return s.writeRun(run, true)
}

func (s *SQLiteStore) UpdateRun(run Run) error {
	return s.writeRun(run, false)
}

func (s *SQLiteStore) writeRun(run Run, insert bool) error {
	payload, err := json.Marshal(run.Payload)
	if err != nil {
		return fmt.Errorf("workflow store: marshal payload for run %q: %w", run.ID, err)
	}

	return s.db.WithWriteLock(func(db *sql.DB) error {
		var finishedAt any
		if run.FinishedAt != nil {
			finishedAt = run.FinishedAt.UTC().Format(time.RFC3339Nano)
		}

		if insert {
			_, err := db.Exec(`
				INSERT INTO workflow_runs (id, workflow, trigger_event, status, payload, started_at, finished_at, error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, run.ID, run.Workflow, run.TriggerEvent, string(run.Status), string(payload),
				run.StartedAt.UTC().Format(time.RFC3339Nano), finishedAt, run.Error)
			if err != nil {
				return err
			}
		} else {
			_, err := db.Exec(`
				UPDATE workflow_runs SET status = ?, finished_at = ?, error = ? WHERE id = ?
			`, string(run.Status), finishedAt, run.Error, run.ID)
			if err != nil {
				return err
			}
		}

		for _, step := range run.Steps {
			if err := writeStep(db, run.ID, step); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeStep(db *sql.DB, runID string, step StepRecord) error {
	args, err := json.Marshal(step.Arguments)
	if err != nil {
		return err
	}
	result, err := json.Marshal(step.Result)
	if err != nil {
		return err
	}
	var finishedAt any
	if step.FinishedAt != nil {
		finishedAt = step.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = db.Exec(`
		INSERT INTO workflow_steps (run_id, step_index, server, tool, arguments, result, status, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step_index) DO UPDATE SET
			result=excluded.result, status=excluded.status, finished_at=excluded.finished_at, error=excluded.error
	`, runID, step.Index, step.Server, step.Tool, string(args), string(result), string(step.Status),
		step.StartedAt.UTC().Format(time.RFC3339Nano), finishedAt, step.Error)
	return err
}

func (s *SQLiteStore) GetRun(id string) (Run, bool, error) {
	var run Run
	var payload string
	var startedAt string
	var finishedAt sql.NullString
	err := s.db.Read(func(db *sql.DB) error {
		err := db.QueryRow(`
			SELECT id, workflow, trigger_event, status, payload, started_at, finished_at, error
			FROM workflow_runs WHERE id = ?
		`, id).Scan(&run.ID, &run.Workflow, &run.TriggerEvent, &run.Status, &payload, &startedAt, &finishedAt, &run.Error)
		if err != nil {
			return err
		}
		return scanSteps(db, &run)
	})
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("workflow store: get run %q: %w", id, err)
	}
	_ = json.Unmarshal([]byte(payload), &run.Payload)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
		run.FinishedAt = &t
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRunsForWorkflow(workflow string) ([]Run, error) {
	var runs []Run
	err := s.db.Read(func(db *sql.DB) error {
		rows, err := db.Query(`
			SELECT id, workflow, trigger_event, status, payload, started_at, finished_at, error
			FROM workflow_runs WHERE workflow = ? ORDER BY started_at
		`, workflow)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var run Run
			var payload, startedAt string
			var finishedAt sql.NullString
			if err := rows.Scan(&run.ID, &run.Workflow, &run.TriggerEvent, &run.Status, &payload, &startedAt, &finishedAt, &run.Error); err != nil {
				return err
			}
			_ = json.Unmarshal([]byte(payload), &run.Payload)
			run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
			if finishedAt.Valid {
				t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
				run.FinishedAt = &t
			}
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("workflow store: list runs for %q: %w", workflow, err)
	}
	for i := range runs {
		if err := s.db.Read(func(db *sql.DB) error {
			return scanSteps(db, &runs[i])
		}); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func scanSteps(db *sql.DB, run *Run) error {
	rows, err := db.Query(`
		SELECT step_index, server, tool, arguments, result, status, started_at, finished_at, error
		FROM workflow_steps WHERE run_id = ? ORDER BY step_index
	`, run.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	run.Steps = nil
	for rows.Next() {
		var step StepRecord
		var args, result, startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&step.Index, &step.Server, &step.Tool, &args, &result, &step.Status, &startedAt, &finishedAt, &step.Error); err != nil {
			return err
		}
		_ = json.Unmarshal([]byte(args), &step.Arguments)
		_ = json.Unmarshal([]byte(result), &step.Result)
		step.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
			step.FinishedAt = &t
		}
		run.Steps = append(run.Steps, step)
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
