package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

type taskRow struct {
	PK           int64  `db:"pk"`
	ParamsHash   string `db:"params_hash"`
	InputSetHash string `db:"input_set_hash"`
	Status       string `db:"status"`
	Params       string `db:"params"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (r taskRow) toModel() (model.ReductionTask, error) {
	params := map[string]any{}
	if r.Params != "" {
		if err := json.Unmarshal([]byte(r.Params), &params); err != nil {
			return model.ReductionTask{}, catalogerr.New(catalogerr.ParseFailure, "task params", err)
		}
	}
	createdAt, err := parseTimestamp(r.CreatedAt)
	if err != nil {
		return model.ReductionTask{}, err
	}
	updatedAt, err := parseTimestamp(r.UpdatedAt)
	if err != nil {
		return model.ReductionTask{}, err
	}
	return model.ReductionTask{
		PK: r.PK, ParamsHash: r.ParamsHash, InputSetHash: r.InputSetHash,
		Status: model.TaskStatus(r.Status), Params: params, CreatedAt: createdAt, UpdatedAt: updatedAt,
	}, nil
}

// FindOrCreateTask looks up a ReductionTask by its (params_hash,
// input_set_hash) key, creating a new QUEUED task when absent. This
// is the declarative-idempotence contract from data-model invariant 4:
// re-declaring the same (params, inputs) pair never creates a second
// task.
func (s *Store) FindOrCreateTask(ctx context.Context, paramsHash, inputSetHash string, params map[string]any, inputPKs []int64) (model.ReductionTask, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row,
		rebind(s.kind, `SELECT pk, params_hash, input_set_hash, status, params, created_at, updated_at
			FROM reduction_tasks WHERE params_hash = ? AND input_set_hash = ?`), paramsHash, inputSetHash)
	if err == nil {
		return row.toModel()
	}
	if err != sql.ErrNoRows {
		return model.ReductionTask{}, fmt.Errorf("find task: %w", err)
	}

	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return model.ReductionTask{}, err
	}
	now := nowUTC()
	var pk int64
	err = s.withWriteConflictRetry(func() error {
		res, execErr := s.db.ExecContext(ctx,
			rebind(s.kind, `INSERT INTO reduction_tasks(params_hash, input_set_hash, status, params, created_at, updated_at)
				VALUES(?, ?, ?, ?, ?, ?)`),
			paramsHash, inputSetHash, model.TaskQueued, string(encoded), now.Format(timestampLayout), now.Format(timestampLayout))
		if execErr != nil {
			return execErr
		}
		pk, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return model.ReductionTask{}, s.translateIntegrityError("FindOrCreateTask", err)
	}

	for _, inputPK := range inputPKs {
		if _, execErr := s.db.ExecContext(ctx,
			rebind(s.kind, `INSERT INTO task_inputs(task_fk, data_prod_fk) VALUES(?, ?)`), pk, inputPK); execErr != nil {
			return model.ReductionTask{}, fmt.Errorf("link task input: %w", execErr)
		}
	}

	return model.ReductionTask{
		PK: pk, ParamsHash: paramsHash, InputSetHash: inputSetHash,
		Status: model.TaskQueued, Params: params, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// UpdateTaskStatus transitions a task's status, per the QUEUED ->
// RUNNING -> {DONE, ERROR} status machine.
func (s *Store) UpdateTaskStatus(ctx context.Context, pk int64, status model.TaskStatus) error {
	return s.withWriteConflictRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			rebind(s.kind, `UPDATE reduction_tasks SET status = ?, updated_at = ? WHERE pk = ?`),
			status, nowUTC().Format(timestampLayout), pk)
		return err
	})
}

// RecordTaskOutput links a produced DataProduct as an output of a
// ReductionTask.
func (s *Store) RecordTaskOutput(ctx context.Context, taskPK, dataProdFK int64) error {
	_, err := s.db.ExecContext(ctx,
		rebind(s.kind, `INSERT INTO task_outputs(task_fk, data_prod_fk) VALUES(?, ?)`), taskPK, dataProdFK)
	if err != nil {
		return fmt.Errorf("record task output: %w", err)
	}
	return nil
}
