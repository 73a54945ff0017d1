package postgres

import (
	"context"
	"database/sql"

	"driveprov/internal/model"
	"driveprov/internal/repository"
)

// RunPostgres is a PostgreSQL implementation of repository.RunRepository.
type RunPostgres struct {
	db *sql.DB
}

// NewRunPostgres creates a new RunPostgres repository.
func NewRunPostgres(db *sql.DB) *RunPostgres {
	return &RunPostgres{db: db}
}

var _ repository.RunRepository = (*RunPostgres)(nil)

const runColumns = `id, status, folder_id, template_id, template_url, error, started_at, finished_at`

// Record inserts a run row and returns the stored record.
func (r *RunPostgres) Record(ctx context.Context, run *model.ProvisionRun) (*model.ProvisionRun, error) {
	const q = `
		INSERT INTO provision_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + runColumns
	row := r.db.QueryRowContext(ctx, q,
		run.ID,
		run.Status,
		run.ContainerID,
		run.DocumentID,
		run.DocumentURL,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
	)
	out, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns runs using LIMIT/OFFSET pagination and a total count.
func (r *RunPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.ProvisionRun], error) {
	const qCount = `SELECT COUNT(*) FROM provision_runs`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + runColumns + `
		FROM provision_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.ProvisionRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.ProvisionRun]{
		Items: items,
		Total: total,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*model.ProvisionRun, error) {
	var run model.ProvisionRun
	if err := s.Scan(
		&run.ID,
		&run.Status,
		&run.ContainerID,
		&run.DocumentID,
		&run.DocumentURL,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return nil, err
	}
	return &run, nil
}
