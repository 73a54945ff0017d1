package repository

import (
	"context"

	"driveprov/internal/model"
)

// RunRepository stores the provisioning ledger. It is write-mostly and never
// consulted when deciding whether to create a resource.
type RunRepository interface {
	// Record inserts a finished run and returns the stored row.
	Record(ctx context.Context, run *model.ProvisionRun) (*model.ProvisionRun, error)

	// List returns runs newest first, with the total row count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.ProvisionRun], error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
