package mocks

import (
	"context"

	"driveprov/internal/model"
	"driveprov/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Record(ctx context.Context, run *model.ProvisionRun) (*model.ProvisionRun, error) {
	args := m.Called(ctx, run)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProvisionRun), args.Error(1)
}

func (m *MockRunRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.ProvisionRun], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.ProvisionRun]), args.Error(1)
}
