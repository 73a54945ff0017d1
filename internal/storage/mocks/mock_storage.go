package mocks

import (
	"context"

	"driveprov/internal/model"
	"driveprov/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

var _ storage.Store = (*MockStore)(nil)

func (m *MockStore) FindContainers(ctx context.Context, name string) ([]model.Container, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Container), args.Error(1)
}

func (m *MockStore) CreateContainer(ctx context.Context, name string) (model.Container, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(model.Container), args.Error(1)
}

func (m *MockStore) FindDocuments(ctx context.Context, c model.Container, name string) ([]model.Document, error) {
	args := m.Called(ctx, c, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockStore) CreateDocument(ctx context.Context, name string) (model.Document, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(model.Document), args.Error(1)
}

func (m *MockStore) Root(ctx context.Context) (model.Container, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.Container), args.Error(1)
}

func (m *MockStore) AddToContainer(ctx context.Context, d model.Document, c model.Container) error {
	args := m.Called(ctx, d, c)
	return args.Error(0)
}

func (m *MockStore) RemoveFromContainer(ctx context.Context, d model.Document, c model.Container) error {
	args := m.Called(ctx, d, c)
	return args.Error(0)
}
