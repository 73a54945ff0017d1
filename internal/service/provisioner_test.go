package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"driveprov/internal/logging"
	"driveprov/internal/metrics"
	"driveprov/internal/model"
	repoMocks "driveprov/internal/repository/mocks"
	"driveprov/internal/storage"
	storeMocks "driveprov/internal/storage/mocks"
)

var (
	folder = model.Container{ID: "folder-1", Name: "Odoo RDD"}
	root   = model.Container{ID: "root", Name: "My Drive"}
	sheet  = model.Document{ID: "sheet-1", Name: "Odoo_RDD_Template"}
)

func TestProvisioner_EnsureContainer(t *testing.T) {
	ctx := context.Background()
	findErr := &storage.StoreError{Op: "find containers", Err: errors.New("network down")}
	createErr := &storage.StoreError{Op: "create container", Err: errors.New("quota exceeded")}

	tests := []struct {
		name       string
		input      string
		setupMocks func(mStore *storeMocks.MockStore)
		want       model.Container
		wantErr    error
		wantLog    string
	}{
		{
			name:  "existing container is reused without create",
			input: "Odoo RDD",
			setupMocks: func(mStore *storeMocks.MockStore) {
				mStore.On("FindContainers", mock.Anything, "Odoo RDD").Return([]model.Container{folder}, nil)
			},
			want:    folder,
			wantLog: "Folder found: Odoo RDD",
		},
		{
			name:  "duplicates resolve to first match",
			input: "Odoo RDD",
			setupMocks: func(mStore *storeMocks.MockStore) {
				mStore.On("FindContainers", mock.Anything, "Odoo RDD").
					Return([]model.Container{folder, {ID: "folder-2", Name: "Odoo RDD"}}, nil)
			},
			want:    folder,
			wantLog: "Folder found: Odoo RDD",
		},
		{
			name:  "absent container is created",
			input: "Odoo RDD",
			setupMocks: func(mStore *storeMocks.MockStore) {
				mStore.On("FindContainers", mock.Anything, "Odoo RDD").Return([]model.Container{}, nil)
				mStore.On("CreateContainer", mock.Anything, "Odoo RDD").Return(folder, nil)
			},
			want:    folder,
			wantLog: "Folder created: Odoo RDD",
		},
		{
			name:       "validation - empty name",
			input:      "",
			setupMocks: func(mStore *storeMocks.MockStore) {},
			wantErr:    ErrNameRequired,
		},
		{
			name:  "lookup error propagates unchanged",
			input: "Odoo RDD",
			setupMocks: func(mStore *storeMocks.MockStore) {
				mStore.On("FindContainers", mock.Anything, "Odoo RDD").Return(nil, findErr)
			},
			wantErr: findErr,
		},
		{
			name:  "create error propagates unchanged",
			input: "Odoo RDD",
			setupMocks: func(mStore *storeMocks.MockStore) {
				mStore.On("FindContainers", mock.Anything, "Odoo RDD").Return(nil, nil)
				mStore.On("CreateContainer", mock.Anything, "Odoo RDD").Return(model.Container{}, createErr)
			},
			wantErr: createErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStore)
			lines := logging.NewLines(nil)
			p := NewProvisioner(mStore, lines)

			tt.setupMocks(mStore)

			got, err := p.EnsureContainer(ctx, tt.input)

			if tt.wantErr != nil {
				assert.Same(t, tt.wantErr, err)
				assert.Equal(t, model.Container{}, got)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
				assert.Equal(t, []string{tt.wantLog}, lines.Lines())
			}
			mStore.AssertExpectations(t)
		})
	}
}

func TestProvisioner_EnsureContainer_FindBeforeCreate(t *testing.T) {
	mStore := new(storeMocks.MockStore)
	mStore.On("FindContainers", mock.Anything, "Odoo RDD").Return([]model.Container{folder}, nil)

	_, err := NewProvisioner(mStore, logging.NewLines(nil)).EnsureContainer(context.Background(), "Odoo RDD")

	require.NoError(t, err)
	mStore.AssertNotCalled(t, "CreateContainer", mock.Anything, mock.Anything)
}

func TestProvisioner_EnsureDocument(t *testing.T) {
	ctx := context.Background()
	addErr := &storage.StoreError{Op: "add to container", Err: errors.New("forbidden")}
	removeErr := &storage.StoreError{Op: "remove from container", Err: errors.New("timeout")}

	tests := []struct {
		name       string
		setupMocks func(mStore *storeMocks.MockStore)
		want       model.Document
		wantErr    error
	}{
		{
			name: "existing document is returned without moving",
			setupMocks: func(mStore *storeMocks.MockStore) {
				mStore.On("FindDocuments", mock.Anything, folder, sheet.Name).Return([]model.Document{sheet}, nil)
			},
			want: sheet,
		},
		{
			name: "absent document is created then added then removed from root",
			setupMocks: func(mStore *storeMocks.MockStore) {
				mock.InOrder(
					mStore.On("FindDocuments", mock.Anything, folder, sheet.Name).Return([]model.Document{}, nil),
					mStore.On("CreateDocument", mock.Anything, sheet.Name).Return(sheet, nil),
					mStore.On("AddToContainer", mock.Anything, sheet, folder).Return(nil),
					mStore.On("Root", mock.Anything).Return(root, nil),
					mStore.On("RemoveFromContainer", mock.Anything, sheet, root).Return(nil),
				)
			},
			want: sheet,
		},
		{
			name: "add failure stops before removal",
			setupMocks: func(mStore *storeMocks.MockStore) {
				mStore.On("FindDocuments", mock.Anything, folder, sheet.Name).Return(nil, nil)
				mStore.On("CreateDocument", mock.Anything, sheet.Name).Return(sheet, nil)
				mStore.On("AddToContainer", mock.Anything, sheet, folder).Return(addErr)
			},
			wantErr: addErr,
		},
		{
			name: "remove failure propagates unchanged",
			setupMocks: func(mStore *storeMocks.MockStore) {
				mStore.On("FindDocuments", mock.Anything, folder, sheet.Name).Return(nil, nil)
				mStore.On("CreateDocument", mock.Anything, sheet.Name).Return(sheet, nil)
				mStore.On("AddToContainer", mock.Anything, sheet, folder).Return(nil)
				mStore.On("Root", mock.Anything).Return(root, nil)
				mStore.On("RemoveFromContainer", mock.Anything, sheet, root).Return(removeErr)
			},
			wantErr: removeErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStore)
			p := NewProvisioner(mStore, logging.NewLines(nil))

			tt.setupMocks(mStore)

			got, err := p.EnsureDocument(ctx, folder, sheet.Name)

			if tt.wantErr != nil {
				assert.Same(t, tt.wantErr, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			mStore.AssertExpectations(t)
			if tt.wantErr == addErr {
				mStore.AssertNotCalled(t, "RemoveFromContainer", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestProvisioner_EnsureDocument_EmptyName(t *testing.T) {
	_, err := NewProvisioner(new(storeMocks.MockStore), logging.NewLines(nil)).EnsureDocument(context.Background(), folder, "")
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestProvisioner_EnsureDocument_ContainerIsRoot(t *testing.T) {
	mStore := new(storeMocks.MockStore)
	mStore.On("FindDocuments", mock.Anything, root, sheet.Name).Return(nil, nil)
	mStore.On("CreateDocument", mock.Anything, sheet.Name).Return(sheet, nil)
	mStore.On("AddToContainer", mock.Anything, sheet, root).Return(nil)
	mStore.On("Root", mock.Anything).Return(root, nil)

	got, err := NewProvisioner(mStore, logging.NewLines(nil)).EnsureDocument(context.Background(), root, sheet.Name)

	require.NoError(t, err)
	assert.Equal(t, sheet, got)
	mStore.AssertNotCalled(t, "RemoveFromContainer", mock.Anything, mock.Anything, mock.Anything)
}

func TestProvisioner_Run_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	p := NewProvisioner(store, logging.NewLines(nil))

	first, err := p.Run(ctx)
	require.NoError(t, err)
	second, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.ContainerCount())
	assert.Equal(t, 1, store.DocumentCount())
}

func TestProvisioner_Run_RelocatesNewDocument(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	res, err := NewProvisioner(store, logging.NewLines(nil)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{res.ContainerID}, store.ParentsOf(res.DocumentID))

	rootDocs, err := store.FindDocuments(ctx, model.Container{ID: storage.RootID}, DefaultNames().Document)
	require.NoError(t, err)
	assert.Empty(t, rootDocs)
}

// failingRemove is a Memory store whose RemoveFromContainer always fails.
type failingRemove struct {
	*storage.Memory
	err error
}

func (f failingRemove) RemoveFromContainer(context.Context, model.Document, model.Container) error {
	return f.err
}

func TestProvisioner_Run_PartialMoveKeepsDocumentReachable(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	removeErr := &storage.StoreError{Op: "remove from container", Err: errors.New("connection reset")}
	lines := logging.NewLines(nil)

	res, err := NewProvisioner(failingRemove{Memory: mem, err: removeErr}, lines).Run(ctx)

	assert.Same(t, removeErr, err)
	assert.Equal(t, model.ProvisionResult{}, res)

	containers, err := mem.FindContainers(ctx, DefaultNames().Container)
	require.NoError(t, err)
	require.Len(t, containers, 1)
	docs, err := mem.FindDocuments(ctx, containers[0], DefaultNames().Document)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	all := lines.Lines()
	assert.Equal(t, "Error: "+removeErr.Error(), all[len(all)-1])
}

// failingFind is a Memory store whose container lookup always fails.
type failingFind struct {
	*storage.Memory
	err error
}

func (f failingFind) FindContainers(context.Context, string) ([]model.Container, error) {
	return nil, f.err
}

func TestProvisioner_Run_LookupErrorPropagates(t *testing.T) {
	mem := storage.NewMemory()
	findErr := &storage.StoreError{Op: "find containers", Err: errors.New("unauthorized")}
	lines := logging.NewLines(nil)

	res, err := NewProvisioner(failingFind{Memory: mem, err: findErr}, lines).Run(context.Background())

	assert.Same(t, findErr, err)
	assert.True(t, storage.IsStoreError(err))
	assert.Equal(t, model.ProvisionResult{}, res)
	assert.Equal(t, []string{"Error: store find containers: unauthorized"}, lines.Lines())
	assert.Equal(t, 0, mem.ContainerCount())
}

func TestProvisioner_Run_ReportsURLAndGuidance(t *testing.T) {
	mStore := new(storeMocks.MockStore)
	mStore.On("FindContainers", mock.Anything, "Odoo RDD").Return([]model.Container{folder}, nil)
	mStore.On("FindDocuments", mock.Anything, folder, "Odoo_RDD_Template").
		Return([]model.Document{{ID: "abc123", Name: "Odoo_RDD_Template"}}, nil)
	lines := logging.NewLines(nil)

	res, err := NewProvisioner(mStore, lines).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.ProvisionResult{
		ContainerID: "folder-1",
		DocumentID:  "abc123",
		DocumentURL: "https://docs.google.com/spreadsheets/d/abc123",
	}, res)

	got := lines.Lines()
	assert.Equal(t, "Folder found: Odoo RDD", got[0])
	assert.Equal(t, "Template found: Odoo_RDD_Template", got[1])
	assert.Contains(t, got, "   URL: https://docs.google.com/spreadsheets/d/abc123")
	assert.Contains(t, got, "   - Name it: Odoo_RDD_Library")
}

func TestDocumentURL(t *testing.T) {
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc123", DocumentURL(DefaultNames().URLBase, "abc123"))
	assert.Equal(t, "https://example.test/d/abc123", DocumentURL("https://example.test/d/", "abc123"))
}

func TestProvisioner_Run_RecordsLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mRepo := new(repoMocks.MockRunRepository)
		mRepo.On("Record", mock.Anything, mock.MatchedBy(func(run *model.ProvisionRun) bool {
			return run.Status == model.RunSucceeded && run.DocumentID != "" && run.Error == "" && !run.FinishedAt.Before(run.StartedAt)
		})).Return(&model.ProvisionRun{}, nil)

		_, err := NewProvisioner(storage.NewMemory(), logging.NewLines(nil), WithRunRepository(mRepo)).Run(ctx)

		assert.NoError(t, err)
		mRepo.AssertExpectations(t)
	})

	t.Run("failure recorded with error text", func(t *testing.T) {
		findErr := &storage.StoreError{Op: "find containers", Err: errors.New("boom")}
		mRepo := new(repoMocks.MockRunRepository)
		mRepo.On("Record", mock.Anything, mock.MatchedBy(func(run *model.ProvisionRun) bool {
			return run.Status == model.RunFailed && run.Error == "store find containers: boom"
		})).Return(&model.ProvisionRun{}, nil)

		_, err := NewProvisioner(failingFind{Memory: storage.NewMemory(), err: findErr}, logging.NewLines(nil), WithRunRepository(mRepo)).Run(ctx)

		assert.Same(t, findErr, err)
		mRepo.AssertExpectations(t)
	})

	t.Run("ledger error does not fail the run", func(t *testing.T) {
		mRepo := new(repoMocks.MockRunRepository)
		mRepo.On("Record", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		res, err := NewProvisioner(storage.NewMemory(), logging.NewLines(nil), WithRunRepository(mRepo)).Run(ctx)

		assert.NoError(t, err)
		assert.NotEmpty(t, res.DocumentID)
	})
}

func TestProvisioner_Run_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewProvisioning(reg)
	require.NoError(t, err)
	p := NewProvisioner(storage.NewMemory(), logging.NewLines(nil), WithMetrics(m))

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	// created and reused, for both kinds
	n, err := testutil.GatherAndCount(reg, "driveprov_resources_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = testutil.GatherAndCount(reg, "driveprov_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
