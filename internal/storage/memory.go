package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"driveprov/internal/model"
)

// RootID is the root container ID used by the Memory and MinIO stores.
const RootID = "root"

// Memory is an in-process Store. Matches are returned in insertion order.
// It backs dry runs (STORE_BACKEND=memory) and tests.
type Memory struct {
	mu         sync.Mutex
	root       model.Container
	containers []model.Container
	documents  []model.Document
	parents    map[string]map[string]struct{}
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store holding only its root container.
func NewMemory() *Memory {
	return &Memory{
		root:    model.Container{ID: RootID, Name: "My Drive"},
		parents: make(map[string]map[string]struct{}),
	}
}

func (m *Memory) FindContainers(_ context.Context, name string) ([]model.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Container
	for _, c := range m.containers {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) CreateContainer(_ context.Context, name string) (model.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := model.Container{ID: uuid.NewString(), Name: name}
	m.containers = append(m.containers, c)
	return c, nil
}

func (m *Memory) FindDocuments(_ context.Context, c model.Container, name string) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Document
	for _, d := range m.documents {
		if _, ok := m.parents[d.ID][c.ID]; ok && d.Name == name {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) CreateDocument(_ context.Context, name string) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := model.Document{ID: uuid.NewString(), Name: name}
	m.documents = append(m.documents, d)
	m.parents[d.ID] = map[string]struct{}{m.root.ID: {}}
	return d, nil
}

func (m *Memory) Root(context.Context) (model.Container, error) {
	return m.root, nil
}

func (m *Memory) AddToContainer(_ context.Context, d model.Document, c model.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, ok := m.parents[d.ID]
	if !ok {
		return storeErr("add to container", fmt.Errorf("document %s: %w", d.ID, ErrNotFound))
	}
	if c.ID != m.root.ID && !m.hasContainer(c.ID) {
		return storeErr("add to container", fmt.Errorf("container %s: %w", c.ID, ErrNotFound))
	}
	ps[c.ID] = struct{}{}
	return nil
}

func (m *Memory) RemoveFromContainer(_ context.Context, d model.Document, c model.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, ok := m.parents[d.ID]
	if !ok {
		return storeErr("remove from container", fmt.Errorf("document %s: %w", d.ID, ErrNotFound))
	}
	delete(ps, c.ID)
	return nil
}

func (m *Memory) hasContainer(id string) bool {
	for _, c := range m.containers {
		if c.ID == id {
			return true
		}
	}
	return false
}

// ContainerCount returns the number of containers, root excluded.
func (m *Memory) ContainerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.containers)
}

// DocumentCount returns the number of documents regardless of membership.
func (m *Memory) DocumentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.documents)
}

// ParentsOf returns the sorted IDs of the containers d is reachable from.
func (m *Memory) ParentsOf(docID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.parents[docID]))
	for id := range m.parents[docID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
