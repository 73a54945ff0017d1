// Package storage contains the document-store capability consumed by the provisioner
// and its backends (Google Drive, S3-compatible object storage, in-memory).
package storage

import (
	"context"
	"errors"

	"driveprov/internal/model"
)

// ErrNotFound is wrapped by backends when an operation targets a resource that does not exist.
var ErrNotFound = errors.New("resource not found")

// Store is the remote document store. It is the sole source of truth: callers
// query it fresh instead of caching what it returned earlier.
//
// Find* methods return every match in the store's own order; callers that need a
// single resource take the first one. Every error is a *StoreError.
type Store interface {
	// FindContainers returns the containers named name, anywhere in the store.
	FindContainers(ctx context.Context, name string) ([]model.Container, error)
	// CreateContainer creates a container at the default root.
	CreateContainer(ctx context.Context, name string) (model.Container, error)
	// FindDocuments returns the documents named name that are members of c.
	FindDocuments(ctx context.Context, c model.Container, name string) ([]model.Document, error)
	// CreateDocument creates a document at the default root. The store offers no way
	// to create it directly inside another container.
	CreateDocument(ctx context.Context, name string) (model.Document, error)
	// Root returns the default root location new resources land in.
	Root(ctx context.Context) (model.Container, error)
	// AddToContainer makes d a member of c. Existing memberships are kept.
	AddToContainer(ctx context.Context, d model.Document, c model.Container) error
	// RemoveFromContainer drops the membership edge between d and c. The document itself is not deleted.
	RemoveFromContainer(ctx context.Context, d model.Document, c model.Container) error
}

// StoreError is the single error kind surfaced by a Store: network, permission and
// missing-resource failures all arrive wrapped in it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "store " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is, or wraps, a *StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
