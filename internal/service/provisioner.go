package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"driveprov/internal/config"
	"driveprov/internal/metrics"
	"driveprov/internal/model"
	"driveprov/internal/repository"
	"driveprov/internal/storage"
)

var ErrNameRequired = errors.New("name is required")

// Labels used for resource metrics.
const (
	KindContainer = "container"
	KindDocument  = "document"

	OutcomeCreated = "created"
	OutcomeReused  = "reused"
)

// Logger is the host log sink. Lines are narration for a human and carry no state.
type Logger interface {
	Log(line string)
}

// Names are the symbolic resource names a run provisions.
type Names struct {
	Container string
	Document  string
	Library   string
	URLBase   string
}

// DefaultNames returns the names fixed in config.
func DefaultNames() Names {
	return Names{
		Container: config.ContainerName,
		Document:  config.DocumentName,
		Library:   config.LibraryName,
		URLBase:   config.DocumentURLBase,
	}
}

// DocumentURL returns the canonical URL of a document: base followed by the ID.
func DocumentURL(base, id string) string {
	return base + id
}

// Provisioner ensures a named container and a named document inside it exist in a Store.
//
// Runs are idempotent: resources are looked up by name before anything is created.
// Two runs executing at the same time against the same store can both see a resource
// as absent and both create it; the store offers no create-if-absent primitive, so
// callers must not run provisioners concurrently for the same names.
type Provisioner struct {
	store   storage.Store
	log     Logger
	names   Names
	metrics *metrics.Provisioning
	runs    repository.RunRepository
	diag    zerolog.Logger
	tracer  trace.Tracer
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithNames overrides DefaultNames.
func WithNames(n Names) Option {
	return func(p *Provisioner) { p.names = n }
}

// WithMetrics records resource and run outcomes.
func WithMetrics(m *metrics.Provisioning) Option {
	return func(p *Provisioner) { p.metrics = m }
}

// WithRunRepository records every finished run in the ledger.
func WithRunRepository(r repository.RunRepository) Option {
	return func(p *Provisioner) { p.runs = r }
}

// WithDiagnostics sets the structured logger for operator-facing warnings.
func WithDiagnostics(l zerolog.Logger) Option {
	return func(p *Provisioner) { p.diag = l }
}

// NewProvisioner constructs a Provisioner around its two required collaborators.
func NewProvisioner(store storage.Store, log Logger, opts ...Option) *Provisioner {
	p := &Provisioner{
		store:  store,
		log:    log,
		names:  DefaultNames(),
		diag:   zerolog.Nop(),
		tracer: otel.Tracer("driveprov/internal/service"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureContainer returns the container named name, creating it at the store root when
// none exists. With several matches the first in store order wins; duplicates are left alone.
func (p *Provisioner) EnsureContainer(ctx context.Context, name string) (model.Container, error) {
	if name == "" {
		return model.Container{}, ErrNameRequired
	}
	ctx, span := p.tracer.Start(ctx, "provisioner.EnsureContainer", trace.WithAttributes(attribute.String("container.name", name)))
	defer span.End()

	found, err := p.store.FindContainers(ctx, name)
	if err != nil {
		return model.Container{}, err
	}
	if len(found) > 0 {
		c := found[0]
		if len(found) > 1 {
			p.diag.Warn().Str("name", name).Int("matches", len(found)).Str("selected", c.ID).Msg("duplicate containers, using first match")
		}
		span.SetAttributes(attribute.String("outcome", OutcomeReused))
		p.metrics.ObserveResource(KindContainer, OutcomeReused)
		p.log.Log("Folder found: " + c.Name)
		return c, nil
	}

	c, err := p.store.CreateContainer(ctx, name)
	if err != nil {
		return model.Container{}, err
	}
	span.SetAttributes(attribute.String("outcome", OutcomeCreated))
	p.metrics.ObserveResource(KindContainer, OutcomeCreated)
	p.log.Log("Folder created: " + c.Name)
	return c, nil
}

// EnsureDocument returns the document named name inside c. A missing document is created
// at the store root and then moved: it is added to c first and only afterwards removed
// from the root, so a failure between the two steps never leaves it unreachable.
func (p *Provisioner) EnsureDocument(ctx context.Context, c model.Container, name string) (model.Document, error) {
	if name == "" {
		return model.Document{}, ErrNameRequired
	}
	ctx, span := p.tracer.Start(ctx, "provisioner.EnsureDocument", trace.WithAttributes(
		attribute.String("container.id", c.ID),
		attribute.String("document.name", name),
	))
	defer span.End()

	found, err := p.store.FindDocuments(ctx, c, name)
	if err != nil {
		return model.Document{}, err
	}
	if len(found) > 0 {
		d := found[0]
		if len(found) > 1 {
			p.diag.Warn().Str("name", name).Int("matches", len(found)).Str("selected", d.ID).Msg("duplicate documents, using first match")
		}
		span.SetAttributes(attribute.String("outcome", OutcomeReused))
		p.metrics.ObserveResource(KindDocument, OutcomeReused)
		p.log.Log("Template found: " + d.Name)
		return d, nil
	}

	d, err := p.store.CreateDocument(ctx, name)
	if err != nil {
		return model.Document{}, err
	}
	if err := p.store.AddToContainer(ctx, d, c); err != nil {
		return model.Document{}, err
	}
	root, err := p.store.Root(ctx)
	if err != nil {
		return model.Document{}, err
	}
	if root.ID != c.ID {
		if err := p.store.RemoveFromContainer(ctx, d, root); err != nil {
			return model.Document{}, err
		}
	}

	span.SetAttributes(attribute.String("outcome", OutcomeCreated))
	p.metrics.ObserveResource(KindDocument, OutcomeCreated)
	p.log.Log("Template created: " + d.Name)
	return d, nil
}

// Run ensures the container, then the document, and reports their identifiers.
// Follow-up instructions are written to the Logger after the result is built.
// Errors are logged and returned unchanged with a zero result.
func (p *Provisioner) Run(ctx context.Context) (model.ProvisionResult, error) {
	ctx, span := p.tracer.Start(ctx, "provisioner.Run")
	defer span.End()
	started := time.Now()

	res, err := p.provision(ctx)
	p.finish(ctx, started, res, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.log.Log("Error: " + err.Error())
		return model.ProvisionResult{}, err
	}

	for _, line := range Guidance(res, p.names) {
		p.log.Log(line)
	}
	return res, nil
}

func (p *Provisioner) provision(ctx context.Context) (model.ProvisionResult, error) {
	c, err := p.EnsureContainer(ctx, p.names.Container)
	if err != nil {
		return model.ProvisionResult{}, err
	}
	d, err := p.EnsureDocument(ctx, c, p.names.Document)
	if err != nil {
		return model.ProvisionResult{}, err
	}
	return model.ProvisionResult{
		ContainerID: c.ID,
		DocumentID:  d.ID,
		DocumentURL: DocumentURL(p.names.URLBase, d.ID),
	}, nil
}

// finish updates metrics and the ledger. Ledger failures are reported, never returned.
func (p *Provisioner) finish(ctx context.Context, started time.Time, res model.ProvisionResult, runErr error) {
	status := model.RunSucceeded
	if runErr != nil {
		status = model.RunFailed
	}
	p.metrics.ObserveRun(status, time.Since(started))

	if p.runs == nil {
		return
	}
	run := &model.ProvisionRun{
		ID:          uuid.NewString(),
		Status:      status,
		ContainerID: res.ContainerID,
		DocumentID:  res.DocumentID,
		DocumentURL: res.DocumentURL,
		StartedAt:   started.UTC(),
		FinishedAt:  time.Now().UTC(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if _, err := p.runs.Record(ctx, run); err != nil {
		p.diag.Error().Err(err).Str("run_id", run.ID).Msg("record provision run")
	}
}
