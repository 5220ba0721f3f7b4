package diagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"solutionhub/internal/domain"
	"solutionhub/internal/explorer"
	"solutionhub/internal/persist"
)

var ErrInvalidDiagram = errors.New("open diagram requires a uri")

const defaultPublishTimeout = 10 * time.Second

type Options struct {
	Publisher      domain.Publisher
	Logger         *slog.Logger
	PublishTimeout time.Duration
}

// Registry holds the diagrams opened outside any solution. Every mutation
// rewrites the persisted list.
//
// Registry also satisfies domain.Connector so it can back the Open Diagrams
// pseudo-solution.
type Registry struct {
	mu       sync.Mutex
	diagrams []domain.OpenDiagram

	adapter        *persist.Adapter
	publisher      domain.Publisher
	logger         *slog.Logger
	publishTimeout time.Duration
	now            func() time.Time
}

func NewRegistry(adapter *persist.Adapter, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	return &Registry{
		adapter:        adapter,
		publisher:      opts.Publisher,
		logger:         opts.Logger,
		publishTimeout: opts.PublishTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Load replaces the in-memory list with the persisted one.
func (r *Registry) Load() {
	diagrams := r.adapter.LoadOpenDiagrams()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagrams = r.diagrams[:0]
	for _, d := range diagrams {
		if i := r.indexOf(d.URI); i >= 0 {
			r.diagrams[i] = d
			continue
		}
		r.diagrams = append(r.diagrams, d)
	}
}

// AddOpenDiagram inserts d, or overwrites the diagram with the same uri in
// place, then persists the list.
func (r *Registry) AddOpenDiagram(d domain.OpenDiagram) (domain.OpenDiagram, error) {
	if strings.TrimSpace(d.URI) == "" {
		return domain.OpenDiagram{}, ErrInvalidDiagram
	}
	if d.Name == "" {
		base := filepath.Base(d.URI)
		d.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	now := r.now()
	d.UpdatedAt = &now

	r.mu.Lock()
	if i := r.indexOf(d.URI); i >= 0 {
		if d.ID == "" {
			d.ID = r.diagrams[i].ID
		}
		r.diagrams[i] = d
	} else {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		r.diagrams = append(r.diagrams, d)
	}
	r.persistLocked()
	r.mu.Unlock()

	r.emit(domain.EventDiagramSaved, d.URI)
	return d, nil
}

// RemoveOpenDiagramByURI closes the diagram for uri. Unknown uris are ignored.
func (r *Registry) RemoveOpenDiagramByURI(uri string) {
	r.mu.Lock()
	i := r.indexOf(uri)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	r.diagrams = append(r.diagrams[:i], r.diagrams[i+1:]...)
	r.persistLocked()
	r.mu.Unlock()

	r.emit(domain.EventDiagramClosed, uri)
}

// GetOpenDiagrams returns the open diagrams in insertion order.
func (r *Registry) GetOpenDiagrams() []domain.OpenDiagram {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.OpenDiagram, len(r.diagrams))
	for i, d := range r.diagrams {
		if d.UpdatedAt != nil {
			at := *d.UpdatedAt
			d.UpdatedAt = &at
		}
		out[i] = d
	}
	return out
}

// OpenFile reads a BPMN file from disk and adds it as an open diagram.
func (r *Registry) OpenFile(ctx context.Context, path string) (domain.OpenDiagram, error) {
	if err := ctx.Err(); err != nil {
		return domain.OpenDiagram{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.OpenDiagram{}, err
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return domain.OpenDiagram{}, fmt.Errorf("open diagram %s: %w", abs, err)
	}
	return r.AddOpenDiagram(domain.OpenDiagram{URI: abs, XML: string(raw)})
}

func (r *Registry) OpenSolution(ctx context.Context, _ string, _ *domain.Identity) error {
	return ctx.Err()
}

func (r *Registry) LoadSolution(ctx context.Context) (domain.Solution, error) {
	if err := ctx.Err(); err != nil {
		return domain.Solution{}, err
	}
	return domain.Solution{
		Name:     domain.OpenDiagramsURI,
		URI:      domain.OpenDiagramsURI,
		Diagrams: r.GetOpenDiagrams(),
	}, nil
}

// LoadDiagram finds an open diagram by uri or by name.
func (r *Registry) LoadDiagram(ctx context.Context, name string) (domain.OpenDiagram, error) {
	if err := ctx.Err(); err != nil {
		return domain.OpenDiagram{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.diagrams {
		if d.URI == name || d.Name == name {
			return d, nil
		}
	}
	return domain.OpenDiagram{}, fmt.Errorf("%w: %s", explorer.ErrDiagramNotFound, name)
}

// SaveDiagram writes the XML back to the diagram's file when it has a local
// path, then upserts it.
func (r *Registry) SaveDiagram(ctx context.Context, d domain.OpenDiagram) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !domain.IsRemoteURI(d.URI) && filepath.IsAbs(d.URI) {
		if err := os.WriteFile(d.URI, []byte(d.XML), 0o644); err != nil {
			return fmt.Errorf("save diagram %s: %w", d.URI, err)
		}
	}
	_, err := r.AddOpenDiagram(d)
	return err
}

// DeleteDiagram closes the diagram. The file on disk is left alone.
func (r *Registry) DeleteDiagram(ctx context.Context, d domain.OpenDiagram) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.RemoveOpenDiagramByURI(d.URI)
	return nil
}

func (r *Registry) persistLocked() {
	if err := r.adapter.SaveOpenDiagrams(r.diagrams); err != nil {
		r.logger.Warn("persisting open diagrams failed", "error", err)
	}
}

func (r *Registry) indexOf(uri string) int {
	for i, d := range r.diagrams {
		if d.URI == uri {
			return i
		}
	}
	return -1
}

func (r *Registry) emit(eventType domain.EventType, uri string) {
	if r.publisher == nil {
		return
	}
	event := domain.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		URI:       uri,
		CreatedAt: r.now(),
	}
	go func(evt domain.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
		defer cancel()
		if err := r.publisher.Publish(ctx, evt); err != nil {
			r.logger.Warn("publishing event failed", "type", evt.Type, "uri", evt.URI, "error", err)
		}
	}(event)
}
