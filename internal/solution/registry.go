// Package solution tracks which solutions are open, persists that set and
// re-attaches a connector to every restored entry.
package solution

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"solutionhub/internal/domain"
	"solutionhub/internal/explorer"
	"solutionhub/internal/persist"
)

var (
	ErrInvalidEntry    = errors.New("solution entry requires a uri")
	ErrUnknownSolution = errors.New("solution is not open")
)

const (
	defaultResolveTimeout = 10 * time.Second
	defaultPublishTimeout = 10 * time.Second
)

type Options struct {
	Publisher      domain.Publisher
	Logger         *slog.Logger
	ResolveTimeout time.Duration
	PublishTimeout time.Duration
}

// ResolveResult is the outcome of attaching a connector to one restored entry.
type ResolveResult struct {
	URI string
	Err error
}

// record wraps an entry so a late connector resolution can tell whether the
// entry it started for is still the one registered under the uri. gen is
// bumped whenever the identity changes or a new resolution starts; only the
// latest resolution may attach its connector.
//
// A connector stored on an entry is never re-opened. Handlers keep using it
// without holding the registry lock, so identity changes resolve a fresh one.
type record struct {
	entry domain.SolutionEntry
	gen   uint64
}

type Registry struct {
	mu        sync.Mutex
	records   []*record
	persisted []domain.SolutionEntry

	adapter        *persist.Adapter
	factory        explorer.Factory
	publisher      domain.Publisher
	logger         *slog.Logger
	resolveTimeout time.Duration
	publishTimeout time.Duration

	resolving sync.WaitGroup
	resultsMu sync.Mutex
	results   []ResolveResult
}

func NewRegistry(adapter *persist.Adapter, factory explorer.Factory, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	return &Registry{
		adapter:        adapter,
		factory:        factory,
		publisher:      opts.Publisher,
		logger:         opts.Logger,
		resolveTimeout: opts.ResolveTimeout,
		publishTimeout: opts.PublishTimeout,
	}
}

// Initialize restores the persisted entries and starts resolving a connector
// for each of them. Resolution runs per entry in the background; a failing
// entry stays registered with ConnectorFailed. Use Wait to collect outcomes.
func (r *Registry) Initialize(ctx context.Context) {
	restored := r.adapter.LoadSolutions()

	r.mu.Lock()
	r.records = make([]*record, 0, len(restored))
	for _, e := range restored {
		if i := r.indexOf(e.URI); i >= 0 {
			r.removeAt(i)
		}
		e.Service = nil
		e.ConnectorState = domain.ConnectorPending
		e.ConnectorError = ""
		r.records = append(r.records, &record{entry: e})
	}
	type job struct {
		rec      *record
		uri      string
		identity *domain.Identity
	}
	jobs := make([]job, 0, len(r.records))
	for _, rec := range r.records {
		jobs = append(jobs, job{rec: rec, uri: rec.entry.URI, identity: cloneIdentity(rec.entry.Identity)})
	}
	r.persisted = cloneEntries(r.snapshotLocked())
	r.resolving.Add(len(jobs))
	r.mu.Unlock()

	r.logger.Info("restored open solutions", "count", len(jobs))
	for _, j := range jobs {
		go r.resolve(ctx, j.rec, j.uri, j.identity)
	}
}

// Wait blocks until every resolution started by Initialize has finished and
// returns their outcomes.
func (r *Registry) Wait() []ResolveResult {
	r.resolving.Wait()
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	out := make([]ResolveResult, len(r.results))
	copy(out, r.results)
	return out
}

func (r *Registry) resolve(ctx context.Context, rec *record, uri string, identity *domain.Identity) {
	defer r.resolving.Done()

	ctx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
	defer cancel()
	conn, err := explorer.Resolve(ctx, r.factory, uri, identity)

	r.resultsMu.Lock()
	r.results = append(r.results, ResolveResult{URI: uri, Err: err})
	r.resultsMu.Unlock()

	if !r.attach(rec, 0, conn, err) {
		return
	}
	if err != nil {
		r.logger.Warn("could not reopen solution", "uri", uri, "error", err)
		r.emit(domain.EventSolutionConnectorFailed, uri, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	r.logger.Debug("connector attached", "uri", uri)
}

// attach stores the resolution outcome on rec if rec is still registered and
// no newer resolution was started for it.
func (r *Registry) attach(rec *record, gen uint64, conn domain.Connector, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(rec.entry.URI)
	if i < 0 || r.records[i] != rec || rec.gen != gen {
		return false
	}
	if err != nil {
		rec.entry.Service = nil
		rec.entry.ConnectorState = domain.ConnectorFailed
		rec.entry.ConnectorError = err.Error()
		return true
	}
	rec.entry.Service = conn
	rec.entry.ConnectorState = domain.ConnectorReady
	rec.entry.ConnectorError = ""
	return true
}

// AddSolutionEntry registers entry, replacing any entry with the same uri,
// and persists the set.
func (r *Registry) AddSolutionEntry(entry domain.SolutionEntry) error {
	if strings.TrimSpace(entry.URI) == "" {
		return ErrInvalidEntry
	}
	if entry.ConnectorState == "" {
		entry.ConnectorState = domain.ConnectorPending
		if entry.Service != nil {
			entry.ConnectorState = domain.ConnectorReady
		}
	}

	r.mu.Lock()
	if i := r.indexOf(entry.URI); i >= 0 {
		r.removeAt(i)
	}
	r.records = append(r.records, &record{entry: entry})
	r.persistLocked()
	r.mu.Unlock()

	r.emit(domain.EventSolutionAdded, entry.URI, map[string]interface{}{
		"remote": entry.IsRemote(),
	})
	return nil
}

// GetSolutionEntryForURI returns the entry registered under uri.
func (r *Registry) GetSolutionEntryForURI(uri string) (domain.SolutionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(uri)
	if i < 0 {
		return domain.SolutionEntry{}, false
	}
	return cloneEntry(r.records[i].entry), true
}

// GetRemoteSolutionEntries returns the entries backed by a process engine.
func (r *Registry) GetRemoteSolutionEntries() []domain.SolutionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SolutionEntry, 0, len(r.records))
	for _, rec := range r.records {
		if rec.entry.IsRemote() {
			out = append(out, cloneEntry(rec.entry))
		}
	}
	return out
}

// GetAllSolutionEntries returns the live set, including the Open Diagrams
// pseudo-solution.
func (r *Registry) GetAllSolutionEntries() []domain.SolutionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SolutionEntry, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, cloneEntry(rec.entry))
	}
	return out
}

// GetPersistedEntries returns the last snapshot written to storage. Entries
// in it carry no connector.
func (r *Registry) GetPersistedEntries() []domain.SolutionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneEntries(r.persisted)
}

// RemoveSolutionEntryByURI removes the entry for uri. Unknown uris are ignored.
func (r *Registry) RemoveSolutionEntryByURI(uri string) {
	r.mu.Lock()
	i := r.indexOf(uri)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	r.removeAt(i)
	r.persistLocked()
	r.mu.Unlock()

	r.emit(domain.EventSolutionRemoved, uri, nil)
}

// PersistSolutionsInLocalStorage writes every entry except the Open Diagrams
// pseudo-solution and records the written set as the persisted snapshot.
func (r *Registry) PersistSolutionsInLocalStorage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persistLocked()
}

// Login stores identity on the entry for uri and opens a new connector with
// it. The entry's previous connector is replaced, not modified.
func (r *Registry) Login(ctx context.Context, uri string, identity domain.Identity, userName string) (bool, error) {
	r.mu.Lock()
	i := r.indexOf(uri)
	if i < 0 {
		r.mu.Unlock()
		return false, nil
	}
	rec := r.records[i]
	rec.entry.Identity = &identity
	rec.entry.IsLoggedIn = true
	rec.entry.UserName = userName
	gen := r.beginResolveLocked(rec)
	r.persistLocked()
	r.mu.Unlock()

	r.emit(domain.EventSolutionLogin, uri, map[string]interface{}{"user_id": identity.UserID})
	return true, r.reconnect(ctx, rec, gen, uri, cloneIdentity(&identity))
}

// Logout clears the identity of the entry for uri and reconnects anonymously;
// the entry stays open.
func (r *Registry) Logout(ctx context.Context, uri string) (bool, error) {
	r.mu.Lock()
	i := r.indexOf(uri)
	if i < 0 {
		r.mu.Unlock()
		return false, nil
	}
	rec := r.records[i]
	rec.entry.Identity = nil
	rec.entry.IsLoggedIn = false
	rec.entry.UserName = ""
	gen := r.beginResolveLocked(rec)
	r.persistLocked()
	r.mu.Unlock()

	r.emit(domain.EventSolutionLogout, uri, nil)
	return true, r.reconnect(ctx, rec, gen, uri, nil)
}

// RetryConnector resolves the connector for uri again, synchronously.
func (r *Registry) RetryConnector(ctx context.Context, uri string) error {
	r.mu.Lock()
	i := r.indexOf(uri)
	if i < 0 {
		r.mu.Unlock()
		return ErrUnknownSolution
	}
	rec := r.records[i]
	identity := cloneIdentity(rec.entry.Identity)
	gen := r.beginResolveLocked(rec)
	rec.entry.ConnectorState = domain.ConnectorPending
	rec.entry.ConnectorError = ""
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
	defer cancel()
	conn, err := explorer.Resolve(ctx, r.factory, uri, identity)
	if !r.attach(rec, gen, conn, err) {
		return ErrUnknownSolution
	}
	if err != nil {
		r.emit(domain.EventSolutionConnectorFailed, uri, map[string]interface{}{
			"error": err.Error(),
		})
	}
	return err
}

// beginResolveLocked invalidates resolutions already in flight for rec.
func (r *Registry) beginResolveLocked(rec *record) uint64 {
	rec.gen++
	return rec.gen
}

// reconnect opens a fresh connector for an identity change. The Open Diagrams
// pseudo-solution has no identity and keeps its connector.
func (r *Registry) reconnect(ctx context.Context, rec *record, gen uint64, uri string, identity *domain.Identity) error {
	if uri == domain.OpenDiagramsURI {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
	defer cancel()
	conn, err := explorer.Resolve(ctx, r.factory, uri, identity)
	if !r.attach(rec, gen, conn, err) {
		return nil
	}
	if err != nil {
		r.logger.Warn("reconnecting solution failed", "uri", uri, "error", err)
		r.emit(domain.EventSolutionConnectorFailed, uri, map[string]interface{}{
			"error": err.Error(),
		})
	}
	return err
}

func (r *Registry) persistLocked() {
	snapshot := r.snapshotLocked()
	if err := r.adapter.SaveSolutions(snapshot); err != nil {
		r.logger.Warn("persisting open solutions failed", "error", err)
		return
	}
	r.persisted = cloneEntries(snapshot)
}

func (r *Registry) snapshotLocked() []domain.SolutionEntry {
	out := make([]domain.SolutionEntry, 0, len(r.records))
	for _, rec := range r.records {
		if rec.entry.URI == domain.OpenDiagramsURI {
			continue
		}
		e := rec.entry
		e.Service = nil
		e.ConnectorState = ""
		e.ConnectorError = ""
		out = append(out, e)
	}
	return out
}

func cloneEntry(e domain.SolutionEntry) domain.SolutionEntry {
	e.Identity = cloneIdentity(e.Identity)
	return e
}

func cloneEntries(entries []domain.SolutionEntry) []domain.SolutionEntry {
	out := make([]domain.SolutionEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, cloneEntry(e))
	}
	return out
}

func cloneIdentity(id *domain.Identity) *domain.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func (r *Registry) indexOf(uri string) int {
	for i, rec := range r.records {
		if rec.entry.URI == uri {
			return i
		}
	}
	return -1
}

func (r *Registry) removeAt(i int) {
	r.records = append(r.records[:i], r.records[i+1:]...)
}

func (r *Registry) emit(eventType domain.EventType, uri string, payload map[string]interface{}) {
	if r.publisher == nil {
		return
	}
	event := domain.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		URI:       uri,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	go func(evt domain.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
		defer cancel()
		if err := r.publisher.Publish(ctx, evt); err != nil {
			r.logger.Warn("publishing event failed", "type", evt.Type, "uri", evt.URI, "error", err)
		}
	}(event)
}
