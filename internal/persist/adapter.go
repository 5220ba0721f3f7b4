// Package persist encodes the open-solution and open-diagram lists to the
// key-value store and decodes them back, tolerating records written by older
// or broken clients.
package persist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"solutionhub/internal/domain"
	storepkg "solutionhub/internal/store"
)

const (
	KeyOpenedSolutions = "openedSolutions"
	KeyOpenDiagrams    = "OpenDiagrams"
)

// Sealer encrypts identity tokens before they reach the store.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type Adapter struct {
	store  storepkg.Store
	sealer Sealer
	logger *slog.Logger
}

// NewAdapter builds an adapter. sealer may be nil, in which case tokens are
// stored as given.
func NewAdapter(store storepkg.Store, sealer Sealer, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{store: store, sealer: sealer, logger: logger}
}

type storedSolution struct {
	URI        string           `json:"uri"`
	Identity   *domain.Identity `json:"identity,omitempty"`
	IsLoggedIn bool             `json:"isLoggedIn"`
	UserName   string           `json:"userName,omitempty"`
	Authority  string           `json:"authority,omitempty"`
}

// LoadSolutions returns the persisted solution entries. A missing or
// unreadable record yields an empty list.
func (a *Adapter) LoadSolutions() []domain.SolutionEntry {
	elems := a.loadArray(KeyOpenedSolutions)
	out := make([]domain.SolutionEntry, 0, len(elems))
	for i, raw := range elems {
		var s storedSolution
		if err := json.Unmarshal(raw, &s); err != nil {
			a.logger.Warn("skipping malformed solution entry", "index", i, "error", err)
			continue
		}
		if strings.TrimSpace(s.URI) == "" {
			a.logger.Warn("skipping solution entry without uri", "index", i)
			continue
		}
		entry := domain.SolutionEntry{
			URI:        s.URI,
			IsLoggedIn: s.IsLoggedIn,
			UserName:   s.UserName,
			Authority:  s.Authority,
		}
		if s.Identity != nil && s.Identity.Token != "" {
			token, err := a.open(s.Identity.Token)
			if err != nil {
				a.logger.Warn("dropping unreadable identity", "uri", s.URI, "error", err)
				entry.IsLoggedIn = false
				entry.UserName = ""
			} else {
				entry.Identity = &domain.Identity{Token: token, UserID: s.Identity.UserID}
			}
		}
		out = append(out, entry)
	}
	return out
}

func (a *Adapter) SaveSolutions(entries []domain.SolutionEntry) error {
	stored := make([]storedSolution, 0, len(entries))
	for _, e := range entries {
		s := storedSolution{
			URI:        e.URI,
			IsLoggedIn: e.IsLoggedIn,
			UserName:   e.UserName,
			Authority:  e.Authority,
		}
		if e.Identity != nil {
			token, err := a.seal(e.Identity.Token)
			if err != nil {
				return fmt.Errorf("seal identity for %s: %w", e.URI, err)
			}
			s.Identity = &domain.Identity{Token: token, UserID: e.Identity.UserID}
		}
		stored = append(stored, s)
	}
	return a.save(KeyOpenedSolutions, stored)
}

// LoadOpenDiagrams returns the persisted open diagrams in stored order.
func (a *Adapter) LoadOpenDiagrams() []domain.OpenDiagram {
	elems := a.loadArray(KeyOpenDiagrams)
	out := make([]domain.OpenDiagram, 0, len(elems))
	for i, raw := range elems {
		var d domain.OpenDiagram
		if err := json.Unmarshal(raw, &d); err != nil {
			a.logger.Warn("skipping malformed open diagram", "index", i, "error", err)
			continue
		}
		if strings.TrimSpace(d.URI) == "" {
			a.logger.Warn("skipping open diagram without uri", "index", i)
			continue
		}
		out = append(out, d)
	}
	return out
}

func (a *Adapter) SaveOpenDiagrams(diagrams []domain.OpenDiagram) error {
	if diagrams == nil {
		diagrams = []domain.OpenDiagram{}
	}
	return a.save(KeyOpenDiagrams, diagrams)
}

func (a *Adapter) loadArray(key string) []json.RawMessage {
	raw, ok, err := a.store.GetItem(key)
	if err != nil {
		a.logger.Warn("reading persisted record failed", "key", key, "error", err)
		return nil
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		a.logger.Warn("persisted record is not a list, treating as empty", "key", key, "error", err)
		return nil
	}
	return elems
}

func (a *Adapter) save(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := a.store.SetItem(key, string(raw)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (a *Adapter) seal(token string) (string, error) {
	if a.sealer == nil || token == "" {
		return token, nil
	}
	return a.sealer.Encrypt(token)
}

func (a *Adapter) open(token string) (string, error) {
	if a.sealer == nil {
		return token, nil
	}
	return a.sealer.Decrypt(token)
}
