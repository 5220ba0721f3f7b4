package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"solutionhub/internal/domain"
)

// ManagementAPI talks to a remote process engine. Process models are the
// engine's diagrams. OpenSolution is called once, before the connector is
// shared; after that it is read-only.
type ManagementAPI struct {
	httpClient *http.Client
	baseURL    string
	identity   *domain.Identity
}

type processModel struct {
	ID  string `json:"id"`
	XML string `json:"xml"`
}

type processModelList struct {
	ProcessModels []processModel `json:"processModels"`
}

func (m *ManagementAPI) OpenSolution(ctx context.Context, uri string, identity *domain.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("parse engine uri: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("engine uri %q must be an absolute http(s) url", uri)
	}
	m.baseURL = strings.TrimRight(uri, "/")
	m.identity = identity
	return nil
}

func (m *ManagementAPI) LoadSolution(ctx context.Context) (domain.Solution, error) {
	var list processModelList
	if err := m.do(ctx, http.MethodGet, "/process_models", nil, &list); err != nil {
		return domain.Solution{}, err
	}
	solution := domain.Solution{
		Name:     m.baseURL,
		URI:      m.baseURL,
		Diagrams: make([]domain.OpenDiagram, 0, len(list.ProcessModels)),
	}
	for _, pm := range list.ProcessModels {
		solution.Diagrams = append(solution.Diagrams, m.toDiagram(pm))
	}
	return solution, nil
}

func (m *ManagementAPI) LoadDiagram(ctx context.Context, name string) (domain.OpenDiagram, error) {
	var pm processModel
	if err := m.do(ctx, http.MethodGet, "/process_models/"+url.PathEscape(name), nil, &pm); err != nil {
		return domain.OpenDiagram{}, err
	}
	return m.toDiagram(pm), nil
}

func (m *ManagementAPI) SaveDiagram(ctx context.Context, diagram domain.OpenDiagram) error {
	body := map[string]interface{}{
		"xml":               diagram.XML,
		"overwriteExisting": true,
	}
	return m.do(ctx, http.MethodPost, "/process_models/"+url.PathEscape(diagram.Name)+"/update", body, nil)
}

func (m *ManagementAPI) DeleteDiagram(ctx context.Context, diagram domain.OpenDiagram) error {
	return m.do(ctx, http.MethodDelete, "/process_models/"+url.PathEscape(diagram.Name), nil, nil)
}

// Authority returns the identity provider an internally hosted engine
// publishes for its users.
func (m *ManagementAPI) Authority(ctx context.Context) (string, error) {
	var resp struct {
		Authority string `json:"authority"`
	}
	if err := m.do(ctx, http.MethodGet, "/security/authority", nil, &resp); err != nil {
		return "", err
	}
	if resp.Authority == "" {
		return "", fmt.Errorf("engine %s returned no authority", m.baseURL)
	}
	return resp.Authority, nil
}

func (m *ManagementAPI) toDiagram(pm processModel) domain.OpenDiagram {
	return domain.OpenDiagram{
		ID:   pm.ID,
		Name: pm.ID,
		URI:  m.baseURL + "/process_models/" + url.PathEscape(pm.ID),
		XML:  pm.XML,
	}
}

func (m *ManagementAPI) do(ctx context.Context, method, path string, in, out interface{}) error {
	if m.baseURL == "" {
		return ErrNotOpened
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if m.identity != nil && m.identity.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.identity.Token)
	}

	httpClient := m.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrDiagramNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("engine request %s %s failed with status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
