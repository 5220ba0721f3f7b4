// Package explorer builds the connectors that back open solutions: a local
// folder of BPMN files or a remote process engine's management API.
package explorer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"solutionhub/internal/domain"
)

// Factory creates unopened connectors.
type Factory interface {
	NewFileSystemSolutionExplorer(ctx context.Context) (domain.Connector, error)
	NewManagementAPISolutionExplorer(ctx context.Context) (domain.Connector, error)
}

type DefaultFactory struct {
	httpClient *http.Client
}

func NewFactory(engineTimeout time.Duration) *DefaultFactory {
	return &DefaultFactory{httpClient: &http.Client{Timeout: engineTimeout}}
}

func (f *DefaultFactory) NewFileSystemSolutionExplorer(ctx context.Context) (domain.Connector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &FileSystem{}, nil
}

func (f *DefaultFactory) NewManagementAPISolutionExplorer(ctx context.Context) (domain.Connector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ManagementAPI{httpClient: f.httpClient}, nil
}

// Resolve picks the connector kind from the uri scheme and opens the solution
// with it.
func Resolve(ctx context.Context, factory Factory, uri string, identity *domain.Identity) (domain.Connector, error) {
	var (
		conn domain.Connector
		err  error
	)
	if domain.IsRemoteURI(uri) {
		conn, err = factory.NewManagementAPISolutionExplorer(ctx)
	} else {
		conn, err = factory.NewFileSystemSolutionExplorer(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("create connector for %s: %w", uri, err)
	}
	if err := conn.OpenSolution(ctx, uri, identity); err != nil {
		return nil, fmt.Errorf("open solution %s: %w", uri, err)
	}
	return conn, nil
}
