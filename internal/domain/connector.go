package domain

import (
	"context"
	"strings"
)

// Connector is the capability that lists, loads and saves the diagrams of one
// solution. Filesystem folders and remote engines each provide one.
type Connector interface {
	OpenSolution(ctx context.Context, uri string, identity *Identity) error
	LoadSolution(ctx context.Context) (Solution, error)
	LoadDiagram(ctx context.Context, name string) (OpenDiagram, error)
	SaveDiagram(ctx context.Context, diagram OpenDiagram) error
	DeleteDiagram(ctx context.Context, diagram OpenDiagram) error
}

func IsRemoteURI(uri string) bool {
	return strings.HasPrefix(uri, "http")
}
