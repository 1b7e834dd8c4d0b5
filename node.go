package trolyindex

import (
	"context"
)

type NodeArg[Context any] struct {
	Context Context
	Client  *Client
	// Metadata set by a runner is attached to the node's span.
	Metadata map[string]any
}

type Node[Context any] struct {
	Name   string
	Runner func(ctx context.Context, arg NodeArg[Context]) (Context, string, error)
}

func NewNode[Context any](name string, runner func(ctx context.Context, arg NodeArg[Context]) (Context, string, error)) Node[Context] {
	return Node[Context]{
		Name:   name,
		Runner: runner,
	}
}
