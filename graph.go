package trolyindex

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	GraphExit  string = ""
	GraphRetry string = "__built_in__retry"
)

var tracer = otel.Tracer("github.com/mhrlife/troly-index")

type Graph[Context any] struct {
	name       string
	nodes      map[string]Node[Context]
	entrypoint string
}

func NewGraph[Context any](name string, nodes ...Node[Context]) (*Graph[Context], error) {
	if len(nodes) == 0 {
		return nil, errors.New("graph must have at least one node")
	}

	nodeMap := make(map[string]Node[Context])
	for _, node := range nodes {
		if _, exists := nodeMap[node.Name]; exists {
			return nil, fmt.Errorf("duplicate node name found: %s", node.Name)
		}

		nodeMap[node.Name] = node
	}

	return &Graph[Context]{
		name:       name,
		nodes:      nodeMap,
		entrypoint: nodes[0].Name,
	}, nil
}

func (g *Graph[Context]) Name() string { return g.name }

// Run executes nodes from the first one until a node returns GraphExit. The
// whole run is one span with a child span per node.
func (g *Graph[Context]) Run(ctx context.Context, client *Client, initialContext Context) (*Context, error) {
	ctx, span := tracer.Start(ctx, "graph_"+g.name)
	defer span.End()

	result, err := g.run(ctx, client, initialContext)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return result, err
}

func (g *Graph[Context]) run(ctx context.Context, client *Client, initialContext Context) (*Context, error) {
	currentContext := initialContext
	currentNodeName := g.entrypoint

	for currentNodeName != GraphExit {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "graph %s interrupted before node %s", g.name, currentNodeName)
		}

		node, ok := g.nodes[currentNodeName]
		if !ok {
			return nil, fmt.Errorf("node '%s' not found in graph", currentNodeName)
		}

		nodeArg := NodeArg[Context]{
			Context:  currentContext,
			Client:   client,
			Metadata: make(map[string]any),
		}

		var err error
		var nextNodeName string
		currentContext, nextNodeName, err = g.runNode(ctx, node, nodeArg)
		if err != nil {
			client.logger.Error("Node execution failed",
				"graph", g.name,
				"node_name", node.Name,
				"error", err,
			)

			return nil, errors.Wrapf(err, "failed to run node %s", node.Name)
		}

		client.logger.Debug("Node finished",
			"graph", g.name,
			"node_name", node.Name,
			"next", nextNodeName,
		)

		if nextNodeName == GraphRetry {
			continue
		}

		currentNodeName = nextNodeName
	}

	return &currentContext, nil
}

func (g *Graph[Context]) runNode(ctx context.Context, node Node[Context], arg NodeArg[Context]) (Context, string, error) {
	ctx, span := tracer.Start(ctx, "node_"+node.Name, trace.WithAttributes(
		attribute.String("graph.name", g.name),
	))
	defer span.End()

	next, nextName, err := node.Runner(ctx, arg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	for k, v := range arg.Metadata {
		span.SetAttributes(attribute.String("node."+k, fmt.Sprint(v)))
	}

	return next, nextName, err
}
