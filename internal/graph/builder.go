// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/packetlens/internal/explain"
	"github.com/tomtom215/packetlens/internal/inference"
	"github.com/tomtom215/packetlens/internal/logging"
)

// ErrUnknownNodeType is returned for nodes whose type is not in the TypeTable.
var ErrUnknownNodeType = errors.New("unknown node type")

// ErrArtifactKind is returned when an artifact does not match its node type.
var ErrArtifactKind = errors.New("artifact kind does not match node type")

// ErrNoPipelines is returned when a graph compiles to no pipelines at all.
var ErrNoPipelines = errors.New("no pipelines compiled")

// PipelineDef is a compiled pipeline with its explainer binding.
// It is immutable after Build and owned by the session that built it.
type PipelineDef struct {
	inference.Pipeline

	Explain explain.Config

	// ExplainNodeID is the graph id of the bound explainer node, if any.
	ExplainNodeID string
}

// CompileError reports a pipeline that failed to build.
type CompileError struct {
	PipelineID string
	NodeID     string
	Err        error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile pipeline %s: node %s: %v", e.PipelineID, e.NodeID, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Builder compiles graphs into pipelines.
type Builder struct {
	Types  TypeTable
	Loader ArtifactLoader
}

// NewBuilder returns a builder with the default type table and a file
// loader rooted at artifactDir.
func NewBuilder(artifactDir string) *Builder {
	return &Builder{Types: DefaultTypeTable(), Loader: FileArtifactLoader{BaseDir: artifactDir}}
}

// Build compiles every model node of the graph into a PipelineDef, in
// topological order. A validation failure is fatal and returned as the only
// error with no pipelines. Otherwise each failed pipeline contributes a
// *CompileError and the rest are still returned.
func (b *Builder) Build(ctx context.Context, g *Graph, scenarioID string) ([]*PipelineDef, []error) {
	if err := Validate(g, b.Types); err != nil {
		return nil, []error{err}
	}
	order, err := TopologicalOrder(g)
	if err != nil {
		return nil, []error{err}
	}

	var defs []*PipelineDef
	var errs []error
	for _, id := range order {
		if ctx.Err() != nil {
			return defs, append(errs, ctx.Err())
		}
		nt, ok := b.Types.Lookup(g.Elements[id].Type)
		if !ok || nt.Category != CategoryModel {
			continue
		}
		def, err := b.buildPipeline(ctx, g, id, nt, scenarioID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}

func (b *Builder) buildPipeline(ctx context.Context, g *Graph, modelID string, modelType NodeType, scenarioID string) (*PipelineDef, error) {
	compileErr := func(nodeID string, err error) error {
		return &CompileError{PipelineID: modelID, NodeID: nodeID, Err: err}
	}

	stepIDs, err := b.ancestorSteps(g, modelID)
	if err != nil {
		return nil, err
	}

	def := &PipelineDef{Explain: explain.None()}
	def.ID = modelID
	def.ModelName = g.Elements[modelID].Type

	for _, id := range stepIDs {
		t, err := b.Loader.LoadTransformer(ctx, id, scenarioID)
		if err != nil {
			return nil, compileErr(id, err)
		}
		nt, _ := b.Types.Lookup(g.Elements[id].Type)
		if nt.ArtifactKind != "" && t.Kind() != nt.ArtifactKind {
			return nil, compileErr(id, fmt.Errorf("%w: %s artifact for %s node", ErrArtifactKind, t.Kind(), nt.Name))
		}
		def.Steps = append(def.Steps, inference.Step{NodeID: id, Transformer: t})
	}

	model, err := b.Loader.LoadModel(ctx, modelID, scenarioID)
	if err != nil {
		return nil, compileErr(modelID, err)
	}
	if modelType.ArtifactKind != "" && model.Kind() != modelType.ArtifactKind {
		return nil, compileErr(modelID, fmt.Errorf("%w: %s artifact for %s node", ErrArtifactKind, model.Kind(), modelType.Name))
	}
	def.Model = model

	ref, err := b.Loader.LoadReference(ctx, modelID, scenarioID)
	if err != nil {
		logging.Warn().Err(err).Str("pipeline", modelID).Msg("Ignoring unreadable training reference")
	}
	def.TrainingReference = ref

	if explainID, cfg, ok := b.explainBinding(g, modelID); ok {
		def.ExplainNodeID = explainID
		def.Explain = cfg
	}
	return def, nil
}

// ancestorSteps walks backward from the model depth-first and returns its
// preprocessing ancestors in root-to-leaf order.
func (b *Builder) ancestorSteps(g *Graph, modelID string) ([]string, error) {
	parents := g.parents()
	visited := map[string]bool{modelID: true}
	var steps []string

	var walk func(id string) error
	walk = func(id string) error {
		for _, p := range parents[id] {
			if visited[p] {
				continue
			}
			visited[p] = true
			if err := walk(p); err != nil {
				return err
			}
			nt, ok := b.Types.Lookup(g.Elements[p].Type)
			if !ok {
				return &CompileError{
					PipelineID: modelID,
					NodeID:     p,
					Err:        fmt.Errorf("%w: %q", ErrUnknownNodeType, g.Elements[p].Type),
				}
			}
			if nt.Category == CategoryPreprocessing {
				steps = append(steps, p)
			}
		}
		return nil
	}
	if err := walk(modelID); err != nil {
		return nil, err
	}
	return steps, nil
}

// explainBinding walks forward from the model breadth-first and binds the
// first explainability node found.
func (b *Builder) explainBinding(g *Graph, modelID string) (string, explain.Config, bool) {
	children := g.children()
	visited := map[string]bool{modelID: true}
	queue := append([]string(nil), children[modelID]...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		node := g.Elements[id]
		if nt, ok := b.Types.Lookup(node.Type); ok && nt.Category == CategoryExplainability {
			return id, explainConfig(nt, node.Parameters), true
		}
		queue = append(queue, children[id]...)
	}
	return "", explain.None(), false
}

// explainConfig reads an explainer node's parameters.
func explainConfig(nt NodeType, params map[string]any) explain.Config {
	cfg := explain.Config{Kind: nt.Explain}
	str := func(keys ...string) string {
		for _, k := range keys {
			if s, ok := params[k].(string); ok && s != "" {
				return s
			}
		}
		return ""
	}
	cfg.Module = str("module")
	cfg.ExplainerClass = str("explainer_class", "explainer", "class")
	for _, k := range []string{"explainer_kwargs", "kwargs"} {
		if kw, ok := params[k].(map[string]any); ok {
			cfg.ExplainerKwargs = kw
			break
		}
	}
	return cfg
}

// Compiler compiles the graph file of a scenario on demand.
type Compiler struct {
	Builder   *Builder
	GraphPath string
}

// Compile loads the graph and builds its pipelines. Validation failures and
// graphs with no buildable pipeline are errors; individual pipeline failures
// are logged and skipped.
func (c *Compiler) Compile(ctx context.Context, scenarioID string) ([]*PipelineDef, error) {
	g, err := LoadFile(c.GraphPath)
	if err != nil {
		return nil, err
	}

	defs, errs := c.Builder.Build(ctx, g, scenarioID)
	var compileErrs []error
	for _, err := range errs {
		var ce *CompileError
		if !errors.As(err, &ce) {
			return nil, err
		}
		logging.Warn().Err(err).
			Str("pipeline", ce.PipelineID).
			Str("node", ce.NodeID).
			Str("scenario", scenarioID).
			Msg("Pipeline skipped")
		compileErrs = append(compileErrs, err)
	}

	if len(defs) == 0 {
		return nil, errors.Join(append([]error{ErrNoPipelines}, compileErrs...)...)
	}
	return defs, nil
}
