// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package explain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tomtom215/packetlens/internal/anomaly"
	"github.com/tomtom215/packetlens/internal/inference"
	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/metrics"
)

// ErrStopped is returned by a store that no longer accepts writes because
// its session is stopping. Dispatch stops at the first such error.
var ErrStopped = errors.New("anomaly persistence stopped")

// Options configures a Dispatcher.
type Options struct {
	Store        anomaly.Store
	Renderer     Renderer
	OutputDir    string
	ScenarioID   string
	Execution    int
	IsProduction bool

	// OnAnomaly is called after each event is persisted.
	OnAnomaly func(*anomaly.Event)

	// OnError is called for explanation and persistence failures.
	OnError func(error)
}

// Background is a training reference sample in processed feature space.
type Background struct {
	Columns []string
	Matrix  [][]float64
}

// Input is one pipeline's result on one batch.
type Input struct {
	Result     *inference.Result
	Config     Config
	Background *Background
}

// Dispatcher persists anomalous rows with optional explanations.
// A Dispatcher is owned by one session and is not shared across scenarios.
type Dispatcher struct {
	opts Options

	mu        sync.Mutex
	loaded    bool
	nextIndex int
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Renderer == nil {
		opts.Renderer = SVGRenderer{}
	}
	return &Dispatcher{opts: opts}
}

// allocateIndex returns the next running anomaly index, loading the
// starting point from the store on first use.
func (d *Dispatcher) allocateIndex(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		n, err := d.opts.Store.Count(ctx, d.opts.ScenarioID, d.opts.Execution)
		if err != nil {
			return 0, fmt.Errorf("count prior anomalies: %w", err)
		}
		d.nextIndex = n + 1
		d.loaded = true
	}
	idx := d.nextIndex
	d.nextIndex++
	return idx, nil
}

// releaseIndex returns an index whose event was never stored so the next
// anomaly reuses it. Only the most recently allocated index can be released.
func (d *Dispatcher) releaseIndex(idx int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded && idx == d.nextIndex-1 {
		d.nextIndex = idx
	}
}

func (d *Dispatcher) report(err error) {
	if d.opts.OnError != nil {
		d.opts.OnError(err)
		return
	}
	logging.Error().Err(err).Msg("Anomaly dispatch failed")
}

// Dispatch persists one event per anomalous row of the result and returns
// the persisted events. Explanation failures are reported and the row is
// persisted without attributions. The returned error is non-nil only when
// persistence itself failed.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) ([]*anomaly.Event, error) {
	res := in.Result
	if res == nil || len(res.Anomalies) == 0 {
		return nil, nil
	}
	pipelineID := res.Pipeline.ID

	var explainer Explainer
	if in.Config.Enabled() {
		var background [][]float64
		if in.Background != nil {
			background = inference.Align(in.Background.Matrix, in.Background.Columns, res.Columns)
		}
		var err error
		explainer, err = New(in.Config, res.Pipeline.Model, res.Columns, background)
		if err != nil {
			metrics.ExplainErrors.WithLabelValues(string(in.Config.Kind)).Inc()
			d.report(&ExplainError{Pipeline: pipelineID, Row: -1, Err: err})
			explainer = nil
		}
	}

	events := make([]*anomaly.Event, 0, len(res.Anomalies))
	for _, row := range res.Anomalies {
		if err := ctx.Err(); err != nil {
			return events, err
		}

		ev := anomaly.NewEvent(d.opts.ScenarioID, d.opts.Execution)
		ev.ModelName = res.Pipeline.ModelName
		ev.PipelineID = pipelineID
		ev.IsProduction = d.opts.IsProduction
		ev.Description = Describe(res.Raw, row)
		ev.RawContext = RawContext(res.Raw, row)
		ev.SourceIP, ev.SourcePort = Source(res.Raw, row)
		ev.FeatureValues = featureValues(res.Columns, res.Matrix[row])

		var attrs []Attribution
		if explainer != nil {
			var err error
			attrs, err = d.explainRow(explainer, in.Config, res, row)
			if err != nil {
				metrics.ExplainErrors.WithLabelValues(string(in.Config.Kind)).Inc()
				d.report(&ExplainError{Pipeline: pipelineID, Row: row, Err: err})
				attrs = nil
			}
		}

		idx, err := d.allocateIndex(ctx)
		if err != nil {
			return events, err
		}
		ev.Index = idx

		var chart *pendingChart
		if len(attrs) > 0 {
			ev.Attributions = make(map[string]float64, len(attrs))
			for _, a := range attrs {
				ev.Attributions[a.Feature] = a.Value
			}
			if top, ok := TopFeature(attrs); ok {
				ev.FeatureName = top.Feature
			}
			chart = d.renderChart(ev, row, in.Config.Kind, attrs)
		}

		if err := d.opts.Store.Save(ctx, ev); err != nil {
			chart.discard()
			d.releaseIndex(idx)
			if errors.Is(err, ErrStopped) {
				return events, err
			}
			d.report(fmt.Errorf("persist anomaly %d of pipeline %s: %w", idx, pipelineID, err))
			continue
		}
		if err := chart.commit(); err != nil {
			d.report(&ExplainError{Pipeline: pipelineID, Row: row, Err: err})
		}

		events = append(events, ev)
		if d.opts.OnAnomaly != nil {
			d.opts.OnAnomaly(ev)
		}
	}
	return events, nil
}

// explainRow returns cleaned attributions for one row. Rankers report their
// top-N; other explainers report every column.
func (d *Dispatcher) explainRow(explainer Explainer, cfg Config, res *inference.Result, row int) (attrs []Attribution, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("explainer panic: %v", rec)
		}
	}()

	x := make([]float64, len(res.Matrix[row]))
	for i, v := range res.Matrix[row] {
		x[i] = clean(v)
	}

	if ranker, ok := explainer.(Ranker); ok {
		attrs, err = ranker.Rank(x, kwargs(cfg.ExplainerKwargs).int("num_features", 0))
	} else {
		var values []float64
		values, err = explainer.Explain(x)
		attrs = Attributions(res.Columns, values)
	}
	if err != nil {
		return nil, err
	}
	for i := range attrs {
		attrs[i].Value = clean(attrs[i].Value)
	}
	return attrs, nil
}

// pendingChart is a rendered chart staged next to its final path until the
// event referencing it is stored.
type pendingChart struct {
	staged string
	path   string
}

func (c *pendingChart) commit() error {
	if c == nil {
		return nil
	}
	if err := os.Rename(c.staged, c.path); err != nil {
		os.Remove(c.staged)
		return fmt.Errorf("publish chart: %w", err)
	}
	return nil
}

func (c *pendingChart) discard() {
	if c != nil {
		os.Remove(c.staged)
	}
}

// renderChart renders the attribution chart to a staging file and records
// the final path on the event. It returns nil when rendering failed.
func (d *Dispatcher) renderChart(ev *anomaly.Event, row int, kind Kind, attrs []Attribution) *pendingChart {
	path := ChartPath(d.opts.OutputDir, d.opts.ScenarioID, d.opts.Execution, ev.Index)
	staged := path + ".pending"
	title := fmt.Sprintf("%s anomaly %d: %s", ev.ModelName, ev.Index, ev.Description)
	if err := d.opts.Renderer.Render(staged, title, attrs); err != nil {
		d.report(&ExplainError{Pipeline: ev.PipelineID, Row: row, Err: fmt.Errorf("render chart: %w", err)})
		return nil
	}
	switch kind {
	case KindSHAP:
		ev.Artifacts.ShapLocal = append(ev.Artifacts.ShapLocal, path)
	case KindLIME:
		ev.Artifacts.LimeLocal = append(ev.Artifacts.LimeLocal, path)
	}
	return &pendingChart{staged: staged, path: path}
}
