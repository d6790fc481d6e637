// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/metrics"
)

// Pipeline is a compiled, ready-to-run scoring pipeline.
type Pipeline struct {
	// ID is the model node id the pipeline was compiled from.
	ID string

	// ModelName is the model node's type name.
	ModelName string

	Model Model
	Steps []Step

	// TrainingReference is an optional raw sample of training data used
	// as background by explainers that need one.
	TrainingReference *Frame
}

// Stage names reported in StageError.
const (
	StagePreprocess = "preprocess"
	StageNormalize  = "normalize"
	StagePredict    = "predict"
)

// StageError reports a failure of one pipeline stage on one batch.
type StageError struct {
	Pipeline string
	Stage    string
	NodeID   string
	Err      error
}

func (e *StageError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("pipeline %s: %s (node %s): %v", e.Pipeline, e.Stage, e.NodeID, e.Err)
	}
	return fmt.Sprintf("pipeline %s: %s: %v", e.Pipeline, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result is the outcome of evaluating one pipeline on one batch.
type Result struct {
	Pipeline *Pipeline

	// Raw is the batch as captured, used for descriptions.
	Raw *Frame

	// Columns and Matrix are the preprocessed features the model scored.
	Columns []string
	Matrix  [][]float64

	Labels []int

	// Anomalies are the row indices labelled as anomalies, in row order.
	Anomalies []int
}

// Runner evaluates pipelines against record batches.
type Runner struct {
	normalizer *Normalizer
}

// NewRunner creates a runner using the given normalizer, or a default one when nil.
func NewRunner(n *Normalizer) *Runner {
	if n == nil {
		n = NewNormalizer()
	}
	return &Runner{normalizer: n}
}

// Normalizer returns the runner's normalizer.
func (r *Runner) Normalizer() *Normalizer { return r.normalizer }

// Process runs the pipeline's steps and the final normalization pass.
// It returns the feature columns and numeric matrix the model consumes.
func (r *Runner) Process(p *Pipeline, raw *Frame) (columns []string, matrix [][]float64, err error) {
	frame := raw
	for _, step := range p.Steps {
		next, stepErr := r.runStep(p, step, frame)
		if stepErr != nil {
			return nil, nil, stepErr
		}
		frame = next
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &StageError{Pipeline: p.ID, Stage: StageNormalize, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return append([]string(nil), frame.Columns...), r.normalizer.Matrix(frame), nil
}

func (r *Runner) runStep(p *Pipeline, step Step, in *Frame) (out *Frame, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &StageError{Pipeline: p.ID, Stage: StagePreprocess, NodeID: step.NodeID, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	out, err = step.Transformer.Transform(in, r.normalizer)
	if err != nil {
		return nil, &StageError{Pipeline: p.ID, Stage: StagePreprocess, NodeID: step.NodeID, Err: err}
	}
	return out, nil
}

// Evaluate preprocesses the batch and predicts labels with the pipeline's model.
func (r *Runner) Evaluate(p *Pipeline, raw *Frame) (*Result, error) {
	cols, matrix, err := r.Process(p, raw)
	if err != nil {
		return nil, err
	}

	labels, err := r.predict(p, matrix, cols)
	if err != nil {
		return nil, err
	}
	if len(labels) != len(matrix) {
		return nil, &StageError{
			Pipeline: p.ID,
			Stage:    StagePredict,
			Err:      fmt.Errorf("model returned %d labels for %d rows", len(labels), len(matrix)),
		}
	}

	res := &Result{Pipeline: p, Raw: raw, Columns: cols, Matrix: matrix, Labels: labels}
	for i, l := range labels {
		if IsAnomaly(l) {
			res.Anomalies = append(res.Anomalies, i)
		}
	}
	return res, nil
}

func (r *Runner) predict(p *Pipeline, matrix [][]float64, cols []string) (labels []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &StageError{Pipeline: p.ID, Stage: StagePredict, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	labels, err = p.Model.Predict(matrix, cols)
	if err != nil {
		return nil, &StageError{Pipeline: p.ID, Stage: StagePredict, Err: err}
	}
	return labels, nil
}

// RunAll evaluates every pipeline on the batch. Failing pipelines are
// logged, counted and reported through onError; the others still run.
// Results are returned in pipeline order, without the failed ones.
func (r *Runner) RunAll(ctx context.Context, pipelines []*Pipeline, raw *Frame, onError func(error)) []*Result {
	results := make([]*Result, 0, len(pipelines))
	for _, p := range pipelines {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		res, err := r.Evaluate(p, raw)
		if err != nil {
			stage := StagePredict
			var se *StageError
			if errors.As(err, &se) {
				stage = se.Stage
			}
			metrics.RecordPipelineError(p.ID, stage)
			logging.Ctx(ctx).Error().Err(err).
				Str("pipeline", p.ID).
				Str("stage", stage).
				Msg("Pipeline evaluation failed")
			if onError != nil {
				onError(err)
			}
			continue
		}
		metrics.RecordBatch(p.ID, time.Since(start), len(res.Anomalies))
		results = append(results, res)
	}
	return results
}
