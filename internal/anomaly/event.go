// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

// Package anomaly defines the persisted anomaly record and its stores.
//
// Records are append-only. Each one carries a running index that is unique
// within a (scenario, execution) pair; the next index is always the number of
// stored records for that pair plus one, so numbering resumes correctly after
// a restart.
package anomaly

import (
	"time"

	"github.com/google/uuid"
)

// Artifacts lists rendered explanation artifacts by explainer family and scope.
type Artifacts struct {
	ShapLocal  []string `json:"shap_local,omitempty"`
	ShapGlobal []string `json:"shap_global,omitempty"`
	LimeLocal  []string `json:"lime_local,omitempty"`
	LimeGlobal []string `json:"lime_global,omitempty"`
}

// Empty reports whether no artifacts were recorded.
func (a Artifacts) Empty() bool {
	return len(a.ShapLocal) == 0 && len(a.ShapGlobal) == 0 && len(a.LimeLocal) == 0 && len(a.LimeGlobal) == 0
}

// Event is one detected anomaly.
type Event struct {
	ID         string `json:"id"`
	ScenarioID string `json:"scenario_id"`
	Execution  int    `json:"execution"`
	Index      int    `json:"index"`

	// ModelName is the type of the model node that flagged the row.
	ModelName string `json:"model_name"`
	// PipelineID is the graph id of that model node.
	PipelineID string `json:"pipeline_id"`

	// FeatureName is the feature with the largest absolute attribution.
	// Empty when the anomaly was not explained.
	FeatureName string `json:"feature_name,omitempty"`

	// FeatureValues holds the scored feature values of the row. Non-finite
	// values are stored as zero.
	FeatureValues map[string]float64 `json:"feature_values"`

	// Attributions holds the per-feature explanation values, when explained.
	Attributions map[string]float64 `json:"attributions,omitempty"`

	Description  string    `json:"description"`
	IsProduction bool      `json:"is_production"`
	RawContext   string    `json:"raw_context,omitempty"`
	Artifacts    Artifacts `json:"artifacts"`

	SourceIP   string `json:"source_ip,omitempty"`
	SourcePort int    `json:"source_port"`

	CreatedAt time.Time `json:"created_at"`
}

// NewEvent returns an event with a fresh id and creation time.
func NewEvent(scenarioID string, execution int) *Event {
	return &Event{
		ID:            uuid.New().String(),
		ScenarioID:    scenarioID,
		Execution:     execution,
		FeatureValues: make(map[string]float64),
		SourcePort:    -1,
		CreatedAt:     time.Now().UTC(),
	}
}
