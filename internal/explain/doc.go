// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package explain turns flagged rows into persisted anomaly records, with
feature attributions when the pipeline is bound to an explainer.

# Registry

Explainers form a closed set resolved from a Config by ResolveVariant:

	Kind   Variant       Background   Method
	none   -             -            description only
	shap   kernel        required     occlusion against background rows, rescaled to be additive
	shap   permutation   required     sampled permutations from background rows
	shap   exact         no           exhaustive coalitions against a zero baseline
	lime   tabular       required     weighted local ridge regression, ranked top-N

Attributions are computed through the model's decision function, so they
work for every Model implementation without model-specific code.

# Dispatch

For each anomalous row the Dispatcher allocates the next running index for
the (scenario, execution) pair, renders an attribution chart to

	{OutputDir}/{scenarioID}/{execution}/anomaly_{index}.svg

and persists an anomaly.Event. When explanation fails, the row is still
persisted without attributions and the failure is reported as an
*ExplainError.
*/
package explain
