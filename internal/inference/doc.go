// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package inference evaluates compiled anomaly pipelines against batches of
captured records.

A Pipeline is an ordered list of preprocessing Steps followed by a Model.
Steps and models are loaded from fitted JSON artifacts (see DecodeTransformer
and DecodeModel). Each artifact carries a "kind" field selecting one of a
closed set of implementations:

	Transformers: standard_scaler, minmax_scaler, simple_imputer, one_hot, pca
	Models:       zscore, linear

Records arrive as a Frame of mixed numeric and text values. Text values are
coerced to numbers by the Normalizer as the steps consume them, and a final
pass coerces whatever remains before the model predicts:

  - address columns become their integer ordinal
  - protocol columns become their IANA protocol number, or -1 when unknown
  - other text is parsed as a number, falling back to zero

Models return one label per row. AnomalyLabel (-1) marks an anomaly.

# Failure Isolation

Runner.RunAll evaluates every pipeline on the same batch. A failure in one
pipeline, including a panic inside a step or model, is converted to a
StageError, logged and counted, and never prevents the other pipelines from
being evaluated.
*/
package inference
