// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package explain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the explainer family bound to a pipeline.
type Kind string

// Explainer families.
const (
	KindNone Kind = "none"
	KindSHAP Kind = "shap"
	KindLIME Kind = "lime"
)

// Variant is a concrete explainer implementation.
type Variant string

// Explainer variants.
const (
	VariantNone        Variant = "none"
	VariantKernel      Variant = "kernel"
	VariantPermutation Variant = "permutation"
	VariantExact       Variant = "exact"
	VariantTabular     Variant = "tabular"
)

// ErrUnknownExplainer is returned when a config names no registered variant.
var ErrUnknownExplainer = errors.New("unknown explainer")

// Config binds a pipeline to an explainer.
type Config struct {
	Kind            Kind           `json:"kind" yaml:"kind"`
	Module          string         `json:"module,omitempty" yaml:"module,omitempty"`
	ExplainerClass  string         `json:"explainer_class,omitempty" yaml:"explainer_class,omitempty"`
	ExplainerKwargs map[string]any `json:"explainer_kwargs,omitempty" yaml:"explainer_kwargs,omitempty"`
}

// None returns the config of a pipeline without an explainer.
func None() Config { return Config{Kind: KindNone} }

// Enabled reports whether the config binds an explainer.
func (c Config) Enabled() bool {
	return c.Kind != "" && c.Kind != KindNone
}

var knownModules = map[Kind][]string{
	KindSHAP: {"", "shap", "shap.explainers"},
	KindLIME: {"", "lime", "lime.lime_tabular"},
}

// ResolveVariant maps a config onto a registered variant.
func ResolveVariant(cfg Config) (Variant, error) {
	if !cfg.Enabled() {
		return VariantNone, nil
	}

	modules, ok := knownModules[cfg.Kind]
	if !ok {
		return "", fmt.Errorf("%w: kind %q", ErrUnknownExplainer, cfg.Kind)
	}
	moduleOK := false
	for _, m := range modules {
		if strings.EqualFold(cfg.Module, m) {
			moduleOK = true
			break
		}
	}
	if !moduleOK {
		return "", fmt.Errorf("%w: module %q for %s", ErrUnknownExplainer, cfg.Module, cfg.Kind)
	}

	class := strings.ToLower(cfg.ExplainerClass)
	if i := strings.LastIndex(class, "."); i >= 0 {
		class = class[i+1:]
	}
	class = strings.TrimSuffix(class, "explainer")

	switch cfg.Kind {
	case KindSHAP:
		switch class {
		case "", "kernel":
			return VariantKernel, nil
		case "permutation", "sampling":
			return VariantPermutation, nil
		case "exact":
			return VariantExact, nil
		}
	case KindLIME:
		switch class {
		case "", "tabular", "limetabular":
			return VariantTabular, nil
		}
	}
	return "", fmt.Errorf("%w: %s class %q", ErrUnknownExplainer, cfg.Kind, cfg.ExplainerClass)
}

// ExplainError reports a failed explanation of one anomalous row, or of
// the whole batch when Row is negative.
type ExplainError struct {
	Pipeline string
	Row      int
	Err      error
}

func (e *ExplainError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("explain pipeline %s: %v", e.Pipeline, e.Err)
	}
	return fmt.Sprintf("explain pipeline %s row %d: %v", e.Pipeline, e.Row, e.Err)
}

func (e *ExplainError) Unwrap() error { return e.Err }
