// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package graph

import (
	"github.com/tomtom215/packetlens/internal/explain"
	"github.com/tomtom215/packetlens/internal/inference"
)

// Category is the role a node type plays in a graph.
type Category string

// Node categories.
const (
	CategorySource         Category = "source"
	CategoryPreprocessing  Category = "preprocessing"
	CategoryModel          Category = "model"
	CategoryExplainability Category = "explainability"
	CategoryMonitor        Category = "monitor"
)

// NodeType declares a node type's category and class identity.
type NodeType struct {
	Name     string
	Category Category

	// Class is the implementation identity recorded for the type.
	Class string

	// ArtifactKind, when set, is the kind the node's fitted artifact must have.
	ArtifactKind string

	// Explain is the explainer family of explainability nodes.
	Explain explain.Kind
}

// TypeTable maps node type names to their declarations.
type TypeTable map[string]NodeType

// Register adds or replaces a node type.
func (t TypeTable) Register(nt NodeType) {
	t[nt.Name] = nt
}

// Lookup returns the declaration of a node type.
func (t TypeTable) Lookup(name string) (NodeType, bool) {
	nt, ok := t[name]
	return nt, ok
}

// DefaultTypeTable returns the built-in node types.
func DefaultTypeTable() TypeTable {
	t := TypeTable{}
	for _, nt := range []NodeType{
		{Name: "PacketCapture", Category: CategorySource, Class: "capture.packet"},
		{Name: "FlowCapture", Category: CategorySource, Class: "capture.flow"},
		{Name: "SyscallCapture", Category: CategorySource, Class: "capture.syscalls"},

		{Name: "StandardScaler", Category: CategoryPreprocessing, Class: "sklearn.preprocessing.StandardScaler", ArtifactKind: inference.KindStandardScaler},
		{Name: "MinMaxScaler", Category: CategoryPreprocessing, Class: "sklearn.preprocessing.MinMaxScaler", ArtifactKind: inference.KindMinMaxScaler},
		{Name: "SimpleImputer", Category: CategoryPreprocessing, Class: "sklearn.impute.SimpleImputer", ArtifactKind: inference.KindSimpleImputer},
		{Name: "OneHotEncoder", Category: CategoryPreprocessing, Class: "sklearn.preprocessing.OneHotEncoder", ArtifactKind: inference.KindOneHot},
		{Name: "PCA", Category: CategoryPreprocessing, Class: "sklearn.decomposition.PCA", ArtifactKind: inference.KindPCA},

		{Name: "IsolationForest", Category: CategoryModel, Class: "sklearn.ensemble.IsolationForest"},
		{Name: "OneClassSVM", Category: CategoryModel, Class: "sklearn.svm.OneClassSVM"},
		{Name: "LocalOutlierFactor", Category: CategoryModel, Class: "sklearn.neighbors.LocalOutlierFactor"},
		{Name: "ZScoreDetector", Category: CategoryModel, Class: "packetlens.ZScoreDetector", ArtifactKind: inference.KindZScore},

		{Name: "SHAP", Category: CategoryExplainability, Class: "shap", Explain: explain.KindSHAP},
		{Name: "LIME", Category: CategoryExplainability, Class: "lime", Explain: explain.KindLIME},

		{Name: "Monitor", Category: CategoryMonitor, Class: "monitor"},
		{Name: "AlertSink", Category: CategoryMonitor, Class: "alert"},
	} {
		t.Register(nt)
	}
	return t
}
