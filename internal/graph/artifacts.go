// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package graph

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tomtom215/packetlens/internal/inference"
)

// ErrArtifactNotFound is returned when a node has no fitted artifact.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactLoader loads the fitted artifacts of graph nodes for a scenario.
type ArtifactLoader interface {
	LoadTransformer(ctx context.Context, nodeID, scenarioID string) (inference.Transformer, error)
	LoadModel(ctx context.Context, nodeID, scenarioID string) (inference.Model, error)

	// LoadReference returns the training reference sample of a model node,
	// or nil without error when there is none.
	LoadReference(ctx context.Context, nodeID, scenarioID string) (*inference.Frame, error)
}

// FileArtifactLoader reads artifacts from a directory.
type FileArtifactLoader struct {
	BaseDir string
}

// ArtifactPath returns the artifact path of a node.
func (l FileArtifactLoader) ArtifactPath(nodeID, scenarioID string) string {
	return filepath.Join(l.BaseDir, fmt.Sprintf("%s_%s.json", nodeID, scenarioID))
}

// ReferencePath returns the training reference path of a model node.
func (l FileArtifactLoader) ReferencePath(nodeID, scenarioID string) string {
	return filepath.Join(l.BaseDir, fmt.Sprintf("%s_%s.reference.json", nodeID, scenarioID))
}

func (l FileArtifactLoader) read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return data, nil
}

// LoadTransformer implements ArtifactLoader.
func (l FileArtifactLoader) LoadTransformer(_ context.Context, nodeID, scenarioID string) (inference.Transformer, error) {
	path := l.ArtifactPath(nodeID, scenarioID)
	data, err := l.read(path)
	if err != nil {
		return nil, err
	}
	t, err := inference.DecodeTransformer(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadModel implements ArtifactLoader.
func (l FileArtifactLoader) LoadModel(_ context.Context, nodeID, scenarioID string) (inference.Model, error) {
	path := l.ArtifactPath(nodeID, scenarioID)
	data, err := l.read(path)
	if err != nil {
		return nil, err
	}
	m, err := inference.DecodeModel(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadReference implements ArtifactLoader.
func (l FileArtifactLoader) LoadReference(_ context.Context, nodeID, scenarioID string) (*inference.Frame, error) {
	path := l.ReferencePath(nodeID, scenarioID)
	data, err := l.read(path)
	if errors.Is(err, ErrArtifactNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f, err := inference.DecodeReference(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
