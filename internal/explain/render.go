// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package explain

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Renderer writes an attribution chart to path.
type Renderer interface {
	Render(path, title string, attrs []Attribution) error
}

// SVGRenderer draws a horizontal bar chart of attributions, largest first.
type SVGRenderer struct {
	// MaxBars limits the number of bars drawn. Zero means 20.
	MaxBars int
}

const (
	svgWidth     = 640
	svgLabelW    = 200
	svgBarH      = 18
	svgBarGap    = 6
	svgTitleH    = 32
	svgPositive  = "#d62728"
	svgNegative  = "#1f77b4"
	svgFontStyle = `font-family="sans-serif" font-size="12"`
)

// Render implements Renderer. Parent directories are created as needed and
// the file is replaced atomically.
func (r SVGRenderer) Render(path, title string, attrs []Attribution) error {
	limit := r.MaxBars
	if limit <= 0 {
		limit = 20
	}
	bars := rankAttributions(attrs, limit)

	var maxAbs float64
	for _, a := range bars {
		if abs(a.Value) > maxAbs {
			maxAbs = abs(a.Value)
		}
	}
	if maxAbs == 0 {
		maxAbs = 1
	}

	half := float64(svgWidth-svgLabelW-20) / 2
	axis := float64(svgLabelW) + half
	height := svgTitleH + len(bars)*(svgBarH+svgBarGap) + 10

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		svgWidth, height, svgWidth, height)
	fmt.Fprintf(&b, `<text x="10" y="20" %s font-weight="bold">%s</text>`+"\n", svgFontStyle, html.EscapeString(title))
	fmt.Fprintf(&b, `<line x1="%.1f" y1="%d" x2="%.1f" y2="%d" stroke="#999"/>`+"\n", axis, svgTitleH-4, axis, height-6)

	for i, a := range bars {
		y := svgTitleH + i*(svgBarH+svgBarGap)
		w := abs(a.Value) / maxAbs * half
		x := axis
		color := svgPositive
		if a.Value < 0 {
			x = axis - w
			color = svgNegative
		}
		fmt.Fprintf(&b, `<text x="%d" y="%d" %s text-anchor="end">%s</text>`+"\n",
			svgLabelW-8, y+svgBarH-5, svgFontStyle, html.EscapeString(a.Feature))
		fmt.Fprintf(&b, `<rect x="%.1f" y="%d" width="%.1f" height="%d" fill="%s"><title>%s = %.6g</title></rect>`+"\n",
			x, y, w, svgBarH, color, html.EscapeString(a.Feature), a.Value)
	}
	b.WriteString("</svg>\n")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create chart directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename chart: %w", err)
	}
	return nil
}

// ChartPath returns the deterministic chart path of an anomaly. Indices
// restart with each execution, so the execution is part of the path.
func ChartPath(outputDir, scenarioID string, execution, index int) string {
	return filepath.Join(outputDir, scenarioID, strconv.Itoa(execution), fmt.Sprintf("anomaly_%d.svg", index))
}
