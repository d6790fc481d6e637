// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tomtom215/packetlens/internal/alerting"
	"github.com/tomtom215/packetlens/internal/capture"
	"github.com/tomtom215/packetlens/internal/graph"
	"github.com/tomtom215/packetlens/internal/inference"
)

// fakeProcess is a capture process driven by the test through a pipe.
type fakeProcess struct {
	r *io.PipeReader
	w *io.PipeWriter

	// ignoreTerminate makes Terminate a no-op so Stop has to kill.
	ignoreTerminate bool
	stderr          string

	done chan struct{}
	once sync.Once

	mu         sync.Mutex
	exitCode   int
	terminates int
	kills      int
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{r: r, w: w, done: make(chan struct{}), exitCode: -1}
}

func (p *fakeProcess) Pid() int             { return 4242 }
func (p *fakeProcess) Stdout() io.Reader    { return p.r }
func (p *fakeProcess) StderrTail() string   { return p.stderr }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminates++
	p.mu.Unlock()
	if !p.ignoreTerminate {
		p.exit(-1)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()
	p.exit(-1)
	return nil
}

func (p *fakeProcess) ClosePipes() error {
	return p.r.Close()
}

// exit ends the process: stdout reaches EOF and Done closes.
func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.mu.Lock()
		p.exitCode = code
		p.mu.Unlock()
		_ = p.w.Close()
		close(p.done)
	})
}

func (p *fakeProcess) writeLine(line string) error {
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func (p *fakeProcess) counts() (terminates, kills int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminates, p.kills
}

// fakeLauncher hands out a prepared process.
type fakeLauncher struct {
	process *fakeProcess
	err     error

	mu    sync.Mutex
	argvs [][]string
}

func (l *fakeLauncher) Launch(_ context.Context, argv []string) (capture.Process, error) {
	l.mu.Lock()
	l.argvs = append(l.argvs, argv)
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.process, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.argvs)
}

// staticCompiler returns fixed pipelines.
type staticCompiler struct {
	defs []*graph.PipelineDef
	err  error
}

func (c staticCompiler) Compile(context.Context, string) ([]*graph.PipelineDef, error) {
	return c.defs, c.err
}

var errCompile = errors.New("graph has a cycle")

// zscorePipeline flags rows where column deviates from mean by more than
// three standard deviations.
func zscorePipeline(id, column string, mean, std float64) *graph.PipelineDef {
	return &graph.PipelineDef{
		Pipeline: inference.Pipeline{
			ID:        id,
			ModelName: "ZScoreDetector",
			Model: &inference.ZScoreModel{
				Columns:   []string{column},
				Mean:      []float64{mean},
				Std:       []float64{std},
				Threshold: 3,
			},
		},
	}
}

type observation struct {
	ip   string
	port int
}

// recordingObserver records alert observations.
type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *recordingObserver) Observe(_ context.Context, ip string, port int) []alerting.Trigger {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{ip: ip, port: port})
	return nil
}

func (o *recordingObserver) observations() []observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observation(nil), o.seen...)
}
