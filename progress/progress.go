package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/livepeer/dubworker/config"
)

// StepStatus is the lifecycle of a single pipeline stage as seen by a client
// polling the task record (§3).
type StepStatus string

const (
	Waiting    StepStatus = "Waiting"
	InProgress StepStatus = "InProgress"
	Completed  StepStatus = "Completed"
	Error      StepStatus = "Error"
)

// Step mirrors the Task Record's `progress.steps[]` entry.
type Step struct {
	Name          string     `json:"name"`
	Weight        float64    `json:"weight"`
	Status        StepStatus `json:"status"`
	Percent       float64    `json:"percent"`
	Indeterminate bool       `json:"indeterminate"`
	Message       string     `json:"message,omitempty"`
}

// Snapshot mirrors the Task Record's `progress` object.
type Snapshot struct {
	OverallPercent float64  `json:"overall_percent"`
	Steps          []Step   `json:"steps"`
	Logs           []string `json:"logs,omitempty"`
}

// WeightTable owns the single renormalization rule for the whole engine
// (§4.7, resolving the Open Question in spec §9): when a stage is skipped,
// its weight is redistributed proportionally among the remaining enabled
// stages. No other package may recompute or duplicate this logic.
type WeightTable struct {
	order  []string
	base   map[string]float64
	active map[string]bool
}

// DefaultStages are S1-S9 with their default weights (§4.6).
var DefaultStages = []struct {
	Name   string
	Weight float64
}{
	{"acquire", 0.20},
	{"probe", 0.02},
	{"extract_audio", 0.10},
	{"transcribe", 0.35},
	{"translate", 0.15},
	{"emit_subtitles", 0.03},
	{"burn_in", 0.10},
	{"verify_container", 0.03},
	{"publish", 0.02},
}

// NewWeightTable builds a table with every default stage enabled; callers
// disable stages that will be skipped for this task (e.g. "translate" when
// target_lang is empty, "burn_in" when burn_in=false) before the first
// step_start call.
func NewWeightTable() *WeightTable {
	wt := &WeightTable{
		base:   make(map[string]float64, len(DefaultStages)),
		active: make(map[string]bool, len(DefaultStages)),
	}
	for _, s := range DefaultStages {
		wt.order = append(wt.order, s.Name)
		wt.base[s.Name] = s.Weight
		wt.active[s.Name] = true
	}
	return wt
}

// Disable marks a stage as skipped; its weight is proportionally
// redistributed across the stages still active.
func (wt *WeightTable) Disable(name string) {
	wt.active[name] = false
}

// Weights returns the effective (renormalized) weight of every active
// stage, in pipeline order. Disabled stages are omitted entirely.
func (wt *WeightTable) Weights() []Step {
	var activeTotal float64
	for _, name := range wt.order {
		if wt.active[name] {
			activeTotal += wt.base[name]
		}
	}
	if activeTotal == 0 {
		activeTotal = 1
	}
	steps := make([]Step, 0, len(wt.order))
	for _, name := range wt.order {
		if !wt.active[name] {
			continue
		}
		steps = append(steps, Step{
			Name:   name,
			Weight: wt.base[name] / activeTotal,
			Status: Waiting,
		})
	}
	return steps
}

// Reporter computes `overall_percent` from the weight table on every call
// and enforces monotonicity and write-once terminal semantics (§4.7).
// Publishing to the Task Registry is done through the Publish callback so
// this package has no dependency on the registry's storage details.
type Reporter struct {
	mu       sync.Mutex
	weights  *WeightTable
	steps    map[string]*Step
	order    []string
	terminal bool
	lastPct  float64
	logs     []string

	// Publish is invoked with the latest snapshot after every mutating call.
	// It must not block for long; the registry write should be async or fast.
	Publish func(Snapshot)
}

func NewReporter(weights *WeightTable, publish func(Snapshot)) *Reporter {
	r := &Reporter{weights: weights, steps: make(map[string]*Step), Publish: publish}
	for _, s := range weights.Weights() {
		s := s
		r.order = append(r.order, s.Name)
		r.steps[s.Name] = &s
	}
	return r
}

func (r *Reporter) StepStart(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	s, ok := r.steps[name]
	if !ok {
		return
	}
	s.Status = InProgress
	r.publishLocked()
}

func (r *Reporter) StepProgress(name string, percent float64, indeterminate bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	s, ok := r.steps[name]
	if !ok {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.Status = InProgress
	s.Percent = percent
	s.Indeterminate = indeterminate
	s.Message = message
	r.publishLocked()
}

func (r *Reporter) StepComplete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	s, ok := r.steps[name]
	if !ok {
		return
	}
	s.Status = Completed
	s.Percent = 100
	s.Indeterminate = false
	r.publishLocked()
}

func (r *Reporter) StepError(name, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	s, ok := r.steps[name]
	if !ok {
		return
	}
	s.Status = Error
	s.Message = message
	r.publishLocked()
}

func (r *Reporter) Log(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, fmt.Sprintf("%s %s", config.Clock.GetTime().Format(time.RFC3339), fmt.Sprintf(format, args...)))
	if len(r.logs) > 200 {
		r.logs = r.logs[len(r.logs)-200:]
	}
}

// TaskComplete/TaskFail mark the terminal write-once state; further calls
// on this reporter are no-ops, per §4.7's "write-once semantics on terminal
// state".
func (r *Reporter) TaskComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.terminal = true
	for _, name := range r.order {
		s := r.steps[name]
		if s.Status != Error {
			s.Status = Completed
			s.Percent = 100
		}
	}
	r.publishLocked()
}

func (r *Reporter) TaskFail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.terminal = true
	r.publishLocked()
}

// overallPercent implements §3's formula: 100 * sum(step.percent/100 *
// step.weight) over completed+in-progress steps; completed steps count as
// full weight; indeterminate steps contribute 0 until complete.
func (r *Reporter) overallPercent() float64 {
	var total float64
	for _, name := range r.order {
		s := r.steps[name]
		switch s.Status {
		case Completed:
			total += s.Weight * 100
		case InProgress:
			if s.Indeterminate {
				continue
			}
			total += s.Weight * s.Percent
		}
	}
	return total
}

func (r *Reporter) publishLocked() {
	pct := r.overallPercent()
	if pct < r.lastPct {
		// Monotonicity is enforced here rather than upstream: clamp instead
		// of rejecting, so a stale caller never regresses the client view.
		pct = r.lastPct
	}
	r.lastPct = pct

	snap := Snapshot{OverallPercent: pct, Logs: append([]string(nil), r.logs...)}
	for _, name := range r.order {
		snap.Steps = append(snap.Steps, *r.steps[name])
	}
	if r.Publish != nil {
		r.Publish(snap)
	}
}
