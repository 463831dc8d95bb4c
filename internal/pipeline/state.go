package pipeline

import (
	"fmt"

	"git.home.luguber.info/inful/appshelf/internal/aggregate"
	"git.home.luguber.info/inful/appshelf/internal/catalog"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/loader"
	"git.home.luguber.info/inful/appshelf/internal/render"
)

// State is the lifecycle position of a build.
type State string

const (
	StateIdle        State = "Idle"
	StateLoading     State = "Loading"
	StateValidating  State = "Validating"
	StateAggregating State = "Aggregating"
	StateRendering   State = "Rendering"
	StateWriting     State = "Writing"
	StateDone        State = "Done"
	StateFailed      State = "Failed"
)

var stateOrder = map[State]int{
	StateIdle:        0,
	StateLoading:     1,
	StateValidating:  2,
	StateAggregating: 3,
	StateRendering:   4,
	StateWriting:     5,
	StateDone:        6,
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// canTransition allows forward moves only. Failed is reachable from
// Aggregating, the one point where an empty catalogue is detected.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return from == StateAggregating
	}
	return stateOrder[to] > stateOrder[from]
}

// BuildState carries the intermediate products of one build between stages.
type BuildState struct {
	Report *BuildReport

	state    State
	observer BuildObserver

	records     []loader.Record
	entries     []*catalog.Entry
	view        *aggregate.View
	results     []render.Result
	failedPages map[string]bool
}

func newBuildState(report *BuildReport, observer BuildObserver) *BuildState {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &BuildState{Report: report, state: StateIdle, observer: observer, failedPages: map[string]bool{}}
}

// State returns the current lifecycle state.
func (bs *BuildState) State() State { return bs.state }

// View returns the aggregated catalogue, nil before the aggregate stage.
func (bs *BuildState) View() *aggregate.View { return bs.view }

// Results returns the rendered pages.
func (bs *BuildState) Results() []render.Result { return bs.results }

func (bs *BuildState) transition(to State) error {
	if bs.state == to {
		return nil
	}
	if !canTransition(bs.state, to) {
		return fmt.Errorf("invalid build state transition %s -> %s", bs.state, to)
	}
	from := bs.state
	bs.state = to
	bs.Report.State = to
	bs.observer.OnStateChange(from, to)
	return nil
}

func (bs *BuildState) addViolations(vs []diag.Violation) {
	bs.Report.Violations = append(bs.Report.Violations, vs...)
}
