package tap

import (
	"github.com/pkg/errors"
)

type Phase string

const (
	PhaseResolvingRepos     Phase = "RESOLVING_REPOS"
	PhaseSnapshottingBoards Phase = "SNAPSHOTTING_BOARDS"
	PhaseFetchingDelta      Phase = "FETCHING_DELTA"
	PhaseFetchingEvents     Phase = "FETCHING_EVENTS"
	PhasePersistingState    Phase = "PERSISTING_STATE"
	PhaseDone               Phase = "DONE"
	PhaseFailed             Phase = "FAILED"
)

const (
	eventCompleted = "completed"
	eventFailed    = "failed"
)

// phaseMachine is a minimal rule based state machine: a phase only changes
// through a rule registered with InPhase(src).On(event, dst).
type phaseMachine struct {
	current Phase
	rules   map[string]Phase
	onEnter map[Phase][]func(src Phase, event string)
}

func newPhaseMachine(initial Phase) *phaseMachine {
	return &phaseMachine{
		current: initial,
		rules:   map[string]Phase{},
		onEnter: map[Phase][]func(Phase, string){},
	}
}

// newSyncMachine wires the phases of a sync: each phase completes into the next
// and any phase before DONE can fail.
func newSyncMachine() *phaseMachine {
	m := newPhaseMachine(PhaseResolvingRepos)
	sequence := []Phase{
		PhaseResolvingRepos,
		PhaseSnapshottingBoards,
		PhaseFetchingDelta,
		PhaseFetchingEvents,
		PhasePersistingState,
		PhaseDone,
	}
	for i, phase := range sequence[:len(sequence)-1] {
		m.InPhase(phase).
			On(eventCompleted, sequence[i+1]).
			On(eventFailed, PhaseFailed)
	}
	return m
}

func ruleKey(src Phase, event string) string {
	return string(src) + "_" + event
}

type inPhase struct {
	src Phase
	m   *phaseMachine
}

func (m *phaseMachine) InPhase(src Phase) inPhase {
	return inPhase{src: src, m: m}
}

func (x inPhase) On(event string, dst Phase) inPhase {
	x.m.rules[ruleKey(x.src, event)] = dst
	return x
}

// OnEnter registers fn to run after the machine enters phase.
func (m *phaseMachine) OnEnter(phase Phase, fn func(src Phase, event string)) {
	m.onEnter[phase] = append(m.onEnter[phase], fn)
}

func (m *phaseMachine) Phase() Phase {
	return m.current
}

// Send applies event to the current phase. An event with no rule is an error
// and leaves the phase unchanged.
func (m *phaseMachine) Send(event string) error {
	dst, ok := m.rules[ruleKey(m.current, event)]
	if !ok {
		return errors.Errorf("event %q is not valid in phase %s", event, m.current)
	}
	src := m.current
	m.current = dst
	for _, fn := range m.onEnter[dst] {
		fn(src, event)
	}
	return nil
}
