package flow

import (
	"context"

	"github.com/looplab/fsm"
)

// Events of the sub-step machine
const (
	eventNext = "next"
	eventBack = "back"
)

// Machine compiles the table into a state machine for one day's content.
// present reports which sub-steps the day actually has; missing optional
// sub-steps are skipped by the forward edges.
func (t Table[S]) Machine(present func(S) bool) *fsm.FSM {
	var events fsm.Events

	for src, dst := range t.Forward {
		if t.Optional[src] && !present(src) {
			continue
		}
		for t.Optional[dst] && !present(dst) {
			next, ok := t.Forward[dst]
			if !ok {
				break
			}
			dst = next
		}
		events = append(events, fsm.EventDesc{Name: eventNext, Src: []string{string(src)}, Dst: string(dst)})
	}

	for src, dst := range t.Backward {
		if t.Optional[src] && !present(src) {
			continue
		}
		for t.Optional[dst] && !present(dst) {
			prev, ok := t.Backward[dst]
			if !ok {
				break
			}
			dst = prev
		}
		events = append(events, fsm.EventDesc{Name: eventBack, Src: []string{string(src)}, Dst: string(dst)})
	}

	for name, dst := range t.Choices {
		events = append(events, fsm.EventDesc{Name: name, Src: []string{string(t.ChoiceFrom)}, Dst: string(dst)})
	}

	return fsm.NewFSM(string(t.Initial), events, fsm.Callbacks{})
}

// Fire runs event from the given state. ok is false when the machine
// has no such transition.
func (t Table[S]) Fire(from S, event string, present func(S) bool) (S, bool) {
	m := t.Machine(present)
	m.SetState(string(from))
	if !m.Can(event) {
		return from, false
	}
	if err := m.Event(context.Background(), event); err != nil {
		return from, false
	}
	return S(m.Current()), true
}
