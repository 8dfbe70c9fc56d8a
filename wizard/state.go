package wizard

import "errors"

// State is the wizard screen currently shown.
type State int

const (
	UserInput State = iota
	DiseaseSelection
	Solution
)

func (s State) String() string {
	switch s {
	case UserInput:
		return "user_input"
	case DiseaseSelection:
		return "disease_selection"
	case Solution:
		return "solution"
	default:
		return "unknown"
	}
}

type event int

const (
	evStart event = iota
	evSelect
	evReset
)

func (e event) String() string {
	switch e {
	case evStart:
		return "start"
	case evSelect:
		return "select"
	default:
		return "reset"
	}
}

var (
	ErrInvalidTransition = errors.New("transition not allowed from the current state")
	ErrNotSelectable     = errors.New("disease is not selectable")
)

// transitions is the only place that decides which edges exist.
var transitions = map[State]map[event]State{
	UserInput:        {evStart: DiseaseSelection, evReset: UserInput},
	DiseaseSelection: {evSelect: Solution, evReset: UserInput},
	Solution:         {evReset: UserInput},
}

func next(from State, ev event) (State, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}
