package wizard

import (
	"fmt"
	"strings"
)

// State is what the next inbound message is expected to supply.
type State uint8

const (
	StateMenu State = iota
	StateClientName
	StateClientEmail
	StateClientPhone
	StateSelectItems
	StateQty
	StateNotes
	StateSummary

	numStates
)

var stateNames = [numStates]string{
	StateMenu:        "MENU",
	StateClientName:  "CLIENT_NAME",
	StateClientEmail: "CLIENT_EMAIL",
	StateClientPhone: "CLIENT_PHONE",
	StateSelectItems: "SELECT_ITEMS",
	StateQty:         "QTY",
	StateNotes:       "NOTES",
	StateSummary:     "SUMMARY",
}

func States() []State {
	out := make([]State, 0, numStates)
	for s := State(0); s < numStates; s++ {
		out = append(out, s)
	}
	return out
}

func (s State) Valid() bool { return s < numStates }

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("State(%d)", uint8(s))
	}
	return stateNames[s]
}

func ParseState(name string) (State, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return StateMenu, fmt.Errorf("wizard: unknown state %q", name)
}

func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("wizard: invalid state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
