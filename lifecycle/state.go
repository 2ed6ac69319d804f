// Package lifecycle installs and activates a worker release.
//
// Install precaches the core manifest all-or-nothing and pre-warms cultural
// content best-effort. Activate removes the caches of every other release and
// takes control of open clients.
package lifecycle

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// State is the lifecycle phase of a worker release.
type State int

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned for a transition the lifecycle does not allow.
var ErrInvalidTransition = errors.New("lifecycle: invalid state transition")

var transitions = map[State][]State{
	StateNew:        {StateInstalling},
	StateInstalling: {StateInstalled, StateRedundant},
	StateInstalled:  {StateActivating, StateInstalling},
	StateActivating: {StateActivated, StateInstalled},
	StateActivated:  {StateActivating},
	StateRedundant:  {StateInstalling},
}

// Machine holds the current state. Safe for concurrent use.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// NewMachine creates a machine in StateNew.
func NewMachine() *Machine {
	return &Machine{}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves to the given state if allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(transitions[m.state], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.state = to
	return nil
}
