// Package bot holds the run state of the automation. The Controller is a plain
// mode flag; it owns no network resources and never calls the game itself.
package bot

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the run mode of the bot.
type State string

const (
	Stopped State = "stopped"
	Running State = "running"
	Paused  State = "paused"
)

// ErrInvalidTransition is returned when a command does not apply to the current state.
var ErrInvalidTransition = errors.New("invalid bot state transition")

// Status is a snapshot of the controller.
type Status struct {
	State State     `json:"state"`
	Since time.Time `json:"since"`
}

// Listener is called after every successful transition, outside the lock.
type Listener func(from, to State)

// Controller tracks the Stopped, Running and Paused states. Safe for concurrent use.
type Controller struct {
	mu        sync.RWMutex
	state     State
	since     time.Time
	listeners []Listener
	now       func() time.Time
}

// NewController returns a Controller in the Stopped state.
func NewController() *Controller {
	c := &Controller{state: Stopped, now: time.Now}
	c.since = c.now()
	return c
}

// OnTransition registers a listener.
func (c *Controller) OnTransition(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns the current state and when it was entered.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{State: c.state, Since: c.since}
}

// Start moves Stopped or Paused to Running. Starting a running bot is rejected.
func (c *Controller) Start() error {
	return c.transition("start", func(from State) (State, bool) {
		return Running, from == Stopped || from == Paused
	})
}

// Pause toggles between Running and Paused. It is rejected while Stopped.
func (c *Controller) Pause() error {
	return c.transition("pause", func(from State) (State, bool) {
		switch from {
		case Running:
			return Paused, true
		case Paused:
			return Running, true
		}
		return from, false
	})
}

// Stop moves any state to Stopped.
func (c *Controller) Stop() error {
	return c.transition("stop", func(State) (State, bool) {
		return Stopped, true
	})
}

func (c *Controller) transition(cmd string, next func(State) (State, bool)) error {
	c.mu.Lock()
	from := c.state
	to, ok := next(from)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, cmd, from)
	}
	c.state = to
	if from != to {
		c.since = c.now()
	}
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	if from != to {
		for _, l := range listeners {
			l(from, to)
		}
	}
	return nil
}
