// Package environment outlines the interfaces and structs needed to implement
// concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/airhockey/timestep"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() mat.Vector
}

// Ender determines when environmental episodes end
type Ender interface {
	// End takes the most recent timestep, modifying its StepType
	// field to timestep.Last if the episode has ended. The returned
	// boolean indicates whether the episode ended.
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some environment
type Task interface {
	Starter
	GetReward(state, action, nextState mat.Vector) float64
	AtGoal(state mat.Matrix) bool
	End(*timestep.TimeStep) bool
}

// Environment implements a simulated environment, which includes a Task to
// complete
type Environment interface {
	Task

	// Reset resets the environment between episodes, returning the
	// first timestep of the new episode
	Reset() timestep.TimeStep

	// Step takes one environmental step given an action, returning the
	// next timestep and whether that timestep is the last in the
	// episode
	Step(action *mat.VecDense) (timestep.TimeStep, bool)

	// Discount returns the discount factor of the environment
	Discount() float64

	CurrentTimeStep() timestep.TimeStep

	RewardSpec() Spec
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}

// Renderer is an Environment that can draw its current state to an
// image frame on disk
type Renderer interface {
	Environment
	Render(frame int) error
}
