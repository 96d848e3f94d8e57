package timestep

import "gonum.org/v1/gonum/mat"

// Transition packages together a single environmental transition
// (s, a, r, γ, s') for storage in an experience replay buffer or in
// an evaluation dataset.
type Transition struct {
	State      mat.Vector
	Action     mat.Vector
	Reward     float64
	Discount   float64
	NextState  mat.Vector
	NextAction mat.Vector // May be nil if the next action is not known

	// End denotes whether the transition ends an episode, either by
	// reaching an absorbing state or by hitting the episode step limit
	End bool
}

// NewTransition packages two sequential timesteps and their actions
// into a Transition
func NewTransition(step TimeStep, action mat.Vector, nextStep TimeStep,
	nextAction mat.Vector) Transition {
	return Transition{
		State:      step.Observation,
		Action:     action,
		Reward:     nextStep.Reward,
		Discount:   nextStep.Discount,
		NextState:  nextStep.Observation,
		NextAction: nextAction,
		End:        nextStep.Last(),
	}
}
