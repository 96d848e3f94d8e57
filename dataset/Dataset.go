// Package dataset implements storage for the transitions collected
// while evaluating an agent
package dataset

import (
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/airhockey/timestep"
)

// Dataset holds an ordered sequence of environmental transitions,
// possibly spanning multiple episodes. Episode boundaries are
// determined by the End field of the stored transitions.
type Dataset struct {
	transitions []timestep.Transition
}

// New returns a new empty Dataset
func New() *Dataset {
	return &Dataset{}
}

// Append adds a transition to the end of the Dataset
func (d *Dataset) Append(t timestep.Transition) {
	d.transitions = append(d.transitions, t)
}

// Len returns the number of transitions in the Dataset
func (d *Dataset) Len() int {
	return len(d.transitions)
}

// Transitions returns the transitions in the Dataset in the order
// they were added
func (d *Dataset) Transitions() []timestep.Transition {
	return d.transitions
}

// States returns the state observations of all transitions in the
// Dataset, flattened in row major order
func (d *Dataset) States() []float64 {
	if len(d.transitions) == 0 {
		return nil
	}

	features := d.transitions[0].State.Len()
	states := make([]float64, 0, len(d.transitions)*features)
	for _, transition := range d.transitions {
		for i := 0; i < features; i++ {
			states = append(states, transition.State.AtVec(i))
		}
	}
	return states
}

// NumEpisodes returns the number of episodes in the Dataset. A
// trailing sequence of transitions without a terminal transition
// counts as an episode.
func (d *Dataset) NumEpisodes() int {
	episodes := 0
	steps := 0
	for _, transition := range d.transitions {
		steps++
		if transition.End {
			episodes++
			steps = 0
		}
	}
	if steps > 0 {
		episodes++
	}
	return episodes
}

// ComputeJ returns the expected discounted return of the Dataset's
// episodes: the per-episode sum of gamma^t * reward, averaged over
// episodes
func (d *Dataset) ComputeJ(gamma float64) float64 {
	var returns []float64

	episodeReturn := 0.0
	discount := 1.0
	steps := 0
	for _, transition := range d.transitions {
		episodeReturn += discount * transition.Reward
		discount *= gamma
		steps++

		if transition.End {
			returns = append(returns, episodeReturn)
			episodeReturn = 0.0
			discount = 1.0
			steps = 0
		}
	}
	if steps > 0 {
		returns = append(returns, episodeReturn)
	}

	// NaN when the Dataset holds no episodes
	return stat.Mean(returns, nil)
}

// AverageReturn returns the undiscounted episodic return of the
// Dataset's episodes, averaged over episodes
func (d *Dataset) AverageReturn() float64 {
	return d.ComputeJ(1.0)
}
