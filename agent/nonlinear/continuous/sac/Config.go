package sac

import (
	"fmt"

	"github.com/samuelfneumann/airhockey/agent"
	"github.com/samuelfneumann/airhockey/environment"
	"github.com/samuelfneumann/airhockey/initwfn"
	"github.com/samuelfneumann/airhockey/network"
	"github.com/samuelfneumann/airhockey/solver"
)

// Config implements a configuration of the SAC agent
type Config struct {
	// Hidden layers of the actor's mean and log standard deviation
	// networks. A linear output layer of the action dimensionality is
	// added to each network.
	ActorHiddenSizes []int
	ActorBiases      []bool
	ActorActivations []*network.Activation

	// Hidden layers of the critic. A linear output layer of size 1 is
	// added.
	CriticHiddenSizes []int
	CriticBiases      []bool
	CriticActivations []*network.Activation

	HiddenInit *initwfn.InitWFn // Weight init of all hidden layers
	OutputInit *initwfn.InitWFn // Weight init of all output layers

	ActorSolver  *solver.Solver
	CriticSolver *solver.Solver

	// Entropy temperature. The log of the temperature is adjusted by
	// gradient descent with step size AlphaLR towards TargetEntropy.
	InitialLogAlpha float64
	AlphaLR         float64
	TargetEntropy   float64

	BatchSize         int
	MinReplayCapacity int // Samples in the buffer before critic updates
	MaxReplayCapacity int

	// Number of transitions observed before actor and temperature
	// updates begin
	WarmupTransitions int

	Tau float64 // Polyak averaging constant for the target critic
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	if len(c.ActorHiddenSizes) != len(c.ActorBiases) {
		return fmt.Errorf("invalid number of actor biases \n\twant(%v) "+
			"\n\thave(%v)", len(c.ActorHiddenSizes), len(c.ActorBiases))
	}
	if len(c.ActorHiddenSizes) != len(c.ActorActivations) {
		return fmt.Errorf("invalid number of actor activations "+
			"\n\twant(%v) \n\thave(%v)", len(c.ActorHiddenSizes),
			len(c.ActorActivations))
	}
	if len(c.CriticHiddenSizes) != len(c.CriticBiases) {
		return fmt.Errorf("invalid number of critic biases \n\twant(%v) "+
			"\n\thave(%v)", len(c.CriticHiddenSizes), len(c.CriticBiases))
	}
	if len(c.CriticHiddenSizes) != len(c.CriticActivations) {
		return fmt.Errorf("invalid number of critic activations "+
			"\n\twant(%v) \n\thave(%v)", len(c.CriticHiddenSizes),
			len(c.CriticActivations))
	}
	if c.HiddenInit == nil || c.OutputInit == nil {
		return fmt.Errorf("no weight initializer given")
	}
	if c.ActorSolver == nil || c.CriticSolver == nil {
		return fmt.Errorf("no solver given")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be > 0")
	}
	if c.MinReplayCapacity < c.BatchSize {
		return fmt.Errorf("cannot have replay minimum capacity (%v) < "+
			"batch size (%v)", c.MinReplayCapacity, c.BatchSize)
	}
	if c.MaxReplayCapacity < c.MinReplayCapacity {
		return fmt.Errorf("cannot have replay maximum capacity (%v) < "+
			"minimum capacity (%v)", c.MaxReplayCapacity,
			c.MinReplayCapacity)
	}
	if c.AlphaLR < 0 {
		return fmt.Errorf("temperature step size must be >= 0")
	}
	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("tau must be in (0, 1]")
	}
	return nil
}

// ValidAgent returns whether the argument agent is valid for the
// Config
func (c Config) ValidAgent(a agent.Agent) bool {
	_, ok := a.(*SAC)
	return ok
}

// CreateAgent creates the SAC agent that the Config describes
func (c Config) CreateAgent(env environment.Environment,
	seed uint64) (agent.Agent, error) {
	return New(env, c, seed)
}
