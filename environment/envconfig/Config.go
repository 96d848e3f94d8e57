// Package envconfig provides configuration structs for configuring
// air-hockey environments with default physical parameters and tasks.
// Environment configurations in this package are JSON serializable.
package envconfig

import (
	"fmt"

	env "github.com/samuelfneumann/airhockey/environment"
	"github.com/samuelfneumann/airhockey/environment/airhockey"
	ts "github.com/samuelfneumann/airhockey/timestep"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration
const (
	Hit    EnvName = "hit"
	Defend EnvName = "defend"
)

// Validate returns an error if the EnvName does not name a known
// environment
func (e EnvName) Validate() error {
	switch e {
	case Hit, Defend:
		return nil
	}
	return fmt.Errorf("validate: no such environment %q, expected one "+
		"of %q, %q", string(e), Hit, Defend)
}

// Config implements a specific configuration of a specific air-hockey
// task
type Config struct {
	Environment       EnvName
	EpisodeCutoff     uint
	Discount          float64
	IntermediateSteps uint
}

// NewConfig returns a new environment Config
func NewConfig(envName EnvName, episodeCutoff uint, discount float64,
	intermediateSteps uint) Config {
	return Config{
		Environment:       envName,
		EpisodeCutoff:     episodeCutoff,
		Discount:          discount,
		IntermediateSteps: intermediateSteps,
	}
}

// Create returns the environment described by the Config as well as
// the first timestep of the environment. Unknown environment names
// result in an error before any environment is constructed.
func (c Config) Create(seed uint64) (env.Environment, ts.TimeStep, error) {
	if err := c.Environment.Validate(); err != nil {
		return nil, ts.TimeStep{}, err
	}

	var task env.Task
	switch c.Environment {
	case Hit:
		task = airhockey.NewHit(airhockey.HitStarter(seed),
			int(c.EpisodeCutoff))

	case Defend:
		task = airhockey.NewDefend(airhockey.DefendStarter(seed),
			int(c.EpisodeCutoff))
	}

	return airhockey.New(task, c.Discount, int(c.IntermediateSteps), seed)
}
