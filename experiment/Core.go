// Package experiment implements functionality for running an experiment
package experiment

import (
	"fmt"
	"os"
	"time"

	"github.com/samuelfneumann/airhockey/agent"
	"github.com/samuelfneumann/airhockey/dataset"
	"github.com/samuelfneumann/airhockey/environment"
	"github.com/samuelfneumann/airhockey/experiment/tracker"
	ts "github.com/samuelfneumann/airhockey/timestep"
	"github.com/samuelfneumann/airhockey/utils/progressbar"
)

// Width of progress bars drawn while learning and evaluating
const barWidth int = 65

// Core runs the interaction between an agent and an environment. A
// Core alternates between learning phases, where the agent selects
// exploratory actions and updates its weights, and evaluation phases,
// where the agent's deterministic policy is run without updating any
// weights and the generated transitions are collected in a dataset.
//
// Trackers registered with the Core record data generated during
// learning phases only.
type Core struct {
	env      environment.Environment
	agent    agent.Agent
	trackers []tracker.Tracker
}

// NewCore returns a new Core running the argument agent on the
// argument environment
func NewCore(env environment.Environment, a agent.Agent,
	trackers ...tracker.Tracker) *Core {
	return &Core{
		env:      env,
		agent:    a,
		trackers: trackers,
	}
}

// Learn runs the agent on the environment for nSteps environmental
// steps in training mode, updating the agent's weights after every
// nStepsPerFit steps. Episodes that reach an absorbing state or the
// environment's step limit are reset and interaction continues. If
// quiet is false, a progress bar is drawn to standard output.
func (c *Core) Learn(nSteps, nStepsPerFit int, quiet bool) error {
	if nStepsPerFit <= 0 {
		return fmt.Errorf("learn: nStepsPerFit must be > 0")
	}

	c.agent.Train()

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewProgressBar(barWidth, nSteps, time.Second)
		bar.Display()
		defer bar.Close()
	}

	step := c.env.Reset()
	c.track(step)
	if err := c.agent.ObserveFirst(step); err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	for i := 0; i < nSteps; i++ {
		action := c.agent.SelectAction(step)

		nextStep, last := c.env.Step(action)
		c.track(nextStep)
		if err := c.agent.Observe(action, nextStep); err != nil {
			return fmt.Errorf("learn: %v", err)
		}

		if (i+1)%nStepsPerFit == 0 {
			if err := c.agent.Step(); err != nil {
				return fmt.Errorf("learn: %v", err)
			}
		}

		if last {
			c.agent.EndEpisode()
			nextStep = c.env.Reset()
			c.track(nextStep)
			if err := c.agent.ObserveFirst(nextStep); err != nil {
				return fmt.Errorf("learn: %v", err)
			}
		}
		step = nextStep

		if bar != nil {
			bar.Increment()
		}
	}

	return nil
}

// EvaluateSteps runs the agent on the environment for nSteps
// environmental steps in evaluation mode, returning the generated
// transitions as a dataset. No weights are updated and no transitions
// enter the agent's replay buffer. If render is true and the
// environment can render itself, a frame is drawn on every step.
func (c *Core) EvaluateSteps(nSteps int, render, quiet bool) (
	*dataset.Dataset, error) {
	c.agent.Eval()
	defer c.agent.Train()

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewProgressBar(barWidth, nSteps, time.Second)
		bar.Display()
		defer bar.Close()
	}

	data := dataset.New()
	step := c.env.Reset()
	frame := 0
	c.render(render, &frame)

	for i := 0; i < nSteps; i++ {
		action := c.agent.SelectAction(step)

		nextStep, last := c.env.Step(action)
		data.Append(ts.NewTransition(step, action, nextStep, nil))
		c.render(render, &frame)

		if last {
			nextStep = c.env.Reset()
			c.render(render, &frame)
		}
		step = nextStep

		if bar != nil {
			bar.Increment()
		}
	}

	return data, nil
}

// EvaluateEpisodes runs the agent on the environment for nEpisodes
// full episodes in evaluation mode, returning the generated
// transitions as a dataset. See EvaluateSteps for details.
func (c *Core) EvaluateEpisodes(nEpisodes int, render, quiet bool) (
	*dataset.Dataset, error) {
	c.agent.Eval()
	defer c.agent.Train()

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewProgressBar(barWidth, nEpisodes,
			time.Second)
		bar.Display()
		defer bar.Close()
	}

	data := dataset.New()
	frame := 0

	for episode := 0; episode < nEpisodes; episode++ {
		step := c.env.Reset()
		c.render(render, &frame)

		for {
			action := c.agent.SelectAction(step)

			nextStep, last := c.env.Step(action)
			data.Append(ts.NewTransition(step, action, nextStep, nil))
			c.render(render, &frame)

			if last {
				break
			}
			step = nextStep
		}

		if bar != nil {
			bar.Increment()
		}
	}

	return data, nil
}

// Save saves the data recorded by the Core's trackers to disk
func (c *Core) Save() {
	for _, t := range c.trackers {
		t.Save()
	}
}

// track sends a timestep to the Core's trackers
func (c *Core) track(step ts.TimeStep) {
	for _, t := range c.trackers {
		t.Track(step)
	}
}

// render draws the environment's current state if rendering was
// requested and the environment supports it, incrementing the frame
// counter
func (c *Core) render(render bool, frame *int) {
	if !render {
		return
	}

	renderer, ok := c.env.(environment.Renderer)
	if !ok {
		return
	}

	if err := renderer.Render(*frame); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not render frame %v: %v\n",
			*frame, err)
	}
	*frame++
}
