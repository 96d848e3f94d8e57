package airhockey

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/airhockey/environment"
	"github.com/samuelfneumann/airhockey/timestep"
)

const (
	// GoalReward is the terminal reward for scoring (Hit) or the
	// terminal penalty for conceding (both tasks)
	GoalReward float64 = 100.0

	// DefendSuccessSpeed is the puck speed below which the Defend
	// task considers the puck stopped
	DefendSuccessSpeed float64 = 0.05
)

// HitStarter returns the default Starter for the Hit task: the puck
// is placed at rest at a uniformly random position in the mallet's
// half of the table.
func HitStarter(seed uint64) environment.Starter {
	return environment.NewUniformStarter([]r1.Interval{
		{Min: -0.45, Max: -0.25}, // Puck x
		{Min: -0.35, Max: 0.35},  // Puck y
		{Min: 0.0, Max: 0.0},     // Puck x velocity
		{Min: 0.0, Max: 0.0},     // Puck y velocity
	}, seed)
}

// DefendStarter returns the default Starter for the Defend task: the
// puck is placed in the opponent's half moving toward the defended
// goal.
func DefendStarter(seed uint64) environment.Starter {
	return environment.NewUniformStarter([]r1.Interval{
		{Min: 0.3, Max: 0.65},  // Puck x
		{Min: -0.3, Max: 0.3},  // Puck y
		{Min: -2.0, Max: -1.0}, // Puck x velocity
		{Min: -0.3, Max: 0.3},  // Puck y velocity
	}, seed)
}

// Hit is the task of driving the puck into the opponent's goal on the
// right side of the table. The reward on each step is the difference
// in a shaping potential that grows as the puck approaches the
// opponent goal and as the mallet approaches the puck. Scoring gives
// GoalReward and ends the episode; conceding an own goal gives
// -GoalReward and ends the episode.
type Hit struct {
	environment.Starter
	stepLimit environment.Ender

	prevShaping *float64

	env *AirHockey
}

// NewHit returns a new Hit task. Episodes are cut off at cutoff
// timesteps.
func NewHit(s environment.Starter, cutoff int) environment.Task {
	stepLimit := environment.NewStepLimit(cutoff)

	return &Hit{Starter: s, stepLimit: stepLimit, prevShaping: nil}
}

func (h *Hit) registerEnv(env *AirHockey) {
	h.env = env
}

func (h *Hit) reset() {
	h.prevShaping = nil
}

// AtGoal returns whether the puck is in the opponent's goal
func (h *Hit) AtGoal(state mat.Matrix) bool {
	return h.env.InRightGoal()
}

// GetReward returns the reward for transitioning from state to
// nextState under action a
func (h *Hit) GetReward(state, a, nextState mat.Vector) float64 {
	s := nextState.(*mat.VecDense).RawVector().Data

	// Potential grows as the puck nears the opponent goal at (1, 0)
	// in normalized coordinates and as the mallet nears the puck
	shaping := (-100 * math.Hypot((1.0-s[0])/2, s[1]/2)) +
		(-30 * math.Hypot((s[0]-s[4])/2, (s[1]-s[5])/2))

	reward := 0.0
	if h.prevShaping != nil {
		reward = shaping - *h.prevShaping
	}
	h.prevShaping = &shaping

	// Less force spent is better
	reward -= 0.01 * (math.Abs(a.AtVec(0)) + math.Abs(a.AtVec(1)))

	if h.env.InRightGoal() {
		reward = GoalReward
	} else if h.env.InLeftGoal() {
		reward = -GoalReward
	}
	return reward
}

// End ends the episode on a goal at either end or at the step limit.
// Goals are absorbing states, so the discount of the final timestep is
// set to 0. Episodes cut off at the step limit keep their discount so
// that learners still bootstrap at the cutoff.
func (h *Hit) End(t *timestep.TimeStep) bool {
	if h.env.InRightGoal() || h.env.InLeftGoal() {
		t.StepType = timestep.Last
		t.Discount = 0.0
		return true
	}
	return h.stepLimit.End(t)
}

// Defend is the task of intercepting an incoming puck before it
// enters the defended goal on the left side of the table. The reward
// on each step is the difference in a shaping potential that grows as
// the puck slows down and as the mallet closes on the puck. Stopping
// the puck in the defended half gives GoalReward and ends the episode;
// conceding gives -GoalReward and ends the episode.
type Defend struct {
	environment.Starter
	stepLimit environment.Ender

	prevShaping *float64

	env *AirHockey
}

// NewDefend returns a new Defend task. Episodes are cut off at cutoff
// timesteps.
func NewDefend(s environment.Starter, cutoff int) environment.Task {
	stepLimit := environment.NewStepLimit(cutoff)

	return &Defend{Starter: s, stepLimit: stepLimit, prevShaping: nil}
}

func (d *Defend) registerEnv(env *AirHockey) {
	d.env = env
}

func (d *Defend) reset() {
	d.prevShaping = nil
}

// AtGoal returns whether the puck has been stopped in the defended
// half of the table
func (d *Defend) AtGoal(state mat.Matrix) bool {
	return d.env.PuckSpeed() < DefendSuccessSpeed &&
		d.env.Puck().GetPosition().X < 0 && !d.env.InLeftGoal()
}

// GetReward returns the reward for transitioning from state to
// nextState under action a
func (d *Defend) GetReward(state, a, nextState mat.Vector) float64 {
	s := nextState.(*mat.VecDense).RawVector().Data

	// Potential grows as the puck slows and as the mallet closes on
	// the puck
	shaping := (-100 * math.Hypot(s[2], s[3]) * 50) +
		(-30 * math.Hypot((s[0]-s[4])/2, (s[1]-s[5])/2))

	reward := 0.0
	if d.prevShaping != nil {
		reward = shaping - *d.prevShaping
	}
	d.prevShaping = &shaping

	reward -= 0.01 * (math.Abs(a.AtVec(0)) + math.Abs(a.AtVec(1)))

	if d.env.InLeftGoal() {
		reward = -GoalReward
	} else if d.AtGoal(nil) {
		reward = GoalReward
	}
	return reward
}

// End ends the episode on a conceded goal, a stopped puck, or the
// step limit. Conceded goals and stopped pucks are absorbing states,
// so the discount of the final timestep is set to 0. Episodes cut off
// at the step limit keep their discount so that learners still
// bootstrap at the cutoff.
func (d *Defend) End(t *timestep.TimeStep) bool {
	if d.env.InLeftGoal() || d.AtGoal(nil) {
		t.StepType = timestep.Last
		t.Discount = 0.0
		return true
	}
	return d.stepLimit.End(t)
}
