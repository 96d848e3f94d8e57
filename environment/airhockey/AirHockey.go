// Package airhockey provides an implementation of a planar air-hockey
// table with a single controlled mallet.
package airhockey

import (
	"fmt"
	"image/color"
	"math"

	"github.com/ByteArena/box2d"
	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/airhockey/environment"
	"github.com/samuelfneumann/airhockey/timestep"
	"github.com/samuelfneumann/airhockey/utils/floatutils"
)

const (
	FPS float64 = 50

	// Table geometry in Box2D units (metres). The origin is at the
	// table centre, x along the long side, y along the short side.
	TableLength float64 = 1.96
	TableWidth  float64 = 1.02
	GoalWidth   float64 = 0.25

	PuckRadius   float64 = 0.03165
	MalletRadius float64 = 0.04815

	PuckDamping   float64 = 0.3
	MalletDamping float64 = 3.0
	PuckDensity   float64 = 0.8
	MalletDensity float64 = 3.0
	Restitution   float64 = 0.8

	// Actions are 2-dimensional forces on the mallet, with each
	// dimension bounded in [-1, 1] and scaled by MaxForce
	MaxContinuousAction float64 = 1.0
	MinContinuousAction float64 = -MaxContinuousAction
	MaxForce            float64 = 4.0

	// State observations and their bounds
	StateObservations int     = 8
	ActionDims        int     = 2
	MaxVelocity       float64 = 2.0 * FPS // Box2D limit: 2 units per step

	// Rendering
	Scale        float64 = 300 // Pixels per Box2D unit
	RenderMargin float64 = 30  // Pixels around the table edges

	// Collision categories. The centre line collides with the mallet
	// only, keeping the mallet on its own half of the table.
	wallCategory    uint16 = 0x0001
	puckCategory    uint16 = 0x0002
	malletCategory  uint16 = 0x0004
	centreCategory  uint16 = 0x0008
	puckCollides    uint16 = wallCategory | malletCategory
	malletCollides  uint16 = wallCategory | puckCategory | centreCategory
	centreWallMask  uint16 = malletCategory
	defaultWallMask uint16 = puckCategory | malletCategory
)

// Default starting positions. The mallet guards the left goal; the
// puck starting position depends on the task.
const (
	MalletStartX float64 = -TableLength/2 + 0.2
	MalletStartY float64 = 0.0
)

// WorldToPixelCoord converts a Box2D world coordinate into a pixel
// coordinate on the rendered frame
func WorldToPixelCoord(coords [2]float64) [2]float64 {
	pixelX := RenderMargin + (coords[0]+TableLength/2)*Scale
	pixelY := RenderMargin + (TableWidth/2-coords[1])*Scale

	return [2]float64{pixelX, pixelY}
}

// airHockeyTask is a Task that requires access to the underlying
// environment for reward computation
type airHockeyTask interface {
	environment.Task
	registerEnv(*AirHockey)
	reset()
}

// AirHockey implements a planar air-hockey table. The puck and the
// mallet are dynamic discs in a zero-gravity Box2D world bounded by
// four walls, with a goal mouth on each short side. The mallet is
// confined to the left half of the table by a centre line which
// collides with the mallet only.
//
// State observations are 8-dimensional vectors consisting of the puck
// position, puck velocity, mallet position, and mallet velocity, with
// positions normalized by the table half-extents and velocities
// normalized by the maximum Box2D velocity.
//
// Actions are 2-dimensional, continuous forces applied to the mallet,
// with each dimension bounded in [-1, 1]. Actions outside this range
// are clipped. Each environmental step advances the physics by a fixed
// number of intermediate Box2D steps during which the same force is
// applied.
//
// AirHockey implements the environment.Environment interface.
type AirHockey struct {
	environment.Task

	world box2d.B2World

	walls      []*box2d.B2Body
	centreLine *box2d.B2Body
	puck       *box2d.B2Body
	mallet     *box2d.B2Body

	tableShade  color.Color
	lineShade   color.Color
	wallShade   color.Color
	puckShade   color.Color
	malletShade color.Color

	xBounds r1.Interval
	yBounds r1.Interval

	intermediateSteps int
	discount          float64
	seed              uint64

	prevStep timestep.TimeStep
}

// New returns a new air-hockey environment with the argument task.
// The task determines the starting state distribution and the reward
// scheme. Each call to Step advances the Box2D world intermediateSteps
// times. The first timestep of the environment is returned along with
// the environment itself.
func New(task environment.Task, discount float64, intermediateSteps int,
	seed uint64) (environment.Environment, timestep.TimeStep, error) {
	if intermediateSteps < 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: intermediate "+
			"steps must be positive \n\twant(>0) \n\thave(%v)",
			intermediateSteps)
	}

	a := AirHockey{}
	a.world = box2d.MakeB2World(box2d.B2Vec2{X: 0.0, Y: 0.0})

	a.tableShade = color.RGBA{R: 235, G: 245, B: 255, A: 255}
	a.lineShade = color.RGBA{R: 170, G: 30, B: 30, A: 255}
	a.wallShade = color.RGBA{R: 40, G: 40, B: 60, A: 255}
	a.puckShade = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	a.malletShade = color.RGBA{R: 30, G: 60, B: 160, A: 255}

	a.xBounds = r1.Interval{Min: -TableLength / 2, Max: TableLength / 2}
	a.yBounds = r1.Interval{Min: -TableWidth / 2, Max: TableWidth / 2}

	a.intermediateSteps = intermediateSteps
	a.discount = discount
	a.seed = seed

	t, ok := task.(airHockeyTask)
	if ok {
		t.registerEnv(&a)
		a.Task = t
	} else {
		a.Task = task
	}

	step := a.Reset()
	return &a, step, nil
}

// Puck returns the Box2D body of the puck
func (a *AirHockey) Puck() *box2d.B2Body {
	return a.puck
}

// Mallet returns the Box2D body of the mallet
func (a *AirHockey) Mallet() *box2d.B2Body {
	return a.mallet
}

// PuckSpeed returns the current speed of the puck
func (a *AirHockey) PuckSpeed() float64 {
	vel := a.puck.GetLinearVelocity()
	return math.Hypot(vel.X, vel.Y)
}

// InLeftGoal returns whether the puck is inside the left goal mouth
func (a *AirHockey) InLeftGoal() bool {
	pos := a.puck.GetPosition()
	return pos.X <= a.xBounds.Min+PuckRadius &&
		math.Abs(pos.Y) <= GoalWidth/2
}

// InRightGoal returns whether the puck is inside the right goal mouth
func (a *AirHockey) InRightGoal() bool {
	pos := a.puck.GetPosition()
	return pos.X >= a.xBounds.Max-PuckRadius &&
		math.Abs(pos.Y) <= GoalWidth/2
}

// destroy removes all bodies from the Box2D world so that the world
// can be rebuilt on the next Reset
func (a *AirHockey) destroy() {
	if a.puck == nil {
		return
	}

	a.world.DestroyBody(a.puck)
	a.puck = nil

	a.world.DestroyBody(a.mallet)
	a.mallet = nil

	a.world.DestroyBody(a.centreLine)
	a.centreLine = nil

	for _, wall := range a.walls {
		a.world.DestroyBody(wall)
	}
	a.walls = nil
}

// Reset resets the environment between episodes, rebuilding the Box2D
// world and sampling a new starting state from the task's Starter
func (a *AirHockey) Reset() timestep.TimeStep {
	a.destroy()
	a.prevStep = timestep.TimeStep{}

	t, ok := a.Task.(airHockeyTask)
	if ok {
		t.reset()
	}

	start := a.Start()
	err := validateStart(start, a.xBounds, a.yBounds)
	if err != nil {
		panic(fmt.Sprintf("reset: %v", err))
	}

	halfL := TableLength / 2
	halfW := TableWidth / 2
	halfGoal := GoalWidth / 2

	// Walls. The long sides are single edges; each short side is two
	// edges leaving the goal mouth open.
	segments := [][4]float64{
		{-halfL, halfW, halfL, halfW},   // Top
		{-halfL, -halfW, halfL, -halfW}, // Bottom
		{-halfL, halfW, -halfL, halfGoal},
		{-halfL, -halfGoal, -halfL, -halfW},
		{halfL, halfW, halfL, halfGoal},
		{halfL, -halfGoal, halfL, -halfW},
	}

	a.walls = make([]*box2d.B2Body, len(segments))
	for i, seg := range segments {
		wallDef := box2d.NewB2BodyDef()
		wallDef.Type = 0 // Static body
		a.walls[i] = a.world.CreateBody(wallDef)

		wallShape := box2d.NewB2EdgeShape()
		wallShape.Set(box2d.MakeB2Vec2(seg[0], seg[1]),
			box2d.MakeB2Vec2(seg[2], seg[3]))

		wallFix := box2d.MakeB2FixtureDef()
		wallFix.Shape = wallShape
		wallFix.Restitution = Restitution
		filter := box2d.MakeB2Filter()
		filter.CategoryBits = wallCategory
		filter.MaskBits = defaultWallMask
		wallFix.Filter = filter

		a.walls[i].CreateFixtureFromDef(&wallFix)
	}

	// Centre line keeping the mallet on the left half of the table
	centreDef := box2d.NewB2BodyDef()
	centreDef.Type = 0
	a.centreLine = a.world.CreateBody(centreDef)

	centreShape := box2d.NewB2EdgeShape()
	centreShape.Set(box2d.MakeB2Vec2(0.0, halfW), box2d.MakeB2Vec2(0.0, -halfW))

	centreFix := box2d.MakeB2FixtureDef()
	centreFix.Shape = centreShape
	centreFix.Restitution = 0.0
	centreFilter := box2d.MakeB2Filter()
	centreFilter.CategoryBits = centreCategory
	centreFilter.MaskBits = centreWallMask
	centreFix.Filter = centreFilter

	a.centreLine.CreateFixtureFromDef(&centreFix)

	// Puck. The task's Starter determines its initial position and
	// velocity.
	puckDef := box2d.MakeB2BodyDef()
	puckDef.Type = 2 // Dynamic body
	puckDef.Position = box2d.MakeB2Vec2(start.AtVec(0), start.AtVec(1))
	puckDef.LinearDamping = PuckDamping
	puckDef.Bullet = true // Puck moves fast relative to wall thickness

	a.puck = a.world.CreateBody(&puckDef)

	puckShape := box2d.NewB2CircleShape()
	puckShape.SetRadius(PuckRadius)

	puckFix := box2d.MakeB2FixtureDef()
	puckFix.Shape = puckShape
	puckFix.Density = PuckDensity
	puckFix.Friction = 0.1
	puckFix.Restitution = Restitution
	puckFilter := box2d.MakeB2Filter()
	puckFilter.CategoryBits = puckCategory
	puckFilter.MaskBits = puckCollides
	puckFix.Filter = puckFilter

	a.puck.CreateFixtureFromDef(&puckFix)
	a.puck.SetLinearVelocity(box2d.MakeB2Vec2(start.AtVec(2), start.AtVec(3)))

	// Mallet
	malletDef := box2d.MakeB2BodyDef()
	malletDef.Type = 2
	malletDef.Position = box2d.MakeB2Vec2(MalletStartX, MalletStartY)
	malletDef.LinearDamping = MalletDamping

	a.mallet = a.world.CreateBody(&malletDef)

	malletShape := box2d.NewB2CircleShape()
	malletShape.SetRadius(MalletRadius)

	malletFix := box2d.MakeB2FixtureDef()
	malletFix.Shape = malletShape
	malletFix.Density = MalletDensity
	malletFix.Friction = 0.1
	malletFix.Restitution = Restitution
	malletFilter := box2d.MakeB2Filter()
	malletFilter.CategoryBits = malletCategory
	malletFilter.MaskBits = malletCollides
	malletFix.Filter = malletFilter

	a.mallet.CreateFixtureFromDef(&malletFix)

	obs := a.observation()
	step := timestep.New(timestep.First, 0.0, a.discount, obs, 0)
	a.prevStep = step

	return step
}

// Step takes one environmental step given an action, returning the
// next timestep and whether that timestep is the last in the episode
func (a *AirHockey) Step(action *mat.VecDense) (timestep.TimeStep, bool) {
	// Clip actions
	for i := 0; i < action.Len(); i++ {
		action.SetVec(i, floatutils.Clip(action.AtVec(i),
			MinContinuousAction, MaxContinuousAction))
	}

	force := box2d.MakeB2Vec2(
		action.AtVec(0)*MaxForce,
		action.AtVec(1)*MaxForce,
	)

	// A single environmental step advances the simulation by a fixed
	// number of intermediate Box2D steps with the same applied force
	for i := 0; i < a.intermediateSteps; i++ {
		a.mallet.ApplyForceToCenter(force, true)
		a.world.Step(1.0/FPS, 8, 3)
	}

	obs := a.observation()
	reward := a.GetReward(a.prevStep.Observation, action, obs)

	step := timestep.New(timestep.Mid, reward, a.discount, obs,
		a.prevStep.Number+1)
	a.End(&step)

	a.prevStep = step
	return step, step.Last()
}

// observation constructs the current state observation
func (a *AirHockey) observation() *mat.VecDense {
	puckPos := a.puck.GetPosition()
	puckVel := a.puck.GetLinearVelocity()
	malletPos := a.mallet.GetPosition()
	malletVel := a.mallet.GetLinearVelocity()

	state := []float64{
		puckPos.X / (TableLength / 2),
		puckPos.Y / (TableWidth / 2),
		puckVel.X / MaxVelocity,
		puckVel.Y / MaxVelocity,
		malletPos.X / (TableLength / 2),
		malletPos.Y / (TableWidth / 2),
		malletVel.X / MaxVelocity,
		malletVel.Y / MaxVelocity,
	}

	if len(state) != StateObservations {
		panic(fmt.Sprintf("observation: illegal number of state "+
			"observations \n\twant(%v) \n\thave(%v)", StateObservations,
			len(state)))
	}
	return mat.NewVecDense(StateObservations, state)
}

// Discount returns the discount factor of the environment
func (a *AirHockey) Discount() float64 {
	return a.discount
}

// CurrentTimeStep returns the last timestep of the environment
func (a *AirHockey) CurrentTimeStep() timestep.TimeStep {
	return a.prevStep
}

// ObservationSpec returns the observation specification of the
// environment
func (a *AirHockey) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(StateObservations, nil)

	lowerBound := mat.NewVecDense(StateObservations, []float64{
		-1., -1., -1., -1., -1., -1., -1., -1.,
	})
	upperBound := mat.NewVecDense(StateObservations, []float64{
		1., 1., 1., 1., 1., 1., 1., 1.,
	})

	return environment.NewSpec(shape, environment.Observation, lowerBound,
		upperBound, environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (a *AirHockey) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{
		MinContinuousAction,
		MinContinuousAction,
	})
	upperBound := mat.NewVecDense(ActionDims, []float64{
		MaxContinuousAction,
		MaxContinuousAction,
	})

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}

// DiscountSpec returns the discount specification of the environment
func (a *AirHockey) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{a.discount})

	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

// RewardSpec returns the reward specification of the environment
func (a *AirHockey) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{-GoalReward})
	upperBound := mat.NewVecDense(1, []float64{GoalReward})

	return environment.NewSpec(shape, environment.Reward, lowerBound,
		upperBound, environment.Continuous)
}

// Render draws the current state of the table to a PNG frame on disk
func (a *AirHockey) Render(frame int) error {
	width := int(TableLength*Scale + 2*RenderMargin)
	height := int(TableWidth*Scale + 2*RenderMargin)

	dc := gg.NewContext(width, height)
	dc.SetColor(a.tableShade)
	dc.Clear()

	// Centre line
	top := WorldToPixelCoord([2]float64{0.0, TableWidth / 2})
	bottom := WorldToPixelCoord([2]float64{0.0, -TableWidth / 2})
	dc.SetColor(a.lineShade)
	dc.SetLineWidth(2.0)
	dc.DrawLine(top[0], top[1], bottom[0], bottom[1])
	dc.Stroke()

	// Walls
	dc.ClearPath()
	dc.SetColor(a.wallShade)
	dc.SetLineWidth(5.0)
	for i := range a.walls {
		fix := a.walls[i].GetFixtureList()
		sh := fix.M_shape.(*box2d.B2EdgeShape)

		p1 := WorldToPixelCoord([2]float64{sh.M_vertex1.X, sh.M_vertex1.Y})
		p2 := WorldToPixelCoord([2]float64{sh.M_vertex2.X, sh.M_vertex2.Y})

		dc.DrawLine(p1[0], p1[1], p2[0], p2[1])
	}
	dc.Stroke()

	// Puck
	puckPos := a.puck.GetPosition()
	pixel := WorldToPixelCoord([2]float64{puckPos.X, puckPos.Y})
	dc.ClearPath()
	dc.SetColor(a.puckShade)
	dc.DrawCircle(pixel[0], pixel[1], PuckRadius*Scale)
	dc.Fill()

	// Mallet
	malletPos := a.mallet.GetPosition()
	pixel = WorldToPixelCoord([2]float64{malletPos.X, malletPos.Y})
	dc.ClearPath()
	dc.SetColor(a.malletShade)
	dc.DrawCircle(pixel[0], pixel[1], MalletRadius*Scale)
	dc.Fill()

	return dc.SavePNG(fmt.Sprintf("./AirHockey%v.png", frame))
}

// validateStart ensures a task's Starter is compatible with the table
func validateStart(state mat.Vector, xBounds, yBounds r1.Interval) error {
	if state.Len() != 4 {
		return fmt.Errorf("starting values should be 4-dimensional " +
			"(puck x, puck y, puck vx, puck vy)")
	}

	if state.AtVec(0) > xBounds.Max || state.AtVec(0) < xBounds.Min {
		return fmt.Errorf("puck x position out of bounds, expected "+
			"x ϵ (%v, %v) but got x = %v", xBounds.Min, xBounds.Max,
			state.AtVec(0))
	}

	if state.AtVec(1) > yBounds.Max || state.AtVec(1) < yBounds.Min {
		return fmt.Errorf("puck y position out of bounds, expected "+
			"y ϵ (%v, %v) but got y = %v", yBounds.Min, yBounds.Max,
			state.AtVec(1))
	}

	return nil
}
