package airhockey

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

const testCutoff int = 120

func newTestEnv(t *testing.T) *AirHockey {
	t.Helper()

	task := NewHit(HitStarter(14), testCutoff)
	env, step, err := New(task, 0.99, 4, 14)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}

	if !step.First() {
		t.Error("environment did not start on the first timestep")
	}
	return env.(*AirHockey)
}

func TestNewInvalidIntermediateSteps(t *testing.T) {
	task := NewHit(HitStarter(14), testCutoff)
	if _, _, err := New(task, 0.99, 0, 14); err == nil {
		t.Error("expected an error for non-positive intermediate steps")
	}
}

func TestObservations(t *testing.T) {
	env := newTestEnv(t)

	step := env.Reset()
	if step.Observation.Len() != StateObservations {
		t.Errorf("invalid observation size \n\twant(%v) \n\thave(%v)",
			StateObservations, step.Observation.Len())
	}

	action := mat.NewVecDense(ActionDims, []float64{0.5, -0.5})
	for i := 0; i < 10; i++ {
		step, _ = env.Step(action)

		if step.Observation.Len() != StateObservations {
			t.Fatalf("invalid observation size \n\twant(%v) \n\thave(%v)",
				StateObservations, step.Observation.Len())
		}

		// Observations are normalized to [-1, 1]
		for j := 0; j < step.Observation.Len(); j++ {
			obs := step.Observation.AtVec(j)
			if obs < -1.0 || obs > 1.0 {
				t.Errorf("observation %v out of bounds at index %v", obs, j)
			}
		}
	}
}

func TestStepNumbering(t *testing.T) {
	env := newTestEnv(t)

	step := env.Reset()
	if step.Number != 0 {
		t.Errorf("invalid first step number \n\twant(%v) \n\thave(%v)",
			0, step.Number)
	}

	action := mat.NewVecDense(ActionDims, []float64{0.0, 0.0})
	for i := 1; i <= 5; i++ {
		step, _ = env.Step(action)
		if step.Number != i {
			t.Errorf("invalid step number \n\twant(%v) \n\thave(%v)", i,
				step.Number)
		}
	}
}

func TestStepLimit(t *testing.T) {
	env := newTestEnv(t)
	env.Reset()

	// Applying no force should not score a goal, so the episode must
	// end at the step limit
	action := mat.NewVecDense(ActionDims, []float64{0.0, 0.0})
	for i := 1; i < testCutoff; i++ {
		step, last := env.Step(action)
		if last {
			if step.Number != testCutoff {
				t.Fatalf("episode ended before the step limit at "+
					"step %v", step.Number)
			}
		}
	}

	step, last := env.Step(action)
	if !last || !step.Last() {
		t.Error("episode did not end at the step limit")
	}

	// Step limit cutoffs are not absorbing, so the final discount
	// should be unchanged
	if step.Discount != 0.99 {
		t.Errorf("invalid discount at the step limit \n\twant(%v) "+
			"\n\thave(%v)", 0.99, step.Discount)
	}
}

func TestActionClipping(t *testing.T) {
	env := newTestEnv(t)
	env.Reset()

	// Actions outside [-1, 1] are clipped in place
	action := mat.NewVecDense(ActionDims, []float64{10.0, -10.0})
	env.Step(action)

	if action.AtVec(0) != MaxContinuousAction {
		t.Errorf("action was not clipped \n\twant(%v) \n\thave(%v)",
			MaxContinuousAction, action.AtVec(0))
	}
	if action.AtVec(1) != MinContinuousAction {
		t.Errorf("action was not clipped \n\twant(%v) \n\thave(%v)",
			MinContinuousAction, action.AtVec(1))
	}
}

func TestMalletConfinedToLeftHalf(t *testing.T) {
	env := newTestEnv(t)
	env.Reset()

	// Push the mallet towards the opponent's half. The centre line
	// should stop it from crossing
	action := mat.NewVecDense(ActionDims, []float64{1.0, 0.0})
	for i := 0; i < testCutoff-1; i++ {
		env.Step(action)

		malletX := env.Mallet().GetPosition().X
		if malletX > MalletRadius {
			t.Fatalf("mallet crossed the centre line: x = %v", malletX)
		}
	}
}
