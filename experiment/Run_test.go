package experiment

import (
	"testing"

	"github.com/samuelfneumann/airhockey/agent/nonlinear/continuous/sac"
	"github.com/samuelfneumann/airhockey/environment"
	"github.com/samuelfneumann/airhockey/environment/envconfig"
	"github.com/samuelfneumann/airhockey/timestep"
)

// TestSacConfigSeededWeights ensures that the experiment's agent
// configuration produces identical initial weights for equal seeds
// and different initial weights for different seeds.
func TestSacConfigSeededWeights(t *testing.T) {
	envConf := envconfig.NewConfig(envconfig.Hit, horizon, discount,
		intermediateSteps)
	env, first, err := envConf.Create(11)
	if err != nil {
		t.Fatal(err)
	}

	newAgent := func(env environment.Environment, seed uint64) *sac.SAC {
		config, err := sacConfig(env.ActionSpec().Shape.Len(), seed)
		if err != nil {
			t.Fatal(err)
		}

		a, err := config.CreateAgent(env, seed)
		if err != nil {
			t.Fatal(err)
		}
		return a.(*sac.SAC)
	}

	evalAction := func(a *sac.SAC, step timestep.TimeStep) []float64 {
		a.Eval()
		action := a.SelectAction(step)
		data := make([]float64, action.Len())
		for i := range data {
			data[i] = action.AtVec(i)
		}
		return data
	}

	agentA := newAgent(env, 14)
	defer agentA.Close()
	agentB := newAgent(env, 14)
	defer agentB.Close()
	agentC := newAgent(env, 15)
	defer agentC.Close()

	actionA := evalAction(agentA, first)
	actionB := evalAction(agentB, first)
	actionC := evalAction(agentC, first)

	for i := range actionA {
		if actionA[i] != actionB[i] {
			t.Errorf("equal seeds produced different initial policies "+
				"at index %v \n\twant(%v) \n\thave(%v)", i, actionA[i],
				actionB[i])
		}
	}

	same := true
	for i := range actionA {
		if actionA[i] != actionC[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical initial policies")
	}
}
