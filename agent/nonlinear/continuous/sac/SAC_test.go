package sac

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/airhockey/environment"
	"github.com/samuelfneumann/airhockey/environment/envconfig"
	"github.com/samuelfneumann/airhockey/initwfn"
	"github.com/samuelfneumann/airhockey/network"
	"github.com/samuelfneumann/airhockey/solver"
	"github.com/samuelfneumann/airhockey/timestep"
)

// testConfig returns a small configuration so that tests construct
// quickly
func testConfig(t *testing.T) Config {
	hiddenInit, err := initwfn.NewGlorotU(math.Sqrt(2.0))
	if err != nil {
		t.Fatal(err)
	}
	outputInit, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}

	actorSolver, err := solver.NewDefaultAdam(0.001, 4)
	if err != nil {
		t.Fatal(err)
	}
	criticSolver, err := solver.NewDefaultAdam(0.001, 4)
	if err != nil {
		t.Fatal(err)
	}

	return Config{
		ActorHiddenSizes: []int{8},
		ActorBiases:      []bool{true},
		ActorActivations: []*network.Activation{network.ReLU()},

		CriticHiddenSizes: []int{8},
		CriticBiases:      []bool{true},
		CriticActivations: []*network.Activation{network.ReLU()},

		HiddenInit: hiddenInit,
		OutputInit: outputInit,

		ActorSolver:  actorSolver,
		CriticSolver: criticSolver,

		InitialLogAlpha: 0.0,
		AlphaLR:         0.0003,
		TargetEntropy:   -2.0,

		BatchSize:         4,
		MinReplayCapacity: 8,
		MaxReplayCapacity: 32,
		WarmupTransitions: 100,

		Tau: 0.01,
	}
}

func testEnv(t *testing.T, seed uint64) (environment.Environment,
	timestep.TimeStep) {
	config := envconfig.NewConfig(envconfig.Hit, 120, 0.99, 4)
	env, first, err := config.Create(seed)
	if err != nil {
		t.Fatal(err)
	}
	return env, first
}

func TestConfigValidate(t *testing.T) {
	config := testConfig(t)
	if err := config.Validate(); err != nil {
		t.Fatalf("valid configuration did not validate: %v", err)
	}

	invalid := config
	invalid.ActorBiases = []bool{true, true}
	if err := invalid.Validate(); err == nil {
		t.Error("expected an error for mismatched actor biases")
	}

	invalid = config
	invalid.MinReplayCapacity = config.BatchSize - 1
	if err := invalid.Validate(); err == nil {
		t.Error("expected an error for minimum capacity < batch size")
	}

	invalid = config
	invalid.Tau = 0.0
	if err := invalid.Validate(); err == nil {
		t.Error("expected an error for tau outside (0, 1]")
	}

	invalid = config
	invalid.ActorSolver = nil
	if err := invalid.Validate(); err == nil {
		t.Error("expected an error for a missing solver")
	}
}

func TestSelectActionBounds(t *testing.T) {
	env, first := testEnv(t, 21)
	agent, err := New(env, testConfig(t), 21)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	if err := agent.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}

	step := first
	for i := 0; i < 10; i++ {
		action := agent.SelectAction(step)
		if action.Len() != 2 {
			t.Fatalf("invalid action dimensions \n\twant(%v) "+
				"\n\thave(%v)", 2, action.Len())
		}
		for j := 0; j < action.Len(); j++ {
			if math.Abs(action.AtVec(j)) > 1.0 {
				t.Errorf("action outside the legal range: %v",
					action.AtVec(j))
			}
		}

		step, _ = env.Step(action)
		if err := agent.Observe(action, step); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEvalActionsDeterministic(t *testing.T) {
	env, first := testEnv(t, 9)
	agent, err := New(env, testConfig(t), 9)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	if agent.IsEval() {
		t.Error("agents should be constructed in training mode")
	}

	agent.Eval()
	if !agent.IsEval() {
		t.Error("Eval() did not place the agent in evaluation mode")
	}

	action := agent.SelectAction(first)
	repeat := agent.SelectAction(first)
	for i := 0; i < action.Len(); i++ {
		if action.AtVec(i) != repeat.AtVec(i) {
			t.Errorf("evaluation actions are not deterministic at "+
				"index %v", i)
		}
	}

	agent.Train()
	if agent.IsEval() {
		t.Error("Train() did not place the agent back in training mode")
	}
}

func TestObserveFirstRequiresFirstTimeStep(t *testing.T) {
	env, first := testEnv(t, 33)
	agent, err := New(env, testConfig(t), 33)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	if err := agent.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}

	action := agent.SelectAction(first)
	mid, _ := env.Step(action)
	if err := agent.ObserveFirst(mid); err == nil {
		t.Error("expected an error when observing a non-first timestep " +
			"with ObserveFirst")
	}
}

func TestStepBeforeMinCapacity(t *testing.T) {
	env, first := testEnv(t, 64)
	agent, err := New(env, testConfig(t), 64)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	if err := agent.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}

	// Observe fewer transitions than the replay buffer's minimum
	// capacity
	step := first
	for i := 0; i < 4; i++ {
		action := agent.SelectAction(step)
		step, _ = env.Step(action)
		if err := agent.Observe(action, step); err != nil {
			t.Fatal(err)
		}

		if err := agent.Step(); err != nil {
			t.Errorf("Step should not error before the replay buffer "+
				"reaches its minimum capacity: %v", err)
		}
	}

	if agent.TotalSteps() != 4 {
		t.Errorf("invalid number of observed transitions \n\twant(%v) "+
			"\n\thave(%v)", 4, agent.TotalSteps())
	}
	if agent.ReplayCapacity() != 4 {
		t.Errorf("invalid replay buffer capacity \n\twant(%v) "+
			"\n\thave(%v)", 4, agent.ReplayCapacity())
	}
	if agent.LogAlpha() != 0.0 {
		t.Errorf("temperature should not change before the warmup "+
			"transitions have been observed: %v", agent.LogAlpha())
	}
}

// TestObserveStoresTerminalTransition ensures that the transition
// into an episode's final timestep, which carries the terminal
// reward, is stored in the replay buffer as soon as it is observed.
func TestObserveStoresTerminalTransition(t *testing.T) {
	env, first := testEnv(t, 17)

	config := testConfig(t)
	config.BatchSize = 1
	config.MinReplayCapacity = 1
	config.MaxReplayCapacity = 8
	agent, err := New(env, config, 17)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	if err := agent.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}

	// The episode ends immediately with a terminal reward and zero
	// discount
	action := mat.NewVecDense(2, []float64{0.5, -0.5})
	terminalObs := mat.NewVecDense(8, make([]float64, 8))
	terminal := timestep.New(timestep.Last, 100.0, 0.0, terminalObs, 1)
	if err := agent.Observe(action, terminal); err != nil {
		t.Fatal(err)
	}

	if agent.ReplayCapacity() != 1 {
		t.Fatalf("terminal transition was not stored \n\twant(%v) "+
			"\n\thave(%v)", 1, agent.ReplayCapacity())
	}

	S, A, R, discount, NextS, err := agent.replay.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if R[0] != 100.0 {
		t.Errorf("invalid stored terminal reward \n\twant(%v) "+
			"\n\thave(%v)", 100.0, R[0])
	}
	if discount[0] != 0.0 {
		t.Errorf("invalid stored terminal discount \n\twant(%v) "+
			"\n\thave(%v)", 0.0, discount[0])
	}
	for i := range NextS {
		if NextS[i] != terminalObs.AtVec(i) {
			t.Errorf("invalid stored terminal state at index %v", i)
		}
	}
	for i := range S {
		if S[i] != first.Observation.AtVec(i) {
			t.Errorf("invalid stored state at index %v", i)
		}
	}
	if A[0] != 0.5 || A[1] != -0.5 {
		t.Errorf("invalid stored action (%v, %v)", A[0], A[1])
	}
}

// snapshotLearnables copies the current values of every learnable of
// the argument networks
func snapshotLearnables(agent *SAC) [][]float64 {
	var snapshot [][]float64
	for _, learnables := range []G.Nodes{agent.critic.Learnables(),
		agent.behaviour.Learnables()} {
		for _, learnable := range learnables {
			data := learnable.Value().Data().([]float64)
			weights := make([]float64, len(data))
			copy(weights, data)
			snapshot = append(snapshot, weights)
		}
	}
	return snapshot
}

// TestWarmupLeavesWeightsUntouched runs a data collection phase that
// exactly fills the replay buffer to its minimum capacity, followed
// by zero training epochs. Every observed transition must be stored
// and no network weight may change.
func TestWarmupLeavesWeightsUntouched(t *testing.T) {
	env, first := testEnv(t, 42)
	agent, err := New(env, testConfig(t), 42)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	warmup := agent.replay.MinCapacity()
	before := snapshotLearnables(agent)
	logAlpha := agent.LogAlpha()

	if err := agent.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}
	step := first
	for i := 0; i < warmup; i++ {
		action := agent.SelectAction(step)
		step, _ = env.Step(action)
		if err := agent.Observe(action, step); err != nil {
			t.Fatal(err)
		}

		if step.Last() {
			agent.EndEpisode()
			step = env.Reset()
			if err := agent.ObserveFirst(step); err != nil {
				t.Fatal(err)
			}
		}
	}

	// One fit at the end of the collection phase, before any training
	// epoch
	if err := agent.Step(); err != nil {
		t.Fatal(err)
	}

	if agent.ReplayCapacity() != warmup {
		t.Errorf("invalid number of stored transitions \n\twant(%v) "+
			"\n\thave(%v)", warmup, agent.ReplayCapacity())
	}
	if agent.TotalSteps() != warmup {
		t.Errorf("invalid number of observed transitions \n\twant(%v) "+
			"\n\thave(%v)", warmup, agent.TotalSteps())
	}
	if agent.LogAlpha() != logAlpha {
		t.Errorf("temperature changed during data collection "+
			"\n\twant(%v) \n\thave(%v)", logAlpha, agent.LogAlpha())
	}

	after := snapshotLearnables(agent)
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				t.Fatalf("weights changed during data collection at "+
					"learnable %v, index %v", i, j)
			}
		}
	}
}

func TestSaveLoad(t *testing.T) {
	env, first := testEnv(t, 8)
	agent, err := New(env, testConfig(t), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	// Observe some transitions so the checkpoint records a nonzero
	// step count
	if err := agent.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}
	step := first
	for i := 0; i < 3; i++ {
		action := agent.SelectAction(step)
		step, _ = env.Step(action)
		if err := agent.Observe(action, step); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "agent.msh")
	if err := agent.Save(path); err != nil {
		t.Fatal(err)
	}

	config := testConfig(t)
	config.InitialLogAlpha = -1.0
	loaded, err := New(env, config, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Close()

	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}

	if loaded.LogAlpha() != agent.LogAlpha() {
		t.Errorf("invalid temperature after loading \n\twant(%v) "+
			"\n\thave(%v)", agent.LogAlpha(), loaded.LogAlpha())
	}
	if loaded.TotalSteps() != agent.TotalSteps() {
		t.Errorf("invalid step count after loading \n\twant(%v) "+
			"\n\thave(%v)", agent.TotalSteps(), loaded.TotalSteps())
	}

	// The loaded behaviour policy produces the same deterministic
	// actions as the saved one
	agent.Eval()
	loaded.Eval()
	want := agent.SelectAction(first)
	have := loaded.SelectAction(first)
	for i := 0; i < want.Len(); i++ {
		if want.AtVec(i) != have.AtVec(i) {
			t.Errorf("loaded policy disagrees with the saved policy at "+
				"index %v \n\twant(%v) \n\thave(%v)", i, want.AtVec(i),
				have.AtVec(i))
		}
	}
}
