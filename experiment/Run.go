package experiment

import (
	"bufio"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/airhockey/agent/nonlinear/continuous/sac"
	"github.com/samuelfneumann/airhockey/dataset"
	"github.com/samuelfneumann/airhockey/environment/envconfig"
	"github.com/samuelfneumann/airhockey/experiment/tracker"
	"github.com/samuelfneumann/airhockey/initwfn"
	"github.com/samuelfneumann/airhockey/network"
	"github.com/samuelfneumann/airhockey/solver"
)

// Algorithms that can run an experiment
const SAC string = "SAC"

// Environment settings
const (
	horizon           uint    = 120
	discount          float64 = 0.99
	intermediateSteps uint    = 4
)

// Agent settings
const (
	nFeatures         int     = 128
	batchSize         int     = 64
	initialReplaySize int     = 5000
	maxReplaySize     int     = 200000
	warmupTransitions int     = 10000
	tau               float64 = 0.001
	actorLR           float64 = 5e-4
	criticLR          float64 = 5e-4
	alphaLR           float64 = 3e-4
)

// Gain of the Glorot initialization of hidden relu layers
var reluGain float64 = math.Sqrt(2.0)

// evalEpisodes is the number of rendered episodes run when evaluating
// a saved agent, and finalEpisodes the number run after training
const (
	evalEpisodes  int = 20
	finalEpisodes int = 5
)

// Directory that agent checkpoints are written to
const agentDir string = "agents"

// Config describes a complete air-hockey experiment
type Config struct {
	Alg         string // Algorithm to run, currently only SAC
	Environment envconfig.EnvName
	NEpochs     int
	NSteps      int // Training steps per epoch
	NStepsTest  int // Evaluation steps per epoch

	// If AgentPath is non-empty, no training occurs. The checkpoint at
	// AgentPath is loaded and evaluated with rendering instead.
	AgentPath string

	Seed  uint64
	Quiet bool // Suppresses progress bars
}

// Run runs the complete experiment that the argument Config describes.
// Each epoch, the agent learns for NSteps environmental steps, fitting
// on every step, and is then evaluated for NStepsTest steps with its
// deterministic policy. The expected discounted return J, the average
// undiscounted return R, and the policy entropy E over the evaluation
// states are logged each epoch. Agent checkpoints are written before
// and after training.
func Run(c Config) error {
	if c.Alg != SAC {
		return fmt.Errorf("run: no such algorithm %q", c.Alg)
	}

	log.Printf("Experiment Algorithm: %v", c.Alg)

	envConf := envconfig.NewConfig(c.Environment, horizon, discount,
		intermediateSteps)
	env, _, err := envConf.Create(c.Seed)
	if err != nil {
		return fmt.Errorf("run: could not create environment: %v", err)
	}

	agentConf, err := sacConfig(env.ActionSpec().Shape.Len(), c.Seed)
	if err != nil {
		return fmt.Errorf("run: could not create agent "+
			"configuration: %v", err)
	}

	a, err := agentConf.CreateAgent(env, c.Seed)
	if err != nil {
		return fmt.Errorf("run: could not create agent: %v", err)
	}
	sacAgent := a.(*sac.SAC)
	defer sacAgent.Close()

	// Evaluate a saved agent without training
	if c.AgentPath != "" {
		if err := sacAgent.Load(c.AgentPath); err != nil {
			return fmt.Errorf("run: could not load agent: %v", err)
		}

		core := NewCore(env, sacAgent)
		_, err := core.EvaluateEpisodes(evalEpisodes, true, c.Quiet)
		if err != nil {
			return fmt.Errorf("run: could not evaluate agent: %v", err)
		}
		return nil
	}

	if err := os.MkdirAll(agentDir, 0755); err != nil {
		return fmt.Errorf("run: could not create checkpoint "+
			"directory: %v", err)
	}

	returnsFile := filepath.Join(agentDir,
		fmt.Sprintf("air_hockey_%v_returns.bin", c.Environment))
	core := NewCore(env, sacAgent, tracker.NewReturn(returnsFile))

	// Evaluate the untrained agent
	data, err := core.EvaluateSteps(c.NStepsTest, true, c.Quiet)
	if err != nil {
		return fmt.Errorf("run: could not evaluate agent: %v", err)
	}
	if err := logEpoch(0, sacAgent, data); err != nil {
		return fmt.Errorf("run: %v", err)
	}

	initialPath := filepath.Join(agentDir,
		fmt.Sprintf("air_hockey_%v_initial.msh", c.Environment))
	if err := sacAgent.Save(initialPath); err != nil {
		return fmt.Errorf("run: could not save agent: %v", err)
	}

	// Fill the replay buffer to its minimum capacity before any
	// gradient steps
	err = core.Learn(initialReplaySize, initialReplaySize, true)
	if err != nil {
		return fmt.Errorf("run: could not warm up replay buffer: %v", err)
	}

	for epoch := 1; epoch <= c.NEpochs; epoch++ {
		if err := core.Learn(c.NSteps, 1, true); err != nil {
			return fmt.Errorf("run: could not learn on epoch %v: %v",
				epoch, err)
		}

		data, err := core.EvaluateSteps(c.NStepsTest, false, true)
		if err != nil {
			return fmt.Errorf("run: could not evaluate on epoch %v: %v",
				epoch, err)
		}

		if err := logEpoch(epoch, sacAgent, data); err != nil {
			return fmt.Errorf("run: %v", err)
		}
	}

	finalPath := filepath.Join(agentDir,
		fmt.Sprintf("air_hockey_%v.msh", c.Environment))
	if err := sacAgent.Save(finalPath); err != nil {
		return fmt.Errorf("run: could not save agent: %v", err)
	}
	core.Save()

	log.Println("Press a button to visualize")
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return fmt.Errorf("run: could not read from standard "+
			"input: %v", err)
	}

	_, err = core.EvaluateEpisodes(finalEpisodes, true, c.Quiet)
	if err != nil {
		return fmt.Errorf("run: could not run final evaluation: %v", err)
	}
	return nil
}

// logEpoch logs the expected discounted return J, the average
// undiscounted return R, and the policy entropy E of an evaluation
// dataset
func logEpoch(epoch int, agent *sac.SAC, data *dataset.Dataset) error {
	j := data.ComputeJ(discount)
	r := data.AverageReturn()

	entropy, err := agent.AverageEntropy(data.States(), data.Len())
	if err != nil {
		return fmt.Errorf("could not compute policy entropy: %v", err)
	}

	log.Printf("Epoch %3d | J: %9.4f | R: %9.4f | entropy: %7.4f",
		epoch, j, r, entropy)
	return nil
}

// sacConfig returns the configuration of the SAC agent used in the
// air-hockey experiments. Both actor networks and the critic use two
// relu hidden layers with seeded Glorot initialized weights, so that
// runs with equal seeds start from equal weights, trained by Adam.
// The target policy entropy is the negative action dimensionality.
func sacConfig(actionDims int, seed uint64) (sac.Config, error) {
	hiddenInit, err := initwfn.NewGlorotUSeeded(reluGain, seed)
	if err != nil {
		return sac.Config{}, err
	}
	outputInit, err := initwfn.NewGlorotUSeeded(1.0, seed+1)
	if err != nil {
		return sac.Config{}, err
	}

	actorSolver, err := solver.NewDefaultAdam(actorLR, batchSize)
	if err != nil {
		return sac.Config{}, err
	}
	criticSolver, err := solver.NewDefaultAdam(criticLR, batchSize)
	if err != nil {
		return sac.Config{}, err
	}

	return sac.Config{
		ActorHiddenSizes: []int{nFeatures, nFeatures},
		ActorBiases:      []bool{true, true},
		ActorActivations: []*network.Activation{network.ReLU(),
			network.ReLU()},

		CriticHiddenSizes: []int{nFeatures, nFeatures},
		CriticBiases:      []bool{true, true},
		CriticActivations: []*network.Activation{network.ReLU(),
			network.ReLU()},

		HiddenInit: hiddenInit,
		OutputInit: outputInit,

		ActorSolver:  actorSolver,
		CriticSolver: criticSolver,

		InitialLogAlpha: 0.0,
		AlphaLR:         alphaLR,
		TargetEntropy:   -float64(actionDims),

		BatchSize:         batchSize,
		MinReplayCapacity: initialReplaySize,
		MaxReplayCapacity: maxReplaySize,
		WarmupTransitions: warmupTransitions,

		Tau: tau,
	}, nil
}
