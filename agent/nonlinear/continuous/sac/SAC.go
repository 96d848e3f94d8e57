// Package sac implements the soft actor-critic algorithm with
// automatic entropy temperature adjustment
package sac

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/airhockey/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/airhockey/environment"
	"github.com/samuelfneumann/airhockey/expreplay"
	"github.com/samuelfneumann/airhockey/network"
	ts "github.com/samuelfneumann/airhockey/timestep"
)

// Offset of the squashing correction so that its log is defined at
// the action bounds. Must match the offset used on the actor's graph.
const squashEps float64 = 1e-6

// SAC implements the soft actor-critic algorithm. The policy is a
// tanh-squashed Gaussian whose mean and log standard deviation are
// each predicted by an MLP. A single action-value critic is learned
// against a target critic that tracks it by Polyak averaging. The
// entropy temperature α is adjusted so that the policy's entropy
// tracks a target entropy.
//
// Weights are learned on dedicated computational graphs with batch
// inputs, while actions are selected by a separate policy with batch
// size 1. After each gradient step the learned weights are copied to
// the action selection policy.
type SAC struct {
	// Action selection policy (batch size 1)
	behaviour *policy.SquashedGaussianMLP

	// Actor training. The critic is cloned onto the actor's graph so
	// that the actor loss α*logπ(a|s) - Q(s, a) can be differentiated
	// through the reparameterized actions a. Only the actor's weights
	// are updated on this graph.
	trainPolicy    *policy.SquashedGaussianMLP
	actorStates    *G.Node
	actorEps       *G.Node
	actorAlpha     *G.Node
	actorCritic    network.NeuralNet
	actorLogPdfVal G.Value
	actorVM        G.VM
	actorSolver    G.Solver

	// Critic training
	critic        network.NeuralNet
	criticStates  *G.Node
	criticActions *G.Node
	criticTargets *G.Node
	criticVM      G.VM
	criticSolver  G.Solver

	// Networks providing the update target
	// r + γ(Q'(s', a') - α*logπ(a'|s'))
	targetPolicy       *policy.SquashedGaussianMLP
	targetPolicyVM     G.VM
	targetCritic       network.NeuralNet
	targetCriticStates *G.Node
	targetCriticAction *G.Node
	targetCriticVM     G.VM

	// Entropy temperature
	logAlpha      float64
	alphaLR       float64
	targetEntropy float64

	tau float64 // Polyak averaging constant for the target critic

	replay            expreplay.ExperienceReplayer
	warmupTransitions int
	totalSteps        int

	// Last observed timestep, the state of the next stored transition
	prevStep ts.TimeStep

	batchSize  int
	features   int
	actionDims int
	eval       bool
}

// New creates and returns a new SAC agent
func New(env environment.Environment, config Config,
	seed uint64) (*SAC, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("sac: %v", err)
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()
	batchSize := config.BatchSize

	hiddenInit := config.HiddenInit.InitWFn()
	outputInit := config.OutputInit.InitWFn()

	actorInits := make([]G.InitWFn, len(config.ActorHiddenSizes))
	for i := range actorInits {
		actorInits[i] = hiddenInit
	}

	// Behaviour policy for selecting actions
	behaviour, err := policy.NewSquashedGaussianMLP(
		env,
		1,
		G.NewGraph(),
		config.ActorHiddenSizes,
		config.ActorBiases,
		actorInits,
		config.ActorActivations,
		outputInit,
		seed,
		"Behaviour",
	)
	if err != nil {
		return nil, fmt.Errorf("sac: could not create behaviour "+
			"policy: %v", err)
	}

	// Critic network and loss
	criticSizes := append(append([]int{}, config.CriticHiddenSizes...), 1)
	criticBiases := append(append([]bool{}, config.CriticBiases...), true)
	criticActivations := append(append([]*network.Activation{},
		config.CriticActivations...), network.Identity())
	criticInits := make([]G.InitWFn, len(config.CriticHiddenSizes))
	for i := range criticInits {
		criticInits[i] = hiddenInit
	}
	criticInits = append(criticInits, outputInit)

	gCritic := G.NewGraph()
	critic, criticStates, criticActions, err := network.NewStateActionMLP(
		features, actionDims, batchSize, 1, gCritic, criticSizes,
		criticBiases, criticInits, criticActivations, "Critic", "Train")
	if err != nil {
		return nil, fmt.Errorf("sac: could not create critic: %v", err)
	}

	criticTargets := G.NewVector(gCritic, tensor.Float64,
		G.WithShape(batchSize), G.WithName("updateTarget"))
	criticPred := G.Must(G.Ravel(critic.Prediction()))
	criticLosses := G.Must(G.Sub(criticTargets, criticPred))
	criticLosses = G.Must(G.Square(criticLosses))
	criticLoss := G.Must(G.Mean(criticLosses))

	if _, err := G.Grad(criticLoss, critic.Learnables()...); err != nil {
		return nil, fmt.Errorf("sac: could not compute critic "+
			"gradient: %v", err)
	}
	criticVM := G.NewTapeMachine(gCritic,
		G.BindDualValues(critic.Learnables()...))

	// Actor training graph. The policy is cloned with a batch of
	// states as input, reparameterized actions are constructed from a
	// batch of standard normal samples, and the critic is cloned onto
	// the graph taking those actions as input.
	gActor := G.NewGraph()
	actorStates := G.NewMatrix(gActor, tensor.Float64,
		G.WithShape(batchSize, features), G.WithName("actorStates"),
		G.WithInit(G.Zeroes()))

	trainPolicy, err := behaviour.CloneWithInputsTo(actorStates, gActor)
	if err != nil {
		return nil, fmt.Errorf("sac: could not create training "+
			"policy: %v", err)
	}

	actorEps := G.NewMatrix(gActor, tensor.Float64,
		G.WithShape(batchSize, actionDims), G.WithName("actorEps"),
		G.WithInit(G.Zeroes()))

	actions, logPdf, err := trainPolicy.SquashedActionsAndLogPdf(actorEps)
	if err != nil {
		return nil, fmt.Errorf("sac: could not construct actor log "+
			"probability: %v", err)
	}

	actorCritic, err := critic.CloneWithInputsTo(1,
		[]*G.Node{actorStates, actions}, gActor)
	if err != nil {
		return nil, fmt.Errorf("sac: could not clone critic onto the "+
			"actor's graph: %v", err)
	}

	actorAlpha := G.NewScalar(gActor, tensor.Float64,
		G.WithName("alpha"))

	q := G.Must(G.Ravel(actorCritic.Prediction()))
	entropyTerm := G.Must(G.HadamardProd(actorAlpha, logPdf))
	actorLosses := G.Must(G.Sub(entropyTerm, q))
	actorLoss := G.Must(G.Mean(actorLosses))

	if _, err := G.Grad(actorLoss, trainPolicy.Learnables()...); err != nil {
		return nil, fmt.Errorf("sac: could not compute actor "+
			"gradient: %v", err)
	}
	actorVM := G.NewTapeMachine(gActor,
		G.BindDualValues(trainPolicy.Learnables()...))

	// Target policy for computing next actions and their log
	// probability in the update target
	gTargetPolicy := G.NewGraph()
	targetPolicyStates := G.NewMatrix(gTargetPolicy, tensor.Float64,
		G.WithShape(batchSize, features), G.WithName("targetStates"),
		G.WithInit(G.Zeroes()))
	targetPolicy, err := behaviour.CloneWithInputsTo(targetPolicyStates,
		gTargetPolicy)
	if err != nil {
		return nil, fmt.Errorf("sac: could not create target "+
			"policy: %v", err)
	}
	targetPolicyVM := G.NewTapeMachine(gTargetPolicy)

	// Target critic
	gTargetCritic := G.NewGraph()
	targetCritic, targetCriticStates, targetCriticAction, err :=
		network.NewStateActionMLP(features, actionDims, batchSize, 1,
			gTargetCritic, criticSizes, criticBiases, criticInits,
			criticActivations, "Critic", "Target")
	if err != nil {
		return nil, fmt.Errorf("sac: could not create target "+
			"critic: %v", err)
	}
	if err := targetCritic.Set(critic); err != nil {
		return nil, fmt.Errorf("sac: could not initialize target "+
			"critic: %v", err)
	}
	targetCriticVM := G.NewTapeMachine(gTargetCritic)

	// Experience replay
	replay, err := expreplay.New(config.MinReplayCapacity,
		config.MaxReplayCapacity, batchSize, features, actionDims,
		int64(seed))
	if err != nil {
		return nil, fmt.Errorf("sac: could not create experience "+
			"replay buffer: %v", err)
	}

	s := &SAC{
		behaviour: behaviour,

		trainPolicy: trainPolicy,
		actorStates: actorStates,
		actorEps:    actorEps,
		actorAlpha:  actorAlpha,
		actorCritic: actorCritic,
		actorVM:     actorVM,
		actorSolver: config.ActorSolver,

		critic:        critic,
		criticStates:  criticStates,
		criticActions: criticActions,
		criticTargets: criticTargets,
		criticVM:      criticVM,
		criticSolver:  config.CriticSolver,

		targetPolicy:       targetPolicy,
		targetPolicyVM:     targetPolicyVM,
		targetCritic:       targetCritic,
		targetCriticStates: targetCriticStates,
		targetCriticAction: targetCriticAction,
		targetCriticVM:     targetCriticVM,

		logAlpha:      config.InitialLogAlpha,
		alphaLR:       config.AlphaLR,
		targetEntropy: config.TargetEntropy,

		tau: config.Tau,

		replay:            replay,
		warmupTransitions: config.WarmupTransitions,

		batchSize:  batchSize,
		features:   features,
		actionDims: actionDims,
	}
	G.Read(logPdf, &s.actorLogPdfVal)

	return s, nil
}

// ObserveFirst observes and records the first episodic timestep
func (s *SAC) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observefirst: timestep is not the first of "+
			"its episode (timestep number %d)", t.Number)
	}
	s.prevStep = t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep. Every transition is stored as soon as it is observed,
// including the transition into an episode's final timestep, which
// carries the episode's terminal reward.
func (s *SAC) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if action.Len() != s.actionDims {
		return fmt.Errorf("observe: invalid action dimensions "+
			"\n\twant(%v) \n\thave(%v)", s.actionDims, action.Len())
	}

	transition := ts.NewTransition(s.prevStep, action, nextStep, nil)
	if err := s.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: could not add to replay "+
			"buffer: %v", err)
	}
	s.totalSteps++

	s.prevStep = nextStep
	return nil
}

// Step updates the weights of the agent's critic, actor, and entropy
// temperature. No weights are updated until the replay buffer has
// exceeded its minimum capacity, and the actor and temperature are
// not updated until the warmup transitions have been observed.
func (s *SAC) Step() error {
	// Filling the buffer to its minimum capacity is pure data
	// collection and performs no update
	if s.replay.Capacity() <= s.replay.MinCapacity() {
		return nil
	}

	S, A, R, discount, NextS, err := s.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: could not sample replay buffer: %v", err)
	}

	alpha := math.Exp(s.logAlpha)

	// Compute the update target r + γ(Q'(s', a') - α*logπ(a'|s'))
	nextActions, nextLogPdf, err := s.nextActions(NextS)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	nextQ, err := s.nextActionValues(NextS, nextActions)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	target := make([]float64, s.batchSize)
	for i := range target {
		target[i] = R[i] + discount[i]*(nextQ[i]-alpha*nextLogPdf[i])
	}

	// Update the critic
	if err := s.updateCritic(S, A, target); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	if err := s.targetCritic.Polyak(s.critic, s.tau); err != nil {
		return fmt.Errorf("step: could not update target critic: %v", err)
	}
	if err := s.actorCritic.Set(s.critic); err != nil {
		return fmt.Errorf("step: could not sync the critic on the "+
			"actor's graph: %v", err)
	}

	// Update the actor and the entropy temperature after warmup
	if s.totalSteps < s.warmupTransitions {
		return nil
	}

	meanLogPdf, err := s.updateActor(S, alpha)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// Gradient descent step on the temperature loss
	// -logα * (logπ + target entropy). The temperature rises when the
	// policy's entropy falls below the target and falls otherwise.
	s.logAlpha += s.alphaLR * (meanLogPdf + s.targetEntropy)

	// Copy the learned actor weights to the action selection and
	// target policies
	if err := s.behaviour.Set(s.trainPolicy); err != nil {
		return fmt.Errorf("step: could not sync behaviour policy: %v", err)
	}
	if err := s.targetPolicy.Set(s.trainPolicy); err != nil {
		return fmt.Errorf("step: could not sync target policy: %v", err)
	}
	return nil
}

// nextActions samples actions for a batch of next states from the
// target policy, returning the actions and their log probability
// under the policy. The actions and log probability are computed
// numerically, outside any computational graph, since no gradient
// flows through the update target.
func (s *SAC) nextActions(nextStates []float64) ([]float64, []float64,
	error) {
	if err := s.targetPolicy.SetInput(nextStates); err != nil {
		return nil, nil, fmt.Errorf("could not set target policy "+
			"input: %v", err)
	}
	if err := s.targetPolicyVM.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("could not run target policy: %v", err)
	}
	defer s.targetPolicyVM.Reset()

	mean := s.targetPolicy.MeanVal().Data().([]float64)
	stddev := s.targetPolicy.StddevVal().Data().([]float64)
	eps := s.targetPolicy.Rand(s.batchSize)
	scale := s.targetPolicy.ActionScale()

	actions := make([]float64, s.batchSize*s.actionDims)
	logPdf := make([]float64, s.batchSize)
	for i := 0; i < s.batchSize; i++ {
		for j := 0; j < s.actionDims; j++ {
			k := i*s.actionDims + j
			u := mean[k] + stddev[k]*eps[k]
			tanhU := math.Tanh(u)
			actions[k] = scale * tanhU

			logPdf[i] += -math.Log(stddev[k]) -
				0.5*math.Log(2*math.Pi) - 0.5*eps[k]*eps[k] -
				math.Log(scale*(1.0-tanhU*tanhU)+squashEps)
		}
	}

	return actions, logPdf, nil
}

// nextActionValues computes the target critic's value of a batch of
// next states and next actions
func (s *SAC) nextActionValues(nextStates, nextActions []float64) ([]float64,
	error) {
	statesTensor := tensor.New(
		tensor.WithShape(s.batchSize, s.features),
		tensor.WithBacking(nextStates),
	)
	if err := G.Let(s.targetCriticStates, statesTensor); err != nil {
		return nil, fmt.Errorf("could not set target critic states: %v",
			err)
	}

	actionsTensor := tensor.New(
		tensor.WithShape(s.batchSize, s.actionDims),
		tensor.WithBacking(nextActions),
	)
	if err := G.Let(s.targetCriticAction, actionsTensor); err != nil {
		return nil, fmt.Errorf("could not set target critic actions: %v",
			err)
	}

	if err := s.targetCriticVM.RunAll(); err != nil {
		return nil, fmt.Errorf("could not run target critic: %v", err)
	}
	defer s.targetCriticVM.Reset()

	output := s.targetCritic.Output().Data().([]float64)
	nextQ := make([]float64, len(output))
	copy(nextQ, output)

	return nextQ, nil
}

// updateCritic performs a single gradient step on the critic towards
// the argument update target
func (s *SAC) updateCritic(states, actions, target []float64) error {
	statesTensor := tensor.New(
		tensor.WithShape(s.batchSize, s.features),
		tensor.WithBacking(states),
	)
	if err := G.Let(s.criticStates, statesTensor); err != nil {
		return fmt.Errorf("could not set critic states: %v", err)
	}

	actionsTensor := tensor.New(
		tensor.WithShape(s.batchSize, s.actionDims),
		tensor.WithBacking(actions),
	)
	if err := G.Let(s.criticActions, actionsTensor); err != nil {
		return fmt.Errorf("could not set critic actions: %v", err)
	}

	targetTensor := tensor.New(
		tensor.WithShape(s.batchSize),
		tensor.WithBacking(target),
	)
	if err := G.Let(s.criticTargets, targetTensor); err != nil {
		return fmt.Errorf("could not set critic update target: %v", err)
	}

	if err := s.criticVM.RunAll(); err != nil {
		return fmt.Errorf("could not run critic update: %v", err)
	}
	defer s.criticVM.Reset()

	if err := s.criticSolver.Step(s.critic.Model()); err != nil {
		return fmt.Errorf("could not step critic solver: %v", err)
	}
	return nil
}

// updateActor performs a single gradient step on the actor and returns
// the mean log probability of the actions sampled during the update,
// which is used to adjust the entropy temperature
func (s *SAC) updateActor(states []float64, alpha float64) (float64,
	error) {
	if err := s.trainPolicy.SetInput(states); err != nil {
		return 0, fmt.Errorf("could not set actor states: %v", err)
	}

	eps := s.trainPolicy.Rand(s.batchSize)
	epsTensor := tensor.New(
		tensor.WithShape(s.batchSize, s.actionDims),
		tensor.WithBacking(eps),
	)
	if err := G.Let(s.actorEps, epsTensor); err != nil {
		return 0, fmt.Errorf("could not set actor normal samples: %v", err)
	}

	if err := G.Let(s.actorAlpha, alpha); err != nil {
		return 0, fmt.Errorf("could not set entropy temperature: %v", err)
	}

	if err := s.actorVM.RunAll(); err != nil {
		return 0, fmt.Errorf("could not run actor update: %v", err)
	}
	defer s.actorVM.Reset()

	if err := s.actorSolver.Step(s.trainPolicy.Model()); err != nil {
		return 0, fmt.Errorf("could not step actor solver: %v", err)
	}

	logPdf := s.actorLogPdfVal.Data().([]float64)
	meanLogPdf := 0.0
	for _, lp := range logPdf {
		meanLogPdf += lp
	}
	meanLogPdf /= float64(len(logPdf))

	return meanLogPdf, nil
}

// SelectAction returns an action selected by the behaviour policy at
// the argument timestep. In evaluation mode the policy's mean action
// is selected.
func (s *SAC) SelectAction(t ts.TimeStep) *mat.VecDense {
	return s.behaviour.SelectAction(t)
}

// AverageEntropy returns the closed-form entropy of the policy's
// Gaussian distributions at the argument states, averaged over the
// states. The states parameter holds rows state observations in row
// major order.
func (s *SAC) AverageEntropy(states []float64, rows int) (float64, error) {
	if rows <= 0 {
		return 0, fmt.Errorf("averageentropy: no states given")
	}

	g := G.NewGraph()
	stateNode := G.NewMatrix(g, tensor.Float64,
		G.WithShape(rows, s.features), G.WithName("entropyStates"),
		G.WithInit(G.Zeroes()))

	pol, err := s.behaviour.CloneWithInputsTo(stateNode, g)
	if err != nil {
		return 0, fmt.Errorf("averageentropy: could not clone "+
			"policy: %v", err)
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	if err := pol.SetInput(states); err != nil {
		return 0, fmt.Errorf("averageentropy: could not set states: %v",
			err)
	}
	if err := vm.RunAll(); err != nil {
		return 0, fmt.Errorf("averageentropy: could not run policy: %v",
			err)
	}

	return pol.Entropy(), nil
}

// TotalSteps returns the number of transitions the agent has observed
func (s *SAC) TotalSteps() int {
	return s.totalSteps
}

// ReplayCapacity returns the current number of samples in the agent's
// replay buffer
func (s *SAC) ReplayCapacity() int {
	return s.replay.Capacity()
}

// LogAlpha returns the log of the agent's entropy temperature
func (s *SAC) LogAlpha() float64 {
	return s.logAlpha
}

// Eval sets the agent into evaluation mode
func (s *SAC) Eval() {
	s.eval = true
	s.behaviour.Eval()
}

// Train sets the agent into training mode
func (s *SAC) Train() {
	s.eval = false
	s.behaviour.Train()
}

// IsEval returns whether the agent is in evaluation mode
func (s *SAC) IsEval() bool {
	return s.eval
}

// EndEpisode performs cleanup at the end of an episode
func (s *SAC) EndEpisode() {}

// Close releases the agent's VMs
func (s *SAC) Close() error {
	if err := s.behaviour.Close(); err != nil {
		return err
	}
	for _, vm := range []G.VM{s.actorVM, s.criticVM, s.targetPolicyVM,
		s.targetCriticVM} {
		if err := vm.Close(); err != nil {
			return err
		}
	}
	return nil
}

// checkpoint is the gob-encoded layout of a saved SAC agent
type checkpoint struct {
	Mean     []byte
	LogStd   []byte
	Critic   []byte
	LogAlpha float64
	Steps    int
}

// Save writes the agent's learned weights and entropy temperature to
// the file at path
func (s *SAC) Save(path string) error {
	meanBytes, err := s.trainPolicy.MeanNetwork().GobEncode()
	if err != nil {
		return fmt.Errorf("save: could not encode mean network: %v", err)
	}
	logStdBytes, err := s.trainPolicy.LogStdNetwork().GobEncode()
	if err != nil {
		return fmt.Errorf("save: could not encode log std network: %v",
			err)
	}
	criticBytes, err := s.critic.GobEncode()
	if err != nil {
		return fmt.Errorf("save: could not encode critic: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: could not create %v: %v", path, err)
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	err = enc.Encode(checkpoint{
		Mean:     meanBytes,
		LogStd:   logStdBytes,
		Critic:   criticBytes,
		LogAlpha: s.logAlpha,
		Steps:    s.totalSteps,
	})
	if err != nil {
		return fmt.Errorf("save: could not encode agent: %v", err)
	}
	return nil
}

// Load restores the agent's learned weights and entropy temperature
// from the file at path. The agent must have been constructed with the
// same configuration that produced the checkpoint.
func (s *SAC) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: could not open %v: %v", path, err)
	}
	defer f.Close()

	var ckpt checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return fmt.Errorf("load: could not decode agent: %v", err)
	}

	err = s.trainPolicy.MeanNetwork().GobDecode(ckpt.Mean)
	if err != nil {
		return fmt.Errorf("load: could not decode mean network: %v", err)
	}
	err = s.trainPolicy.LogStdNetwork().GobDecode(ckpt.LogStd)
	if err != nil {
		return fmt.Errorf("load: could not decode log std network: %v",
			err)
	}
	if err := s.critic.GobDecode(ckpt.Critic); err != nil {
		return fmt.Errorf("load: could not decode critic: %v", err)
	}

	s.logAlpha = ckpt.LogAlpha
	s.totalSteps = ckpt.Steps

	// Propagate the restored weights to the remaining networks
	if err := s.behaviour.Set(s.trainPolicy); err != nil {
		return fmt.Errorf("load: could not sync behaviour policy: %v", err)
	}
	if err := s.targetPolicy.Set(s.trainPolicy); err != nil {
		return fmt.Errorf("load: could not sync target policy: %v", err)
	}
	if err := s.actorCritic.Set(s.critic); err != nil {
		return fmt.Errorf("load: could not sync the critic on the "+
			"actor's graph: %v", err)
	}
	if err := s.targetCritic.Set(s.critic); err != nil {
		return fmt.Errorf("load: could not sync target critic: %v", err)
	}
	return nil
}
