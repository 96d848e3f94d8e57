// Package policy implements policies for agents that use neural
// network function approximation
package policy

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/airhockey/environment"
	"github.com/samuelfneumann/airhockey/network"
	"github.com/samuelfneumann/airhockey/timestep"
	"github.com/samuelfneumann/airhockey/utils/floatutils"
)

// For stability, the standard deviation of the Gaussian distribution
// should be offset from 0.
const stdOffset float64 = 1e-3

// Offset of the squashing correction so that its log is defined at
// the action bounds
const squashEps float64 = 1e-6

// SquashedGaussianMLP implements a Gaussian policy whose samples are
// squashed through tanh and scaled to the action bounds. The mean and
// log standard deviation of the Gaussian are each predicted by a
// separate MLP. Both MLPs share a single computational graph so that
// one VM can run both networks.
//
// Given network predictions of the mean μ and standard deviation σ,
// actions are selected by sampling from the standard normal
// ɛ ~ N(0, 1) and computing action := c * tanh(μ + σ * ɛ), where c is
// the action bound. In evaluation mode the policy is deterministic and
// selects action := c * tanh(μ).
//
// For learning, the policy can construct the squashed actions and
// their log probability as nodes on its computational graph from an
// externally-provided node of standard normal samples, so that
// gradients flow through the action selection process in the manner
// of the reparameterization trick.
type SquashedGaussianMLP struct {
	meanNet   network.NeuralNet
	logStdNet network.NeuralNet

	mean   *G.Node
	stddev *G.Node

	meanVal   G.Value
	stddevVal G.Value

	vm G.VM // Non-nil only when the batch size is 1

	normal      distmv.Rander
	actionDims  int
	actionScale float64
	batchSize   int
	seed        uint64
	eval        bool
}

// NewSquashedGaussianMLP returns a new SquashedGaussianMLP policy that
// selects actions in the argument environment. The hiddenSizes,
// biases, inits, and activations parameters define the hidden layers
// of both the mean and log standard deviation networks. A final linear
// layer of size equal to the environment's action dimensionality is
// added to each network, with weights initialized by outputInit.
//
// The networks are placed on the graph g. The suffix parameter is
// appended to the names of the networks' parameter nodes so that
// clones of the policy can share a graph with other networks.
//
// Actions can be selected with SelectAction() only when batch = 1.
// Policies with larger batch sizes are used for learning weights.
func NewSquashedGaussianMLP(env environment.Environment, batch int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, inits []G.InitWFn,
	activations []*network.Activation, outputInit G.InitWFn, seed uint64,
	suffix string) (*SquashedGaussianMLP, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("newsquashedgaussianmlp: actions must be " +
			"continuous")
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	lower := env.ActionSpec().LowerBound
	upper := env.ActionSpec().UpperBound
	for i := 0; i < actionDims; i++ {
		if lower.AtVec(i) != -upper.AtVec(i) {
			return nil, fmt.Errorf("newsquashedgaussianmlp: action "+
				"bounds must be symmetric \n\twant(%v) \n\thave(%v)",
				-upper.AtVec(i), lower.AtVec(i))
		}
	}
	actionScale := upper.AtVec(0)

	// Append the linear output layer to the hidden layer description
	sizes := append(append([]int{}, hiddenSizes...), actionDims)
	layerBiases := append(append([]bool{}, biases...), true)
	layerInits := append(append([]G.InitWFn{}, inits...), outputInit)
	layerActivations := append(append([]*network.Activation{},
		activations...), network.Identity())

	meanNet, err := network.NewMultiHeadMLP(features, batch, actionDims,
		g, sizes, layerBiases, layerInits, layerActivations, "Mean",
		suffix)
	if err != nil {
		return nil, fmt.Errorf("newsquashedgaussianmlp: could not "+
			"create mean network: %v", err)
	}

	logStdNet, err := network.NewMultiHeadMLP(features, batch, actionDims,
		g, sizes, layerBiases, layerInits, layerActivations, "LogStd",
		suffix)
	if err != nil {
		return nil, fmt.Errorf("newsquashedgaussianmlp: could not "+
			"create log std network: %v", err)
	}

	pol := newFromNets(meanNet, logStdNet, actionDims, actionScale, batch,
		seed)

	if batch == 1 {
		pol.vm = G.NewTapeMachine(g)
	}

	return pol, nil
}

// newFromNets creates a SquashedGaussianMLP from already-constructed
// mean and log standard deviation networks
func newFromNets(meanNet, logStdNet network.NeuralNet, actionDims int,
	actionScale float64, batch int, seed uint64) *SquashedGaussianMLP {
	// Calculate the standard deviation and offset it for numerical
	// stability
	offset := G.NewConstant(stdOffset)
	stddev := G.Must(G.Exp(logStdNet.Prediction()))
	stddev = G.Must(G.Add(offset, stddev))

	// Create standard normal for action selection
	means := make([]float64, actionDims)
	stds := mat.NewDiagDense(actionDims, floatutils.Ones(actionDims))
	source := rand.NewSource(seed)
	normal, ok := distmv.NewNormal(means, stds, source)
	if !ok {
		panic("newfromnets: could not create standard normal for " +
			"action selection")
	}

	pol := &SquashedGaussianMLP{
		meanNet:   meanNet,
		logStdNet: logStdNet,

		mean:   meanNet.Prediction(),
		stddev: stddev,

		normal:      normal,
		actionDims:  actionDims,
		actionScale: actionScale,
		batchSize:   batch,
		seed:        seed,
	}

	// Record values of Gorgonia nodes
	G.Read(pol.mean, &pol.meanVal)
	G.Read(pol.stddev, &pol.stddevVal)

	return pol
}

// CloneWithInputsTo clones the policy onto the graph g, with the
// argument state node as the input to both of the policy's networks.
// The batch size of the clone is the batch size of the state node.
// Clones cannot select actions with SelectAction().
func (s *SquashedGaussianMLP) CloneWithInputsTo(state *G.Node,
	g *G.ExprGraph) (*SquashedGaussianMLP, error) {
	meanNet, err := s.meanNet.CloneWithInputsTo(-1, []*G.Node{state}, g)
	if err != nil {
		return nil, fmt.Errorf("clonewithinputsto: could not clone "+
			"mean network: %v", err)
	}

	logStdNet, err := s.logStdNet.CloneWithInputsTo(-1, []*G.Node{state}, g)
	if err != nil {
		return nil, fmt.Errorf("clonewithinputsto: could not clone "+
			"log std network: %v", err)
	}

	batch := state.Shape()[0]

	return newFromNets(meanNet, logStdNet, s.actionDims, s.actionScale,
		batch, s.seed), nil
}

// SquashedActionsAndLogPdf adds nodes to the policy's computational
// graph that compute the squashed, scaled actions a := c * tanh(u),
// u := μ + σ * ɛ, along with the log probability of those actions
// under the policy. The eps parameter must be a node of shape
// (batch, actionDims) that will hold samples from the standard normal.
//
// The log probability corrects the Gaussian density for the tanh
// squashing and scaling:
//
//	log π(a|s) = Σ[-log(σ) - log(2π)/2 - ɛ²/2 - log(c(1 - tanh(u)²))]
//
// where the sum runs over action dimensions.
func (s *SquashedGaussianMLP) SquashedActionsAndLogPdf(eps *G.Node) (*G.Node,
	*G.Node, error) {
	if eps.Graph() != s.mean.Graph() {
		return nil, nil, fmt.Errorf("squashedactionsandlogpdf: eps must " +
			"share the policy's graph")
	}

	u := G.Must(G.Add(s.mean, G.Must(G.HadamardProd(s.stddev, eps))))
	tanhU := G.Must(G.Tanh(u))

	scale := G.NewConstant(s.actionScale)
	actions := G.Must(G.HadamardProd(scale, tanhU))

	// Per-dimension Gaussian log density of u. Since u = μ + σ * ɛ,
	// the exponent (u - μ)²/σ² reduces to ɛ².
	half := G.NewConstant(0.5)
	halfLog2Pi := G.NewConstant(0.5 * math.Log(2*math.Pi))
	epsSquared := G.Must(G.HadamardProd(eps, eps))
	gaussTerms := G.Must(G.Log(s.stddev))
	gaussTerms = G.Must(G.Add(gaussTerms, halfLog2Pi))
	gaussTerms = G.Must(G.Add(gaussTerms,
		G.Must(G.HadamardProd(half, epsSquared))))
	logPdf := G.Must(G.Neg(gaussTerms))

	// Change of variables correction for a = c * tanh(u)
	one := G.NewConstant(1.0)
	jacobian := G.Must(G.Sub(one, G.Must(G.HadamardProd(tanhU, tanhU))))
	jacobian = G.Must(G.HadamardProd(scale, jacobian))
	jacobian = G.Must(G.Add(jacobian, G.NewConstant(squashEps)))
	logPdf = G.Must(G.Sub(logPdf, G.Must(G.Log(jacobian))))

	// Sum over action dimensions
	logPdf = G.Must(G.Sum(logPdf, 1))

	return actions, logPdf, nil
}

// SelectAction selects and returns an action at the argument timestep
// t. In evaluation mode the mean action is selected.
func (s *SquashedGaussianMLP) SelectAction(
	t timestep.TimeStep) *mat.VecDense {
	if s.batchSize != 1 {
		panic(fmt.Sprintf("selectaction: action selection can only be "+
			"done with a policy with batch size 1 \n\twant(1) "+
			"\n\thave(%v)", s.batchSize))
	}

	obs := t.Observation.(*mat.VecDense).RawVector().Data
	if err := s.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: cannot set input: %v", err))
	}

	if err := s.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run policy VM: %v",
			err))
	}
	defer s.vm.Reset()

	mean := s.meanVal.Data().([]float64)

	action := mat.NewVecDense(s.actionDims, nil)
	if s.eval {
		for i := 0; i < s.actionDims; i++ {
			action.SetVec(i, s.actionScale*math.Tanh(mean[i]))
		}
		return action
	}

	stddev := s.stddevVal.Data().([]float64)
	eps := s.normal.Rand(nil)
	for i := 0; i < s.actionDims; i++ {
		u := mean[i] + stddev[i]*eps[i]
		action.SetVec(i, s.actionScale*math.Tanh(u))
	}

	return action
}

// SetInput sets the state observation input of both of the policy's
// networks
func (s *SquashedGaussianMLP) SetInput(obs []float64) error {
	if err := s.meanNet.SetInput(obs); err != nil {
		return fmt.Errorf("setinput: could not set mean network "+
			"input: %v", err)
	}
	if err := s.logStdNet.SetInput(obs); err != nil {
		return fmt.Errorf("setinput: could not set log std network "+
			"input: %v", err)
	}
	return nil
}

// Entropy returns the average closed-form entropy of the Gaussian
// distributions predicted in the policy's last run:
//
//	H = Σ log(σ) + (d/2) * (1 + log(2π))
//
// averaged over the batch, where d is the action dimensionality. A VM
// on the policy's graph must have been run before calling Entropy().
func (s *SquashedGaussianMLP) Entropy() float64 {
	stddev := s.stddevVal.Data().([]float64)

	entropy := 0.0
	for _, std := range stddev {
		entropy += math.Log(std)
	}
	entropy /= float64(s.batchSize)
	entropy += float64(s.actionDims) / 2.0 * (1.0 + math.Log(2*math.Pi))

	return entropy
}

// Mean returns the node holding the mean of the policy's Gaussian
func (s *SquashedGaussianMLP) Mean() *G.Node {
	return s.mean
}

// Stddev returns the node holding the offset standard deviation of
// the policy's Gaussian
func (s *SquashedGaussianMLP) Stddev() *G.Node {
	return s.stddev
}

// MeanVal returns the value of the mean node after a VM has been run
func (s *SquashedGaussianMLP) MeanVal() G.Value {
	return s.meanVal
}

// StddevVal returns the value of the standard deviation node after a
// VM has been run
func (s *SquashedGaussianMLP) StddevVal() G.Value {
	return s.stddevVal
}

// Graph returns the computational graph that the policy's networks
// are on
func (s *SquashedGaussianMLP) Graph() *G.ExprGraph {
	return s.mean.Graph()
}

// MeanNetwork returns the network predicting the policy's mean
func (s *SquashedGaussianMLP) MeanNetwork() network.NeuralNet {
	return s.meanNet
}

// LogStdNetwork returns the network predicting the policy's log
// standard deviation
func (s *SquashedGaussianMLP) LogStdNetwork() network.NeuralNet {
	return s.logStdNet
}

// Learnables returns the learnable nodes of both of the policy's
// networks
func (s *SquashedGaussianMLP) Learnables() G.Nodes {
	return append(s.meanNet.Learnables(), s.logStdNet.Learnables()...)
}

// Model returns the learnable nodes of both of the policy's networks
// with their gradients
func (s *SquashedGaussianMLP) Model() []G.ValueGrad {
	return append(s.meanNet.Model(), s.logStdNet.Model()...)
}

// Set sets the weights of the policy's networks to those of another
// SquashedGaussianMLP
func (s *SquashedGaussianMLP) Set(source *SquashedGaussianMLP) error {
	if err := s.meanNet.Set(source.meanNet); err != nil {
		return fmt.Errorf("set: could not set mean network: %v", err)
	}
	if err := s.logStdNet.Set(source.logStdNet); err != nil {
		return fmt.Errorf("set: could not set log std network: %v", err)
	}
	return nil
}

// ActionDims returns the dimensionality of the policy's actions
func (s *SquashedGaussianMLP) ActionDims() int {
	return s.actionDims
}

// ActionScale returns the scale c to which tanh-squashed actions are
// scaled
func (s *SquashedGaussianMLP) ActionScale() float64 {
	return s.actionScale
}

// BatchSize returns the batch size of inputs to the policy
func (s *SquashedGaussianMLP) BatchSize() int {
	return s.batchSize
}

// Rand returns samples from the policy's standard normal, one sample
// of size ActionDims() per row of the returned slice, flattened in
// row major order
func (s *SquashedGaussianMLP) Rand(rows int) []float64 {
	samples := make([]float64, 0, rows*s.actionDims)
	for i := 0; i < rows; i++ {
		samples = append(samples, s.normal.Rand(nil)...)
	}
	return samples
}

// Eval sets the policy to evaluation mode
func (s *SquashedGaussianMLP) Eval() {
	s.eval = true
}

// Train sets the policy to training mode
func (s *SquashedGaussianMLP) Train() {
	s.eval = false
}

// IsEval returns whether the policy is in evaluation mode
func (s *SquashedGaussianMLP) IsEval() bool {
	return s.eval
}

// Close releases the policy's VM, if the policy has one
func (s *SquashedGaussianMLP) Close() error {
	if s.vm == nil {
		return nil
	}
	return s.vm.Close()
}
