package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// multiHeadMLP implements a multi-layered perceptron with multiple
// output nodes, one for each value that should be predicted.
type multiHeadMLP struct {
	g          *G.ExprGraph
	layers     []Layer
	inputs     []*G.Node // Input nodes before concatenation
	input      *G.Node   // Input to the first layer
	concatAxis int
	numOutputs int
	numInputs  int
	batchSize  int

	// Data needed for cloning
	hiddenSizes []int
	biases      []bool
	activations []*Activation
	prefix      string
	suffix      string

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewMultiHeadMLPFromInputs returns a new multi-head output MLP that
// has specific nodes as its input. If multiple input nodes are given,
// they are first concatenated along the feature (column) dimension.
// This is useful for constructing networks of multiple inputs, such
// as action-value critics which take both a state and an action.
//
// The MLP has len(hiddenSizes) layers, and the final layer is the
// output layer, so that hiddenSizes[len(hiddenSizes)-1] must equal
// outputs. For index i, hiddenSizes[i] is the number of nodes in
// layer i; biases[i] is true if layer i has a bias unit; inits[i] is
// the weight initialization scheme of layer i; and activations[i] is
// the activation function of layer i. Bias units are always
// initialized to zero.
//
// The prefix and suffix parameters are attached to the names of the
// network's parameter nodes so that many networks can be placed on a
// single computational graph without name collisions.
func NewMultiHeadMLPFromInputs(inputs []*G.Node, outputs int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, inits []G.InitWFn,
	activations []*Activation, prefix, suffix string) (NeuralNet, error) {
	if len(hiddenSizes) == 0 {
		return nil, fmt.Errorf("newmultiheadmlp: must have at least one " +
			"layer")
	}

	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newmultiheadmlp: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	// Ensure one bias bool per layer
	if len(hiddenSizes) != len(biases) {
		msg := "newmultiheadmlp: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	// Ensure one weight initializer per layer
	if len(hiddenSizes) != len(inits) {
		msg := "newmultiheadmlp: invalid number of weight initializers" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(inits))
	}

	// The final layer predicts the outputs
	if outputs != hiddenSizes[len(hiddenSizes)-1] {
		msg := "newmultiheadmlp: claimed output is of size %v but " +
			"provided final network layer of size %v"
		return nil, fmt.Errorf(msg, outputs,
			hiddenSizes[len(hiddenSizes)-1])
	}

	// Concatenate inputs if necessary
	var input *G.Node
	if len(inputs) > 1 {
		input = G.Must(G.Concat(1, inputs...))
	} else {
		input = inputs[0]
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("newmultiheadmlp: input must be a matrix")
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	layers := addfcLayers(g, hiddenSizes, biases, inits, activations,
		features, prefix, suffix)

	// Create the network and run the forward pass on the input node
	network := multiHeadMLP{
		g:           g,
		layers:      layers,
		inputs:      inputs,
		input:       input,
		concatAxis:  1,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
		prefix:      prefix,
		suffix:      suffix,
		learnables:  nil,
		model:       nil,
	}
	_, err := network.fwd(input)
	if err != nil {
		msg := "newmultiheadmlp: could not compute forward pass: %v"
		return &multiHeadMLP{}, fmt.Errorf(msg, err)
	}

	return &network, nil
}

// NewMultiHeadMLP creates and returns a new multi-layered perceptron
// that has multiple output nodes. The number of output nodes is equal
// to outputs. The graph parameter g is populated with the MLP, and a
// zeroed input node of shape (batch, features) is created for the
// network.
//
// See NewMultiHeadMLPFromInputs for details on the remaining
// parameters.
func NewMultiHeadMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, inits []G.InitWFn,
	activations []*Activation, prefix, suffix string) (NeuralNet, error) {
	// Set up the input node
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(prefix+"Input"+suffix), G.WithInit(G.Zeroes()))

	return NewMultiHeadMLPFromInputs([]*G.Node{input}, outputs, g,
		hiddenSizes, biases, inits, activations, prefix, suffix)
}

// NewStateActionMLP creates and returns a new MLP that predicts values
// of state-action pairs, such as an action-value critic. The network
// takes two inputs, a batch of states and a batch of actions, which
// are concatenated along the feature dimension before the first layer.
// The state and action input nodes are returned along with the network
// so that callers can set their values before running a VM.
//
// See NewMultiHeadMLPFromInputs for details on the remaining
// parameters.
func NewStateActionMLP(stateFeatures, actionFeatures, batch,
	outputs int, g *G.ExprGraph, hiddenSizes []int, biases []bool,
	inits []G.InitWFn, activations []*Activation, prefix,
	suffix string) (NeuralNet, *G.Node, *G.Node, error) {
	state := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, stateFeatures),
		G.WithName(prefix+"State"+suffix), G.WithInit(G.Zeroes()))
	action := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, actionFeatures),
		G.WithName(prefix+"Action"+suffix), G.WithInit(G.Zeroes()))

	net, err := NewMultiHeadMLPFromInputs([]*G.Node{state, action},
		outputs, g, hiddenSizes, biases, inits, activations, prefix,
		suffix)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("newstateactionmlp: %v", err)
	}

	return net, state, action, nil
}

// Graph returns the computational graph of the multiHeadMLP.
func (e *multiHeadMLP) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones a multiHeadMLP
func (e *multiHeadMLP) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithInputsTo clones a multiHeadMLP onto a graph with specified
// input nodes. If multiple input nodes are given, then they are first
// concatenated along the specified axis.
func (e *multiHeadMLP) CloneWithInputsTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	// Ensure inputs share the same graph
	for _, input := range inputs {
		if input.Graph() != graph {
			return nil, fmt.Errorf("clonewithinputsto: not all inputs " +
				"have the same graph")
		}
	}

	// Concatenate inputs if necessary
	var input *G.Node
	if len(inputs) > 1 {
		input = G.Must(G.Concat(axis, inputs...))
	} else {
		input = inputs[0]
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("clonewithinputsto: input must be a " +
			"matrix node")
	}

	// Copy fully connected layers
	l := make([]Layer, len(e.layers))
	for i := range e.layers {
		l[i] = e.layers[i].CloneTo(graph)
	}

	batchSize := input.Shape()[0]

	// Create the network and run the forward pass on the input node
	network := multiHeadMLP{
		g:           graph,
		layers:      l,
		inputs:      inputs,
		input:       input,
		concatAxis:  axis,
		numOutputs:  e.numOutputs,
		numInputs:   e.numInputs,
		batchSize:   batchSize,
		hiddenSizes: e.hiddenSizes,
		biases:      e.biases,
		activations: e.activations,
		prefix:      e.prefix,
		suffix:      e.suffix,
	}
	_, err := network.fwd(input)
	if err != nil {
		return nil, fmt.Errorf("clonewithinputsto: could not clone: %v", err)
	}

	return &network, nil
}

// CloneWithBatch clones a multiHeadMLP to a new graph with a new input
// batch size.
func (e *multiHeadMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()

	if len(e.inputs) > 1 {
		return nil, fmt.Errorf("clonewithbatch: cannot clone a " +
			"multi-input network without new input nodes, use " +
			"CloneWithInputsTo")
	}

	// Create the input node
	inputShape := e.input.Shape()
	var input *G.Node
	if e.input.IsMatrix() {
		batchShape := append([]int{batchSize}, inputShape[1:]...)
		input = G.NewMatrix(
			graph,
			tensor.Float64,
			G.WithShape(batchShape...),
			G.WithName(e.prefix+"Input"+e.suffix),
			G.WithInit(G.Zeroes()),
		)
	} else {
		return nil, fmt.Errorf("clonewithbatch: invalid input type")
	}

	return e.CloneWithInputsTo(-1, []*G.Node{input}, graph)
}

// BatchSize returns the batch size of inputs to the network
func (e *multiHeadMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single input vector
// after input concatenation
func (e *multiHeadMLP) Features() int {
	return e.numInputs
}

// Outputs returns the number of outputs from the network
func (e *multiHeadMLP) Outputs() int {
	return e.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass. Multi-input networks are fed through their individual input
// nodes, not through SetInput.
func (e *multiHeadMLP) SetInput(input []float64) error {
	if len(e.inputs) > 1 {
		return fmt.Errorf("setinput: cannot set a single input on a " +
			"multi-input network")
	}
	if len(input) != e.numInputs*e.batchSize {
		msg := fmt.Sprintf("invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", e.numInputs*e.batchSize, len(input))
		panic(msg)
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set sets the weights of a multiHeadMLP to be equal to the
// weights of another NeuralNet
func (e *multiHeadMLP) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := e.Learnables()
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the weights of a multiHeadMLP to be a Polyak
// average between its existing weights and the weights of another
// NeuralNet
func (e *multiHeadMLP) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := e.Learnables()
	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		err = G.Let(nodes[i], newWeights)
		if err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes in a multiHeadMLP
func (e *multiHeadMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		e.learnables = e.computeLearnables()
	}
	return e.learnables
}

// computeLearnables computes all the learnables for the network
func (e *multiHeadMLP) computeLearnables() G.Nodes {
	learnables := make([]*G.Node, 0, 2*len(e.layers))

	for i := range e.layers {
		learnables = append(learnables, e.layers[i].Weights())
		if bias := e.layers[i].Bias(); bias != nil {
			learnables = append(learnables, bias)
		}
	}
	return G.Nodes(learnables)
}

// Model returns the learnable nodes with their gradients.
func (e *multiHeadMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		e.model = e.computeModel()
	}
	return e.model
}

// computeModel computes the model for the network
func (e *multiHeadMLP) computeModel() []G.ValueGrad {
	model := make([]G.ValueGrad, 0, 2*len(e.layers))
	for _, node := range e.Learnables() {
		model = append(model, node)
	}
	return model
}

// fwd performs the forward pass of the multiHeadMLP on the input
// node
func (e *multiHeadMLP) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape%e.numInputs != 0 {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, inputShape)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	e.prediction = pred

	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Output returns the output of the multiHeadMLP.
func (e *multiHeadMLP) Output() G.Value {
	return e.predVal
}

// Prediction returns the node of the computational graph that stores
// the output of the multiHeadMLP
func (e *multiHeadMLP) Prediction() *G.Node {
	return e.prediction
}

// GobEncode implements the gob.GobEncoder interface by encoding the
// current values of the network's weights, layer by layer. The
// network's architecture is not encoded, only its parameters.
func (e *multiHeadMLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(len(e.layers)); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of "+
			"layers: %v", err)
	}
	for i, layer := range e.layers {
		encoder, ok := layer.(gob.GobEncoder)
		if !ok {
			return nil, fmt.Errorf("gobencode: layer %v cannot be "+
				"encoded", i)
		}
		data, err := encoder.GobEncode()
		if err != nil {
			return nil, fmt.Errorf("gobencode: could not encode layer "+
				"%v: %v", i, err)
		}
		if err := enc.Encode(data); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode layer "+
				"%v: %v", i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface by decoding weight
// values into the network's existing layers. The network must already
// have the architecture that the weights were encoded from.
func (e *multiHeadMLP) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var numLayers int
	if err := dec.Decode(&numLayers); err != nil {
		return fmt.Errorf("gobdecode: could not decode number of "+
			"layers: %v", err)
	}
	if numLayers != len(e.layers) {
		return fmt.Errorf("gobdecode: invalid number of layers"+
			"\n\twant(%v)\n\thave(%v)", len(e.layers), numLayers)
	}

	for i, layer := range e.layers {
		var data []byte
		if err := dec.Decode(&data); err != nil {
			return fmt.Errorf("gobdecode: could not decode layer %v: %v",
				i, err)
		}
		decoder, ok := layer.(gob.GobDecoder)
		if !ok {
			return fmt.Errorf("gobdecode: layer %v cannot be decoded", i)
		}
		if err := decoder.GobDecode(data); err != nil {
			return fmt.Errorf("gobdecode: could not decode layer %v: %v",
				i, err)
		}
	}

	return nil
}
