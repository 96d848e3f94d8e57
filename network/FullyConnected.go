package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer implements a single layer of a neural network
type Layer interface {
	fwd(*G.Node) (*G.Node, error)
	CloneTo(g *G.ExprGraph) Layer
	Weights() *G.Node
	Bias() *G.Node
	Activation() *Activation
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.Weights() != nil {
		x = G.Must(G.Mul(x, f.Weights()))
	}
	if f.Bias() != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.Bias(), nil, []byte{0}))
	}
	if f.Activation() == nil || f.Activation().IsNil() {
		return x, nil
	}
	return f.Activation().fwd(x)
}

// CloneTo clones an fcLayer to a new computational graph
func (f *fcLayer) CloneTo(g *G.ExprGraph) Layer {
	var newWeights, newBias *G.Node

	if f.Weights() != nil {
		newWeights = f.Weights().CloneTo(g)
	}
	if f.Bias() != nil {
		newBias = f.Bias().CloneTo(g)
	}

	return &fcLayer{
		weights: newWeights,
		bias:    newBias,
		act:     f.act,
	}
}

func (f *fcLayer) Activation() *Activation {
	return f.act
}

func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

// GobEncode implements the gob.GobEncoder interface by encoding the
// current values of the layer's weights and bias
func (f *fcLayer) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	weights, ok := f.weights.Value().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("gobencode: layer weights are not a " +
			"dense tensor")
	}
	if err := enc.Encode(weights); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode weights: %v", err)
	}

	hasBias := f.bias != nil
	if err := enc.Encode(hasBias); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode bias flag: %v",
			err)
	}
	if hasBias {
		bias, ok := f.bias.Value().(*tensor.Dense)
		if !ok {
			return nil, fmt.Errorf("gobencode: layer bias is not a " +
				"dense tensor")
		}
		if err := enc.Encode(bias); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode bias: %v",
				err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface by decoding
// weight values into the layer's existing weight and bias nodes
func (f *fcLayer) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	weights := new(tensor.Dense)
	if err := dec.Decode(weights); err != nil {
		return fmt.Errorf("gobdecode: could not decode weights: %v", err)
	}
	if err := G.Let(f.weights, weights); err != nil {
		return fmt.Errorf("gobdecode: could not set weights: %v", err)
	}

	var hasBias bool
	if err := dec.Decode(&hasBias); err != nil {
		return fmt.Errorf("gobdecode: could not decode bias flag: %v", err)
	}
	if hasBias {
		bias := new(tensor.Dense)
		if err := dec.Decode(bias); err != nil {
			return fmt.Errorf("gobdecode: could not decode bias: %v", err)
		}
		if err := G.Let(f.bias, bias); err != nil {
			return fmt.Errorf("gobdecode: could not set bias: %v", err)
		}
	}

	return nil
}

// addfcLayers constructs the fully connected layers of an MLP on graph
// g. For index i, sizes[i] is the number of hidden units in layer i,
// biases[i] denotes whether layer i has a bias unit, inits[i] is the
// weight initialization scheme of layer i, and activations[i] is the
// activation function of layer i. Bias units are always initialized
// to zero. The prefix and suffix parameters are added to node names so
// that multiple networks can share a single computational graph.
func addfcLayers(g *G.ExprGraph, sizes []int, biases []bool,
	inits []G.InitWFn, activations []*Activation, features int,
	prefix, suffix string) []Layer {
	layers := make([]Layer, 0, len(sizes))

	in := features
	for i, out := range sizes {
		weightName := fmt.Sprintf("%vL%vW%v", prefix, i, suffix)
		weights := G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(in, out),
			G.WithName(weightName),
			G.WithInit(inits[i]),
		)

		var bias *G.Node
		if biases[i] {
			biasName := fmt.Sprintf("%vL%vB%v", prefix, i, suffix)
			bias = G.NewVector(
				g,
				tensor.Float64,
				G.WithShape(out),
				G.WithName(biasName),
				G.WithInit(G.Zeroes()),
			)
		}

		layers = append(layers, &fcLayer{
			weights: weights,
			bias:    bias,
			act:     activations[i],
		})
		in = out
	}

	return layers
}
