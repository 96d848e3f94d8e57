// Package network implements the neural network function approximators
// used by agents
package network

import (
	"encoding/gob"

	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network on a Gorgonia computational
// graph.
//
// Networks may share a computational graph with other networks, for
// example when a critic must be differentiated with respect to an
// actor's parameters. Networks can be cloned between graphs, with the
// clone keeping its own parameter nodes; Set and Polyak copy or
// average parameters between a network and its clones.
type NeuralNet interface {
	// Graph returns the computational graph that the network is on
	Graph() *G.ExprGraph

	// Clone clones the network to a new computational graph, keeping
	// the same input batch size
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network to a new computational graph
	// with a new input batch size
	CloneWithBatch(int) (NeuralNet, error)

	// CloneWithInputsTo clones the network onto the argument graph,
	// using the argument nodes as the network input. Multiple input
	// nodes are concatenated along axis before the forward pass.
	CloneWithInputsTo(axis int, inputs []*G.Node,
		g *G.ExprGraph) (NeuralNet, error)

	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the value of the network's input node before
	// running a VM on the network's graph
	SetInput([]float64) error

	// Set sets the network's parameters to those of another network
	Set(NeuralNet) error

	// Polyak sets the network's parameters to a Polyak average of its
	// own and another network's parameters
	Polyak(NeuralNet, float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Output returns the value of the network's prediction node after
	// a VM has run the network's graph
	Output() G.Value

	// Prediction returns the node of the computational graph that
	// stores the network's prediction
	Prediction() *G.Node

	gob.GobEncoder
	gob.GobDecoder
}
