package initwfn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GlorotUConfig implements a configuration of the Glorot Uniform
// initialization algorithm.
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	config := GlorotUConfig{
		Gain: gain,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotUConfig) Create() G.InitWFn {
	return G.GlorotU(g.Gain)
}

// GlorotNConfig implements a configuration of the Glorot Normal
// initialization algorithm.
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot Normal weight initializer.
func NewGlorotN(gain float64) (*InitWFn, error) {
	config := GlorotNConfig{
		Gain: gain,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (g GlorotNConfig) Type() Type {
	return GlorotN
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotNConfig) Create() G.InitWFn {
	return G.GlorotN(g.Gain)
}

// GlorotUSeededConfig implements a configuration of the Glorot Uniform
// initialization algorithm with an explicit random seed, so that
// weight initialization is reproducible across runs.
type GlorotUSeededConfig struct {
	Gain float64
	Seed uint64
}

// NewGlorotUSeeded returns a new seeded Glorot Uniform weight
// initializer
func NewGlorotUSeeded(gain float64, seed uint64) (*InitWFn, error) {
	config := GlorotUSeededConfig{
		Gain: gain,
		Seed: seed,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (g GlorotUSeededConfig) Type() Type {
	return GlorotUSeeded
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn. Only float64 weights are supported. The random stream is
// shared by every weight matrix the returned InitWFn initializes, so
// successive layers draw different weights while the full sequence
// stays reproducible from the seed.
func (g GlorotUSeededConfig) Create() G.InitWFn {
	rng := rand.New(rand.NewSource(g.Seed))

	return func(dt tensor.Dtype, s ...int) interface{} {
		if dt != tensor.Float64 {
			panic(fmt.Sprintf("create: seeded Glorot initializer "+
				"supports float64 only, got %v", dt))
		}
		if len(s) < 2 {
			panic(fmt.Sprintf("create: seeded Glorot initializer "+
				"requires a matrix shape, got %v", s))
		}

		fanIn, fanOut := s[0], s[1]
		limit := g.Gain * math.Sqrt(6.0/float64(fanIn+fanOut))

		size := 1
		for _, dim := range s {
			size *= dim
		}

		backing := make([]float64, size)
		for i := range backing {
			backing[i] = limit * (2.0*rng.Float64() - 1.0)
		}
		return backing
	}
}
