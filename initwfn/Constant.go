package initwfn

import G "gorgonia.org/gorgonia"

// ZeroesConfig describes a weight initializer that sets all weights
// to 0
type ZeroesConfig struct{}

// NewZeroes returns a new zero weight initializer
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

// Type returns the type of the weight initializer the config creates
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create creates the Gorgonia weight initializer that the config
// describes
func (z ZeroesConfig) Create() G.InitWFn {
	return G.Zeroes()
}

// OnesConfig describes a weight initializer that sets all weights
// to 1
type OnesConfig struct{}

// NewOnes returns a new ones weight initializer
func NewOnes() (*InitWFn, error) {
	return newInitWFn(OnesConfig{})
}

// Type returns the type of the weight initializer the config creates
func (o OnesConfig) Type() Type {
	return Ones
}

// Create creates the Gorgonia weight initializer that the config
// describes
func (o OnesConfig) Create() G.InitWFn {
	return G.Ones()
}

// ConstantConfig describes a weight initializer that sets all weights
// to a fixed value
type ConstantConfig struct {
	Value float64
}

// NewConstant returns a new constant weight initializer
func NewConstant(value float64) (*InitWFn, error) {
	return newInitWFn(ConstantConfig{Value: value})
}

// Type returns the type of the weight initializer the config creates
func (c ConstantConfig) Type() Type {
	return Constant
}

// Create creates the Gorgonia weight initializer that the config
// describes
func (c ConstantConfig) Create() G.InitWFn {
	return G.ValuesOf(c.Value)
}
