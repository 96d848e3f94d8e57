// Package expreplay implements experience replay buffers
package expreplay

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/airhockey/timestep"
)

// Config implements a specific configuration of an ExperienceReplayer.
// Transitions are removed from the buffer first-in-first-out once the
// buffer is full, and batches are sampled uniformly randomly.
type Config struct {
	MinCapacity int // Samples needed in the buffer before sampling
	MaxCapacity int
	BatchSize   int
	Seed        int64
}

// Create creates and returns the ExperienceReplayer with the specified
// Config. The featureSize and actionSize parameters define the size of
// the state observation and action vectors stored in the buffer.
func (c Config) Create(featureSize, actionSize int) (ExperienceReplayer,
	error) {
	return New(c.MinCapacity, c.MaxCapacity, c.BatchSize, featureSize,
		actionSize, c.Seed)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer and
	// returns the batch as flattened []float64 of states, actions,
	// rewards, discounts, and next states
	Sample() ([]float64, []float64, []float64, []float64, []float64,
		error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// cache implements a concrete ExperienceReplayer. Data is stored in
// flat caches, with the data for transition i stored at indices
// [i*featureSize, (i+1)*featureSize) of the state caches and
// [i*actionSize, (i+1)*actionSize) of the action cache. Once the
// caches are full, new transitions overwrite the oldest ones.
type cache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	nextStateCache []float64

	// insertPos is the index at which the next transition is stored.
	// Since removal is FiFo, insertPos is also the index of the
	// oldest transition once the cache is full.
	insertPos int
	full      bool

	rng *rand.Rand

	minCapacity int
	maxCapacity int
	batchSize   int
	featureSize int
	actionSize  int
}

// New creates and returns a new ExperienceReplayer. The minCapacity
// parameter determines the number of samples that must be in the
// buffer before sampling is allowed, and maxCapacity determines the
// number of samples the buffer holds before old samples are evicted.
//
// Pixel observations should be flattened before adding to the buffer.
func New(minCapacity, maxCapacity, batchSize, featureSize, actionSize int,
	seed int64) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return &cache{}, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return &cache{}, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if maxCapacity < minCapacity {
		return &cache{}, fmt.Errorf("new: cannot have min capacity (%v) > "+
			"max capacity (%v)", minCapacity, maxCapacity)
	}
	if maxCapacity < batchSize {
		return &cache{}, fmt.Errorf("new: cannot have batch size (%v) > "+
			"max buffer capacity (%v)", batchSize, maxCapacity)
	}

	source := rand.NewSource(seed)

	return &cache{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		discountCache:  make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),

		rng: rand.New(source),

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		batchSize:   batchSize,
		featureSize: featureSize,
		actionSize:  actionSize,
	}, nil
}

// String returns the string representation of the cache
func (c *cache) String() string {
	baseStr := "Capacity: %v \nStates: %v \nActions: %v \nRewards: %v " +
		"\nDiscounts: %v \nNext States: %v"
	return fmt.Sprintf(baseStr, c.Capacity(), c.stateCache, c.actionCache,
		c.rewardCache, c.discountCache, c.nextStateCache)
}

// BatchSize returns the number of samples returned by Sample()
func (c *cache) BatchSize() int {
	return c.batchSize
}

// Sample samples and returns a batch of transitions from the replay
// buffer
func (c *cache) Sample() ([]float64, []float64, []float64, []float64,
	[]float64, error) {
	if c.Capacity() == 0 {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
		return nil, nil, nil, nil, nil, err
	}
	if c.Capacity() < c.MinCapacity() {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
		return nil, nil, nil, nil, nil, err
	}

	stateBatch := make([]float64, c.batchSize*c.featureSize)
	nextStateBatch := make([]float64, c.batchSize*c.featureSize)
	actionBatch := make([]float64, c.batchSize*c.actionSize)
	rewardBatch := make([]float64, c.batchSize)
	discountBatch := make([]float64, c.batchSize)

	for i := 0; i < c.batchSize; i++ {
		index := c.rng.Intn(c.Capacity())

		batchStart := i * c.featureSize
		expStart := index * c.featureSize
		copy(stateBatch[batchStart:batchStart+c.featureSize],
			c.stateCache[expStart:expStart+c.featureSize],
		)
		copy(nextStateBatch[batchStart:batchStart+c.featureSize],
			c.nextStateCache[expStart:expStart+c.featureSize],
		)

		batchStart = i * c.actionSize
		expStart = index * c.actionSize
		copy(actionBatch[batchStart:batchStart+c.actionSize],
			c.actionCache[expStart:expStart+c.actionSize],
		)

		rewardBatch[i] = c.rewardCache[index]
		discountBatch[i] = c.discountCache[index]
	}

	return stateBatch, actionBatch, rewardBatch, discountBatch,
		nextStateBatch, nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (c *cache) Capacity() int {
	if c.full {
		return c.maxCapacity
	}
	return c.insertPos
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (c *cache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (c *cache) MinCapacity() int {
	return c.minCapacity
}

// Add adds a transition to the cache, overwriting the oldest
// transition in the cache if the cache is full
func (c *cache) Add(t timestep.Transition) error {
	if t.State.Len() != c.featureSize || t.NextState.Len() != c.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)"+
			"\n\thave(%v)", c.featureSize, t.State.Len())
	}
	if t.Action.Len() != c.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)"+
			"\n\thave(%v)", c.actionSize, t.Action.Len())
	}

	index := c.insertPos

	// Copy states
	stateInd := index * c.featureSize
	copyVec(c.stateCache[stateInd:stateInd+c.featureSize], t.State)
	copyVec(c.nextStateCache[stateInd:stateInd+c.featureSize],
		t.NextState)

	// Copy action
	actionInd := index * c.actionSize
	copyVec(c.actionCache[actionInd:actionInd+c.actionSize], t.Action)

	c.rewardCache[index] = t.Reward
	c.discountCache[index] = t.Discount

	c.insertPos++
	if c.insertPos >= c.maxCapacity {
		c.insertPos = 0
		c.full = true
	}

	return nil
}

// copyVec copies the elements of v into dst, which must be of
// length v.Len()
func copyVec(dst []float64, v mat.Vector) {
	for i := 0; i < v.Len(); i++ {
		dst[i] = v.AtVec(i)
	}
}
