package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/airhockey/timestep"
)

// transitionOf returns a transition whose state, action, and next
// state are filled with the argument value so that sampled batches can
// be attributed to the transitions they came from
func transitionOf(value float64, featureSize, actionSize int) timestep.Transition {
	fill := func(n int) *mat.VecDense {
		data := make([]float64, n)
		for i := range data {
			data[i] = value
		}
		return mat.NewVecDense(n, data)
	}

	return timestep.Transition{
		State:     fill(featureSize),
		Action:    fill(actionSize),
		Reward:    value,
		Discount:  0.99,
		NextState: fill(featureSize),
	}
}

// TestAddGeneralVectors ensures that transitions are stored through
// the mat.Vector interface so that any vector implementation can be
// added, not only *mat.VecDense.
func TestAddGeneralVectors(t *testing.T) {
	buffer, err := New(1, 10, 1, 2, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	state := mat.NewVecDense(2, []float64{1.0, 2.0})
	action := mat.NewVecDense(1, []float64{3.0})
	nextState := mat.NewVecDense(2, []float64{4.0, 5.0})

	// TVec yields a mat.Vector that is not a *mat.VecDense
	transition := timestep.Transition{
		State:     state.TVec(),
		Action:    action.TVec(),
		Reward:    -1.0,
		Discount:  0.99,
		NextState: nextState.TVec(),
	}
	if err := buffer.Add(transition); err != nil {
		t.Fatal(err)
	}

	S, A, R, _, NextS, err := buffer.Sample()
	if err != nil {
		t.Fatal(err)
	}

	wantS := []float64{1.0, 2.0}
	wantNextS := []float64{4.0, 5.0}
	for i := range wantS {
		if S[i] != wantS[i] {
			t.Errorf("invalid stored state at index %v \n\twant(%v) "+
				"\n\thave(%v)", i, wantS[i], S[i])
		}
		if NextS[i] != wantNextS[i] {
			t.Errorf("invalid stored next state at index %v "+
				"\n\twant(%v) \n\thave(%v)", i, wantNextS[i], NextS[i])
		}
	}
	if A[0] != 3.0 {
		t.Errorf("invalid stored action \n\twant(%v) \n\thave(%v)", 3.0,
			A[0])
	}
	if R[0] != -1.0 {
		t.Errorf("invalid stored reward \n\twant(%v) \n\thave(%v)", -1.0,
			R[0])
	}
}

func TestNewInvalidArguments(t *testing.T) {
	if _, err := New(0, 10, 1, 4, 2, 1); err == nil {
		t.Error("expected an error for minCapacity = 0")
	}
	if _, err := New(5, 3, 1, 4, 2, 1); err == nil {
		t.Error("expected an error for minCapacity > maxCapacity")
	}
	if _, err := New(1, 3, 4, 4, 2, 1); err == nil {
		t.Error("expected an error for batchSize > maxCapacity")
	}
}

func TestSampleErrors(t *testing.T) {
	buffer, err := New(3, 10, 2, 4, 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, _, _, _, err := buffer.Sample(); !IsEmptyBuffer(err) {
		t.Errorf("expected an empty buffer error, got %v", err)
	}

	if err := buffer.Add(transitionOf(1.0, 4, 2)); err != nil {
		t.Fatal(err)
	}
	if _, _, _, _, _, err := buffer.Sample(); !IsInsufficientSamples(err) {
		t.Errorf("expected an insufficient samples error, got %v", err)
	}
}

func TestCapacityAndEviction(t *testing.T) {
	maxCapacity := 5
	buffer, err := New(1, maxCapacity, 1, 4, 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := buffer.Add(transitionOf(float64(i), 4, 2)); err != nil {
			t.Fatal(err)
		}
		if buffer.Capacity() != i+1 {
			t.Errorf("invalid capacity \n\twant(%v) \n\thave(%v)", i+1,
				buffer.Capacity())
		}
	}

	// Overfill the buffer. Old transitions should be evicted first.
	for i := 3; i < 20; i++ {
		if err := buffer.Add(transitionOf(float64(i), 4, 2)); err != nil {
			t.Fatal(err)
		}
	}
	if buffer.Capacity() != maxCapacity {
		t.Errorf("invalid capacity after eviction \n\twant(%v) "+
			"\n\thave(%v)", maxCapacity, buffer.Capacity())
	}

	// Only the last maxCapacity transitions remain, so every sampled
	// reward should identify one of them
	for i := 0; i < 50; i++ {
		_, _, r, _, _, err := buffer.Sample()
		if err != nil {
			t.Fatal(err)
		}
		if r[0] < float64(20-maxCapacity) || r[0] > 19.0 {
			t.Errorf("sampled an evicted transition with reward %v", r[0])
		}
	}
}

func TestSampleBatchContents(t *testing.T) {
	featureSize, actionSize := 4, 2
	batchSize := 8
	buffer, err := New(1, 100, batchSize, featureSize, actionSize, 42)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		if err := buffer.Add(transitionOf(float64(i), featureSize,
			actionSize)); err != nil {
			t.Fatal(err)
		}
	}

	S, A, R, discount, NextS, err := buffer.Sample()
	if err != nil {
		t.Fatal(err)
	}

	if len(S) != batchSize*featureSize ||
		len(NextS) != batchSize*featureSize {
		t.Errorf("invalid state batch size \n\twant(%v) \n\thave(%v)",
			batchSize*featureSize, len(S))
	}
	if len(A) != batchSize*actionSize {
		t.Errorf("invalid action batch size \n\twant(%v) \n\thave(%v)",
			batchSize*actionSize, len(A))
	}
	if len(R) != batchSize || len(discount) != batchSize {
		t.Errorf("invalid reward batch size \n\twant(%v) \n\thave(%v)",
			batchSize, len(R))
	}

	// Each sampled row should be internally consistent: all features
	// of a transition hold the same value as its reward
	for i := 0; i < batchSize; i++ {
		for j := 0; j < featureSize; j++ {
			if S[i*featureSize+j] != R[i] {
				t.Errorf("state %v does not match its reward %v",
					S[i*featureSize+j], R[i])
			}
		}
		for j := 0; j < actionSize; j++ {
			if A[i*actionSize+j] != R[i] {
				t.Errorf("action %v does not match its reward %v",
					A[i*actionSize+j], R[i])
			}
		}
	}
}

func TestAddInvalidSizes(t *testing.T) {
	buffer, err := New(1, 10, 1, 4, 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := buffer.Add(transitionOf(0.0, 3, 2)); err == nil {
		t.Error("expected an error for an invalid feature size")
	}
	if err := buffer.Add(transitionOf(0.0, 4, 3)); err == nil {
		t.Error("expected an error for an invalid action size")
	}
}
