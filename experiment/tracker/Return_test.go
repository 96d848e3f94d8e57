package tracker

import (
	"path/filepath"
	"testing"

	ts "github.com/samuelfneumann/airhockey/timestep"
	"gonum.org/v1/gonum/mat"
)

func step(t ts.StepType, reward float64, number int) ts.TimeStep {
	obs := mat.NewVecDense(1, []float64{0.0})
	return ts.New(t, reward, 0.99, obs, number)
}

// trackEpisode tracks a full episode of the argument rewards. The
// reward on the first timestep is always zero.
func trackEpisode(tracker Tracker, rewards []float64) {
	tracker.Track(step(ts.First, 0.0, 0))
	for i, reward := range rewards {
		stepType := ts.Mid
		if i == len(rewards)-1 {
			stepType = ts.Last
		}
		tracker.Track(step(stepType, reward, i+1))
	}
}

func TestReturnTracksEpisodes(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.bin")
	tracker := NewReturn(filename)

	trackEpisode(tracker, []float64{1.0, 2.0, 3.0})
	trackEpisode(tracker, []float64{-1.0, -1.0})

	tracker.Save()

	data := LoadData(filename)
	want := []float64{6.0, -2.0}
	if len(data) != len(want) {
		t.Fatalf("invalid number of episodic returns \n\twant(%v) "+
			"\n\thave(%v)", len(want), len(data))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("invalid return for episode %v \n\twant(%v) "+
				"\n\thave(%v)", i, want[i], data[i])
		}
	}
}

func TestReturnDropsUnfinishedEpisodes(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.bin")
	tracker := NewReturn(filename)

	// Abandon an episode part way through, as happens when a learning
	// phase ends mid-episode
	tracker.Track(step(ts.First, 0.0, 0))
	tracker.Track(step(ts.Mid, 100.0, 1))
	tracker.Track(step(ts.Mid, 100.0, 2))

	trackEpisode(tracker, []float64{1.0, 1.0})

	tracker.Save()

	data := LoadData(filename)
	if len(data) != 1 {
		t.Fatalf("invalid number of episodic returns \n\twant(%v) "+
			"\n\thave(%v)", 1, len(data))
	}
	if data[0] != 2.0 {
		t.Errorf("unfinished episode polluted the tracked returns "+
			"\n\twant(%v) \n\thave(%v)", 2.0, data[0])
	}
}
