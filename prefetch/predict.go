package prefetch

import (
	"sort"
	"time"
)

const (
	// RecencyWindow normalizes the age of a key's last interaction.
	RecencyWindow = 24 * time.Hour

	FrequencyWeight = 0.6
	RecencyWeight   = 0.4

	// DefaultTopN is how many keys a prediction returns.
	DefaultTopN = 3
)

// Prediction is a scored candidate key.
type Prediction struct {
	Key       string
	Frequency float64
	Recency   float64
	Score     float64
}

// Predict scores every distinct key in history and returns the n best.
//
//	frequency = count(key) / len(history)
//	recency   = 1 - (now - lastSeen(key)) / RecencyWindow
//	score     = 0.6*frequency + 0.4*recency
//
// Recency is not clamped: interactions older than the window push the score
// below the frequency term. Equal scores keep the order in which keys first
// appear in history.
func Predict(history []Interaction, now time.Time, n int) []Prediction {
	if len(history) == 0 || n <= 0 {
		return nil
	}

	type tally struct {
		count    int
		lastSeen time.Time
	}
	order := make([]string, 0, len(history))
	seen := make(map[string]*tally, len(history))
	for _, it := range history {
		t, ok := seen[it.Key]
		if !ok {
			t = &tally{}
			seen[it.Key] = t
			order = append(order, it.Key)
		}
		t.count++
		if it.At.After(t.lastSeen) {
			t.lastSeen = it.At
		}
	}

	total := float64(len(history))
	preds := make([]Prediction, 0, len(order))
	for _, k := range order {
		t := seen[k]
		freq := float64(t.count) / total
		rec := 1 - float64(now.Sub(t.lastSeen))/float64(RecencyWindow)
		preds = append(preds, Prediction{
			Key:       k,
			Frequency: freq,
			Recency:   rec,
			Score:     FrequencyWeight*freq + RecencyWeight*rec,
		})
	}
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Score > preds[j].Score })

	if len(preds) > n {
		preds = preds[:n]
	}
	return preds
}
