package prefetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seq(base time.Time, keys ...string) []Interaction {
	out := make([]Interaction, len(keys))
	for i, k := range keys {
		out[i] = Interaction{Key: k, At: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestPredict_FrequencyDominates(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	h := seq(base, "A", "A", "B", "A", "C")
	now := base.Add(5 * time.Second)

	got := Predict(h, now, 3)
	require.Len(t, got, 3)
	require.Equal(t, "A", got[0].Key)
	require.InDelta(t, 0.6, got[0].Frequency, 1e-9)
	for _, p := range got[1:] {
		require.Greater(t, got[0].Score, p.Score)
	}
	// C is the most recent of the singletons.
	require.Equal(t, "C", got[1].Key)
	require.Equal(t, "B", got[2].Key)
}

func TestPredict_TopNAndTies(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	h := []Interaction{{"x", at}, {"y", at}, {"z", at}, {"w", at}}

	got := Predict(h, at, 3)
	require.Len(t, got, 3)
	require.Equal(t, []string{"x", "y", "z"}, []string{got[0].Key, got[1].Key, got[2].Key},
		"equal scores keep first-appearance order")

	require.Nil(t, Predict(nil, at, 3))
	require.Nil(t, Predict(h, at, 0))
}

func TestPredict_RecencyNotClamped(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	h := []Interaction{{"old", at}}

	got := Predict(h, at.Add(48*time.Hour), 1)
	require.InDelta(t, -1.0, got[0].Recency, 1e-9)
	require.InDelta(t, 0.6*1+0.4*-1, got[0].Score, 1e-9)
}

func TestHistory_FIFO(t *testing.T) {
	h := NewHistory(3)
	at := time.Unix(0, 0)
	for _, k := range []string{"a", "b", "c", "d"} {
		h.Add(Interaction{Key: k, At: at})
	}
	require.Equal(t, 3, h.Len())
	snap := h.Snapshot()
	require.Equal(t, "b", snap[0].Key)
	require.Equal(t, "d", snap[2].Key)

	require.Equal(t, DefaultHistorySize, cap(NewHistory(0).buf))
}
