package analytics

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankBreaksTiesByActorID(t *testing.T) {
	records := []MetricRecord{
		sale("s1", date(2024, 3, 1), "carol", "300"),
		sale("s2", date(2024, 3, 1), "bob", "500"),
		sale("s3", date(2024, 3, 2), "alice", "200"),
		sale("s4", date(2024, 3, 3), "alice", "300"),
	}
	actors := ActorIndex([]Actor{
		{ID: "alice", DisplayName: "Alice", AvatarRef: "https://cdn.example.com/alice.png"},
		{ID: "bob", DisplayName: "Bob"},
	})
	entries, err := Rank(records, RankOptions{Actors: actors})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "alice", entries[0].ActorID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "Alice", entries[0].DisplayName)
	assert.Equal(t, "https://cdn.example.com/alice.png", entries[0].AvatarRef)
	assert.Equal(t, "bob", entries[1].ActorID)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "carol", entries[2].ActorID)
	assert.Equal(t, 3, entries[2].Rank)
	assert.Equal(t, "carol", entries[2].DisplayName)
}

func TestRankAppliesWindowFilterAndTopN(t *testing.T) {
	now := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	month, err := ResolveWindow(now, WindowThisMonth)
	require.NoError(t, err)

	var records []MetricRecord
	for i := range 8 {
		records = append(records, sale(fmt.Sprintf("s%d", i), date(2024, 3, 5), fmt.Sprintf("actor-%d", i), fmt.Sprintf("%d", (i+1)*10)))
	}
	records = append(records,
		sale("old", date(2024, 2, 28), "actor-0", "10000"),
		sale("anon", date(2024, 3, 6), "", "99999"),
		sale("team", date(2024, 3, 6), "outsider", "5000"),
	)

	entries, err := Rank(records, RankOptions{
		Window: &month,
		Filter: func(r MetricRecord) bool { return r.ActorID != "outsider" },
		TopN:   3,
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "actor-7", entries[0].ActorID)
	assert.True(t, dec("80").Equal(entries[0].Value))
	assert.Equal(t, "actor-5", entries[2].ActorID)

	defaults, err := Rank(records, RankOptions{Window: &month})
	require.NoError(t, err)
	assert.Len(t, defaults, DefaultTopN)
	assert.Equal(t, "outsider", defaults[0].ActorID)
}

func TestRankIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var records []MetricRecord
	for i := range 200 {
		records = append(records, sale(fmt.Sprintf("s%d", i), date(2024, 1, 1+rng.Intn(28)), fmt.Sprintf("a%02d", rng.Intn(12)), fmt.Sprintf("%d", rng.Intn(5)*100)))
	}
	first, err := Rank(records, RankOptions{TopN: 10})
	require.NoError(t, err)
	for range 5 {
		rng.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
		again, err := Rank(records, RankOptions{TopN: 10})
		require.NoError(t, err)
		require.Equal(t, len(first), len(again))
		for i := range first {
			assert.Equal(t, first[i].ActorID, again[i].ActorID)
			assert.True(t, first[i].Value.Equal(again[i].Value))
			assert.Equal(t, i+1, again[i].Rank)
		}
	}
}

func TestRankByGroupAndQuantity(t *testing.T) {
	records := []MetricRecord{
		{ID: "1", ActorID: "a", GroupID: "p1", Amount: dec("10"), Quantity: dec("4")},
		{ID: "2", ActorID: "b", GroupID: "p2", Amount: dec("90"), Quantity: dec("1")},
		{ID: "3", ActorID: "c", GroupID: "p1", Amount: dec("5"), Quantity: dec("2")},
		{ID: "4", ActorID: "d", Amount: dec("1000"), Quantity: dec("100")},
	}
	entries, err := Rank(records, RankOptions{GroupBy: ByGroup, Metric: ByQuantity})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "p1", entries[0].ActorID)
	assert.True(t, dec("6").Equal(entries[0].Value))
}

func TestRankRejectsNil(t *testing.T) {
	_, err := Rank(nil, RankOptions{})
	require.ErrorIs(t, err, ErrNilCollection)

	entries, err := Rank([]MetricRecord{}, RankOptions{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
