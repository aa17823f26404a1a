package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"fitness-league/internal/model"
)

// testLadder builds Gold > Silver > Bronze with four leagues each. League ids
// are "<category>-<level>", e.g. "silver-1".
func testLadder() *Ladder {
	var (
		cats    []*model.RankingCategory
		leagues []*model.RankingLeague
	)
	// Categories deliberately out of order.
	for _, c := range []struct {
		id    string
		order int
	}{{"silver", 1}, {"bronze", 2}, {"gold", 0}} {
		cats = append(cats, &model.RankingCategory{ID: c.id, Name: c.id, Order: c.order})
		for _, level := range []int{3, 1, 4, 2} {
			leagues = append(leagues, &model.RankingLeague{ID: fmt.Sprintf("%s-%d", c.id, level), CategoryID: c.id, Level: level})
		}
	}
	return NewLadder(cats, leagues)
}

func leagueIDs(ls []*model.RankingLeague) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

func TestNewLadder(t *testing.T) {
	l := testLadder()
	assert.Equal(t, 12, l.Len())
	assert.Equal(t, []string{
		"gold-1", "gold-2", "gold-3", "gold-4",
		"silver-1", "silver-2", "silver-3", "silver-4",
		"bronze-1", "bronze-2", "bronze-3", "bronze-4",
	}, leagueIDs(l.Leagues()))
	assert.Equal(t, "gold-1", l.Top().ID)
	assert.Equal(t, "bronze-4", l.Bottom().ID)

	cat, ok := l.Category("silver-3")
	require.True(t, ok)
	assert.Equal(t, "silver", cat.ID)
	_, ok = l.Category("nope")
	assert.False(t, ok)
}

func TestNewLadder_IgnoresOrphans(t *testing.T) {
	l := NewLadder(
		[]*model.RankingCategory{{ID: "a", Order: 0}, {ID: "empty", Order: 1}},
		[]*model.RankingLeague{{ID: "a-1", CategoryID: "a", Level: 1}, {ID: "x-1", CategoryID: "x", Level: 1}},
	)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, "a-1", l.Top().ID)
	assert.Equal(t, "a-1", l.Bottom().ID)

	empty := NewLadder(nil, nil)
	assert.Nil(t, empty.Top())
	assert.Nil(t, empty.Bottom())
}

func TestLadder_Steps(t *testing.T) {
	l := testLadder()
	tests := []struct {
		name     string
		from     string
		step     func(string) (*model.RankingLeague, bool)
		want     string
		possible bool
	}{
		{"promote within category", "silver-3", l.Promote, "silver-2", true},
		{"promote across categories", "silver-1", l.Promote, "gold-4", true},
		{"promote at top", "gold-1", l.Promote, "", false},
		{"relegate within category", "silver-2", l.Relegate, "silver-3", true},
		{"relegate across categories", "silver-4", l.Relegate, "bronze-1", true},
		{"relegate at bottom", "bronze-4", l.Relegate, "", false},
		{"unknown league", "nope", l.Promote, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.step(tt.from)
			assert.Equal(t, tt.possible, ok)
			if tt.possible {
				assert.Equal(t, tt.want, got.ID)
			}
		})
	}
}

func TestLadder_StepsInverseProperty(t *testing.T) {
	l := testLadder()
	all := l.Leagues()
	rapid.Check(t, func(t *rapid.T) {
		lg := all[rapid.IntRange(0, len(all)-1).Draw(t, "league")]

		if down, ok := l.Relegate(lg.ID); ok {
			back, ok := l.Promote(down.ID)
			if !ok || back.ID != lg.ID {
				t.Fatalf("promote(relegate(%s)) != %s", lg.ID, lg.ID)
			}
		} else if lg.ID != l.Bottom().ID {
			t.Fatalf("only the bottom league cannot be relegated, got %s", lg.ID)
		}

		if up, ok := l.Promote(lg.ID); ok {
			back, ok := l.Relegate(up.ID)
			if !ok || back.ID != lg.ID {
				t.Fatalf("relegate(promote(%s)) != %s", lg.ID, lg.ID)
			}
		} else if lg.ID != l.Top().ID {
			t.Fatalf("only the top league cannot be promoted, got %s", lg.ID)
		}
	})
}

func rankedUsers(n int) []*model.User {
	users := make([]*model.User, n)
	for i := range users {
		users[i] = &model.User{ID: fmt.Sprintf("u%d", i), CurrentWeekScore: 1000 - i}
	}
	return users
}

func TestSplitBuckets(t *testing.T) {
	tests := []struct {
		n, promote, relegate int
		wantP, wantM, wantR  int
	}{
		{10, 3, 3, 3, 4, 3},
		{6, 3, 3, 3, 0, 3},
		{4, 3, 3, 3, 0, 1},
		{2, 3, 3, 2, 0, 0},
		{0, 3, 3, 0, 0, 0},
		{5, 0, 0, 0, 5, 0},
		{5, 0, 2, 0, 3, 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d users %d/%d", tt.n, tt.promote, tt.relegate), func(t *testing.T) {
			b, err := SplitBuckets(rankedUsers(tt.n), tt.promote, tt.relegate)
			require.NoError(t, err)
			assert.Len(t, b.Promote, tt.wantP)
			assert.Len(t, b.Remain, tt.wantM)
			assert.Len(t, b.Relegate, tt.wantR)
		})
	}

	_, err := SplitBuckets(rankedUsers(3), -1, 0)
	assert.ErrorIs(t, err, ErrInvalidThresholds)
}

func TestSplitBucketsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(t, "n")
		promote := rapid.IntRange(0, 15).Draw(t, "promote")
		relegate := rapid.IntRange(0, 15).Draw(t, "relegate")
		users := rankedUsers(n)

		b, err := SplitBuckets(users, promote, relegate)
		if err != nil {
			t.Fatal(err)
		}

		seen := make(map[string]int)
		for _, bucket := range [][]*model.User{b.Promote, b.Remain, b.Relegate} {
			for _, u := range bucket {
				seen[u.ID]++
			}
		}
		if len(seen) != n {
			t.Fatalf("buckets cover %d of %d users", len(seen), n)
		}
		for id, c := range seen {
			if c != 1 {
				t.Fatalf("user %s in %d buckets", id, c)
			}
		}

		if len(b.Promote) != min(promote, n) {
			t.Fatalf("promoted %d, want %d", len(b.Promote), min(promote, n))
		}
		for i, u := range b.Promote {
			if u != users[i] {
				t.Fatalf("promotion must take the top of the ranking")
			}
		}
		for i, u := range b.Relegate {
			if u != users[n-len(b.Relegate)+i] {
				t.Fatalf("relegation must take the bottom of the ranking")
			}
		}

		// Appending to one bucket must not clobber another.
		_ = append(b.Promote, &model.User{ID: "x"})
		if len(b.Remain) > 0 && b.Remain[0].ID == "x" {
			t.Fatalf("buckets share capacity")
		}
	})
}
