package service

import (
	"sort"

	"fitness-league/internal/model"
)

// Ladder is an immutable view of the ranking categories and their leagues.
// Categories are ordered from the top tier (lowest order) down; inside a
// category level 1 is the top league.
type Ladder struct {
	categories []*model.RankingCategory
	// leagues per category id, sorted by level ascending
	byCategory map[string][]*model.RankingLeague
	categoryOf map[string]int // category id -> index in categories
	leagues    map[string]*model.RankingLeague
}

// NewLadder builds a ladder. Leagues referencing an unknown category and
// categories without leagues are ignored.
func NewLadder(categories []*model.RankingCategory, leagues []*model.RankingLeague) *Ladder {
	l := &Ladder{
		byCategory: make(map[string][]*model.RankingLeague),
		categoryOf: make(map[string]int),
		leagues:    make(map[string]*model.RankingLeague),
	}

	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.ID] = true
	}
	for _, lg := range leagues {
		if !known[lg.CategoryID] {
			continue
		}
		l.byCategory[lg.CategoryID] = append(l.byCategory[lg.CategoryID], lg)
		l.leagues[lg.ID] = lg
	}

	for _, c := range categories {
		if len(l.byCategory[c.ID]) > 0 {
			l.categories = append(l.categories, c)
		}
	}
	sort.SliceStable(l.categories, func(i, j int) bool {
		return l.categories[i].Order < l.categories[j].Order
	})
	for i, c := range l.categories {
		l.categoryOf[c.ID] = i
		ls := l.byCategory[c.ID]
		sort.SliceStable(ls, func(i, j int) bool { return ls[i].Level < ls[j].Level })
	}
	return l
}

// Leagues returns every league from the top of the ladder to the bottom.
func (l *Ladder) Leagues() []*model.RankingLeague {
	var out []*model.RankingLeague
	for _, c := range l.categories {
		out = append(out, l.byCategory[c.ID]...)
	}
	return out
}

// Len is the number of leagues on the ladder.
func (l *Ladder) Len() int {
	return len(l.leagues)
}

// League returns a league by id.
func (l *Ladder) League(id string) (*model.RankingLeague, bool) {
	lg, ok := l.leagues[id]
	return lg, ok
}

// Category returns the category of a league.
func (l *Ladder) Category(leagueID string) (*model.RankingCategory, bool) {
	lg, ok := l.leagues[leagueID]
	if !ok {
		return nil, false
	}
	return l.categories[l.categoryOf[lg.CategoryID]], true
}

// Top returns the highest league of the ladder.
func (l *Ladder) Top() *model.RankingLeague {
	if len(l.categories) == 0 {
		return nil
	}
	return l.byCategory[l.categories[0].ID][0]
}

// Bottom returns the lowest league of the ladder, where new users start.
func (l *Ladder) Bottom() *model.RankingLeague {
	if len(l.categories) == 0 {
		return nil
	}
	ls := l.byCategory[l.categories[len(l.categories)-1].ID]
	return ls[len(ls)-1]
}

// Promote returns the league one step above leagueID. From the top league of
// a category that is the bottom league of the next higher category. The
// second result is false at the top of the ladder or for an unknown league.
func (l *Ladder) Promote(leagueID string) (*model.RankingLeague, bool) {
	lg, ok := l.leagues[leagueID]
	if !ok {
		return nil, false
	}
	ls := l.byCategory[lg.CategoryID]
	pos := l.position(ls, lg)
	if pos > 0 {
		return ls[pos-1], true
	}

	ci := l.categoryOf[lg.CategoryID]
	if ci == 0 {
		return nil, false
	}
	up := l.byCategory[l.categories[ci-1].ID]
	return up[len(up)-1], true
}

// Relegate returns the league one step below leagueID. From the bottom league
// of a category that is level 1 of the next lower category. The second result
// is false at the bottom of the ladder or for an unknown league.
func (l *Ladder) Relegate(leagueID string) (*model.RankingLeague, bool) {
	lg, ok := l.leagues[leagueID]
	if !ok {
		return nil, false
	}
	ls := l.byCategory[lg.CategoryID]
	pos := l.position(ls, lg)
	if pos < len(ls)-1 {
		return ls[pos+1], true
	}

	ci := l.categoryOf[lg.CategoryID]
	if ci == len(l.categories)-1 {
		return nil, false
	}
	return l.byCategory[l.categories[ci+1].ID][0], true
}

func (l *Ladder) position(ls []*model.RankingLeague, lg *model.RankingLeague) int {
	for i, x := range ls {
		if x.ID == lg.ID {
			return i
		}
	}
	return -1
}

// Buckets is the split of a league's ranked users for one rotation.
type Buckets struct {
	Promote  []*model.User
	Relegate []*model.User
	Remain   []*model.User
}

// SplitBuckets splits users, already sorted by score descending, into the
// top promote users, the bottom relegate users and the rest. The buckets
// never overlap: with fewer users than promote+relegate, promotion wins.
func SplitBuckets(users []*model.User, promote, relegate int) (Buckets, error) {
	if promote < 0 || relegate < 0 {
		return Buckets{}, ErrInvalidThresholds
	}
	n := len(users)
	p := min(promote, n)
	r := min(relegate, n-p)

	return Buckets{
		Promote:  users[:p:p],
		Remain:   users[p : n-r : n-r],
		Relegate: users[n-r:],
	}, nil
}
