package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fitness-league/internal/model"
	"fitness-league/internal/queue"
	"fitness-league/internal/repository"
)

// memStore is an in-memory implementation of the service stores with the
// same conflict and atomicity guarantees as the PostgreSQL repositories.
type memStore struct {
	mu         sync.Mutex
	seq        int
	users      map[string]*model.User
	activities []*model.Activity
	missions   map[string]*model.Mission
	attempts   map[string]*model.MissionAttempt
	progress   map[string]float64 // attemptID|activityID
	categories []*model.RankingCategory
	leagues    []*model.RankingLeague
	coinTx     []model.CoinTransaction
	rotateErr  map[string]error
	rotations  map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[string]*model.User),
		missions:  make(map[string]*model.Mission),
		attempts:  make(map[string]*model.MissionAttempt),
		progress:  make(map[string]float64),
		rotateErr: make(map[string]error),
		rotations: make(map[string]int),
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.WeeklyScores = make(map[string]int, len(u.WeeklyScores))
	for k, v := range u.WeeklyScores {
		c.WeeklyScores[k] = v
	}
	if u.LeagueID != nil {
		id := *u.LeagueID
		c.LeagueID = &id
	}
	return &c
}

func (s *memStore) addUser(u *model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.nextID("u")
	}
	if u.WeeklyScores == nil {
		u.WeeklyScores = map[string]int{}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, s.seq, time.UTC)
	}
	s.users[u.ID] = cloneUser(u)
	return cloneUser(u)
}

func (s *memStore) user(id string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUser(s.users[id])
}

// UserStore

func (s *memStore) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *memStore) ListByLeague(_ context.Context, leagueID string) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.User
	for _, u := range s.users {
		if u.InLeague(leagueID) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentWeekScore != out[j].CurrentWeekScore {
			return out[i].CurrentWeekScore > out[j].CurrentWeekScore
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) UpdateWeeklyScore(_ context.Context, userID, weekKey string, total int, setCurrent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.WeeklyScores[weekKey] = total
	if setCurrent {
		u.CurrentWeekScore = total
	}
	return nil
}

func (s *memStore) RotateUser(_ context.Context, userID, leagueID, description string) (*model.RotationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rotateErr[userID]; err != nil {
		return nil, err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	converted := int64(u.CurrentWeekScore)
	u.Coins += converted
	u.CurrentWeekScore = 0
	id := leagueID
	u.LeagueID = &id
	s.rotations[userID]++
	desc := description
	s.coinTx = append(s.coinTx, model.CoinTransaction{
		ID: s.nextID("tx"), UserID: userID, Amount: converted, Type: model.CoinTxWeeklyPoints, Description: &desc,
	})
	return &model.RotationResult{User: cloneUser(u), Converted: converted}, nil
}

// ActivityStore

func (s *memStore) Create(_ context.Context, a *model.Activity) (*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.activities {
		if x.ExternalID == a.ExternalID {
			return nil, repository.ErrActivityExists
		}
	}
	c := *a
	if c.ID == "" {
		c.ID = s.nextID("a")
	}
	s.activities = append(s.activities, &c)
	out := c
	return &out, nil
}

func (s *memStore) GetByExternalID(_ context.Context, externalID string) (*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.activities {
		if x.ExternalID == externalID {
			c := *x
			return &c, nil
		}
	}
	return nil, repository.ErrActivityNotFound
}

func (s *memStore) HasOverlap(_ context.Context, userID string, year, week int, startMs, endMs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.activities {
		if x.UserID == userID && x.YearInUserTZ == year && x.WeekInUserTZ == week &&
			x.StartEpochMs < endMs && x.EndEpochMs > startMs {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) SumValidPoints(_ context.Context, userID string, year, week int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, x := range s.activities {
		if x.UserID == userID && x.IsValid && x.YearInUserTZ == year && x.WeekInUserTZ == week {
			total += x.Points
		}
	}
	return total, nil
}

func (s *memStore) ListByWeek(_ context.Context, userID string, year, week int) ([]*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Activity
	for _, x := range s.activities {
		if x.UserID == userID && x.YearInUserTZ == year && x.WeekInUserTZ == week {
			c := *x
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) UpdateScore(_ context.Context, id string, points int, factor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.activities {
		if x.ID == id {
			x.Points = points
			x.EffortFactor = factor
			return nil
		}
	}
	return repository.ErrActivityNotFound
}

func (s *memStore) validActivities(userID string) []*model.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Activity
	for _, x := range s.activities {
		if x.UserID == userID && x.IsValid {
			out = append(out, x)
		}
	}
	return out
}

// MissionStore

func (s *memStore) addMission(m *model.Mission) *model.Mission {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = s.nextID("m")
	}
	c := *m
	s.missions[m.ID] = &c
	return m
}

func (s *memStore) GetMission(id string) *model.Mission {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.missions[id]
	return &c
}

func (s *memStore) attempt(id string) *model.MissionAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.attempts[id]
	return &c
}

// missionView exposes memStore as a MissionStore; memStore's own GetByID is
// the user lookup.
type missionView struct{ *memStore }

func (v missionView) GetByID(_ context.Context, id string) (*model.Mission, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.missions[id]
	if !ok {
		return nil, repository.ErrMissionNotFound
	}
	c := *m
	return &c, nil
}

func (s *memStore) ListDue(_ context.Context, day time.Time) ([]*model.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	y, m, d := day.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	var out []*model.Mission
	for _, x := range s.missions {
		ey, em, ed := x.EndDay.Date()
		if x.IsActive && time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC).Before(today) {
			c := *x
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) Finalize(_ context.Context, missionID string) (*model.FinalizeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[missionID]
	if !ok {
		return nil, repository.ErrMissionNotFound
	}
	res := &model.FinalizeResult{MissionID: missionID}
	if !m.IsActive {
		return res, nil
	}
	m.IsActive = false
	res.Deactivated = true

	ids := make([]string, 0, len(s.attempts))
	for id := range s.attempts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := s.attempts[id]
		if a.MissionID != missionID || a.Status != model.AttemptActive {
			continue
		}
		if a.Progress >= m.GoalValue {
			a.Status = model.AttemptAchieved
		} else {
			a.Status = model.AttemptNotAchieved
		}
		res.Attempts = append(res.Attempts, model.FinalizedAttempt{
			AttemptID: a.ID, UserID: a.UserID, Status: a.Status, Progress: a.Progress,
		})
	}
	return res, nil
}

func (s *memStore) CreateAttempt(_ context.Context, a *model.MissionAttempt) (*model.MissionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.attempts {
		if x.UserID == a.UserID && x.MissionID == a.MissionID {
			return nil, repository.ErrAttemptExists
		}
	}
	c := *a
	c.ID = s.nextID("att")
	if c.Status == "" {
		c.Status = model.AttemptActive
	}
	s.attempts[c.ID] = &c
	out := c
	return &out, nil
}

func (s *memStore) FindAttempt(_ context.Context, userID, missionID string) (*model.MissionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.attempts {
		if x.UserID == userID && x.MissionID == missionID {
			c := *x
			return &c, nil
		}
	}
	return nil, repository.ErrAttemptNotFound
}

func (s *memStore) ListActiveAttempts(_ context.Context, userID string) ([]*model.MissionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.MissionAttempt
	for _, x := range s.attempts {
		if x.UserID != userID || x.Status != model.AttemptActive {
			continue
		}
		c := *x
		m := *s.missions[x.MissionID]
		c.Mission = &m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ApplyProgress(_ context.Context, attemptID, activityID string, delta float64) (*model.ProgressResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, repository.ErrAttemptNotFound
	}
	res := &model.ProgressResult{Progress: a.Progress, Status: a.Status}
	if a.Status != model.AttemptActive {
		return res, nil
	}
	key := attemptID + "|" + activityID
	if _, seen := s.progress[key]; seen {
		return res, nil
	}
	s.progress[key] = delta

	a.Progress += delta
	if a.Progress >= s.missions[a.MissionID].GoalValue {
		a.Status = model.AttemptAchieved
		res.Achieved = true
	}
	res.Applied = true
	res.Progress = a.Progress
	res.Status = a.Status
	return res, nil
}

func (s *memStore) HasAchievedAttempt(_ context.Context, userID, missionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.attempts {
		if x.UserID == userID && x.MissionID == missionID && x.Status == model.AttemptAchieved {
			return true, nil
		}
	}
	return false, nil
}

// LeagueStore

func (s *memStore) CreateCategory(_ context.Context, name string, order int) (*model.RankingCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.Name == name || c.Order == order {
			return nil, repository.ErrCategoryExists
		}
	}
	c := &model.RankingCategory{ID: s.nextID("cat"), Name: name, Order: order}
	s.categories = append(s.categories, c)
	out := *c
	return &out, nil
}

func (s *memStore) CreateLeague(_ context.Context, categoryID string, level int) (*model.RankingLeague, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leagues {
		if l.CategoryID == categoryID && l.Level == level {
			return nil, repository.ErrLeagueExists
		}
	}
	l := &model.RankingLeague{ID: s.nextID("lg"), CategoryID: categoryID, Level: level}
	s.leagues = append(s.leagues, l)
	out := *l
	return &out, nil
}

func (s *memStore) ListCategories(context.Context) ([]*model.RankingCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.RankingCategory, 0, len(s.categories))
	for _, c := range s.categories {
		x := *c
		out = append(out, &x)
	}
	return out, nil
}

func (s *memStore) ListLeagues(context.Context) ([]*model.RankingLeague, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.RankingLeague, 0, len(s.leagues))
	for _, l := range s.leagues {
		x := *l
		out = append(out, &x)
	}
	return out, nil
}

func (s *memStore) GetLeague(_ context.Context, id string) (*model.RankingLeague, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leagues {
		if l.ID == id {
			x := *l
			return &x, nil
		}
	}
	return nil, repository.ErrLeagueNotFound
}

func (s *memStore) rotationsOf(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotations[userID]
}

func (s *memStore) coinTxOf(userID string) []model.CoinTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CoinTransaction
	for _, tx := range s.coinTx {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out
}

// syncQueue runs tasks inline, recording their names.
type syncQueue struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (q *syncQueue) Enqueue(name string, fn queue.TaskFunc) bool {
	err := fn(context.Background())
	q.mu.Lock()
	defer q.mu.Unlock()
	q.names = append(q.names, name)
	if err != nil {
		q.errs = append(q.errs, err)
	}
	return true
}

func (q *syncQueue) count(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, x := range q.names {
		if x == name {
			n++
		}
	}
	return n
}

type notification struct {
	UserID     string
	Importance int
	Type       model.NotificationType
	Message    string
	Title      string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(_ context.Context, u *model.User, importance int, typ model.NotificationType, message, title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{UserID: u.ID, Importance: importance, Type: typ, Message: message, Title: title})
}

func (n *recordingNotifier) ofType(typ model.NotificationType) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, x := range n.sent {
		if x.Type == typ {
			out = append(out, x)
		}
	}
	return out
}

func (n *recordingNotifier) forUser(userID string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, x := range n.sent {
		if x.UserID == userID {
			out = append(out, x)
		}
	}
	return out
}

// fakeBadges records evaluation triggers.
type fakeBadges struct {
	mu       sync.Mutex
	activity []string // activity ids
	missions []string // userID|missionID
	ranking  []string // userID|leagueID
}

func (b *fakeBadges) EvaluateForActivity(_ context.Context, _ *model.User, a *model.Activity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activity = append(b.activity, a.ID)
	return nil
}

func (b *fakeBadges) EvaluateMission(_ context.Context, u *model.User, missionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.missions = append(b.missions, u.ID+"|"+missionID)
	return nil
}

func (b *fakeBadges) EvaluateRanking(_ context.Context, u *model.User) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	league := ""
	if u.LeagueID != nil {
		league = *u.LeagueID
	}
	b.ranking = append(b.ranking, u.ID+"|"+league)
	return nil
}
