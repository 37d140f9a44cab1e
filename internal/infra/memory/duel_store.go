package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"exam-duel-service/internal/domain"
)

type responseKey struct {
	duelID        string
	order         int
	participantID string
}

type questionKey struct {
	duelID string
	order  int
}

// DuelStore is an in-memory implementation of app.DuelStore. A single lock makes
// every conditional write atomic, standing in for the database constraints.
type DuelStore struct {
	mu           sync.RWMutex
	participants map[string]domain.Participant
	duels        map[string]domain.Duel
	questions    map[questionKey]domain.DuelQuestion
	responses    map[responseKey]domain.DuelResponse
	polls        map[string]domain.PollMapping
	// insertion order of responses, for stable listing
	responseLog []responseKey
}

func NewDuelStore() *DuelStore {
	return &DuelStore{
		participants: make(map[string]domain.Participant),
		duels:        make(map[string]domain.Duel),
		questions:    make(map[questionKey]domain.DuelQuestion),
		responses:    make(map[responseKey]domain.DuelResponse),
		polls:        make(map[string]domain.PollMapping),
	}
}

// SetBalance seeds a participant balance (useful for tests/demos).
func (s *DuelStore) SetBalance(id string, balance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[id]
	p.ID = id
	p.Balance = balance
	s.participants[id] = p
}

func (s *DuelStore) UpsertParticipant(_ context.Context, p domain.Participant) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.participants[p.ID]
	if ok {
		if p.DisplayName != "" {
			existing.DisplayName = p.DisplayName
		}
		existing.UpdatedAt = time.Now()
		s.participants[p.ID] = existing
		return existing, nil
	}
	p.UpdatedAt = time.Now()
	s.participants[p.ID] = p
	return p, nil
}

func (s *DuelStore) GetParticipant(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *DuelStore) HasPendingDuel(_ context.Context, a, b string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.duels {
		if d.Status != domain.DuelPending {
			continue
		}
		if (d.ChallengerID == a && d.ChallengedID == b) || (d.ChallengerID == b && d.ChallengedID == a) {
			return true, nil
		}
	}
	return false, nil
}

func (s *DuelStore) CreateDuel(_ context.Context, duel domain.Duel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duels[duel.ID] = duel
	return nil
}

func (s *DuelStore) GetDuel(_ context.Context, id string) (domain.Duel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.duels[id]
	if !ok {
		return domain.Duel{}, domain.ErrDuelNotFound
	}
	return d, nil
}

func (s *DuelStore) TransitionDuel(_ context.Context, id string, from, to domain.DuelStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.duels[id]
	if !ok {
		return false, domain.ErrDuelNotFound
	}
	if d.Status != from {
		return false, nil
	}
	d.Status = to
	if to.Terminal() {
		d.CompletedAt = &at
	}
	s.duels[id] = d
	return true, nil
}

func (s *DuelStore) ActivateDuel(_ context.Context, id string, questions []domain.DuelQuestion, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.duels[id]
	if !ok {
		return false, domain.ErrDuelNotFound
	}
	if d.Status != domain.DuelAccepted {
		return false, nil
	}
	for _, q := range questions {
		s.questions[questionKey{duelID: id, order: q.Order}] = q
	}
	d.Status = domain.DuelActive
	d.QuestionsCount = len(questions)
	d.CurrentQuestion = 1
	d.StartedAt = &startedAt
	s.duels[id] = d
	return true, nil
}

func (s *DuelStore) GetDuelQuestion(_ context.Context, duelID string, order int) (domain.DuelQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[questionKey{duelID: duelID, order: order}]
	if !ok {
		return domain.DuelQuestion{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (s *DuelStore) SavePollMapping(_ context.Context, m domain.PollMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[m.PollID] = m
	return nil
}

func (s *DuelStore) GetPollMapping(_ context.Context, pollID string) (domain.PollMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.polls[pollID]
	if !ok {
		return domain.PollMapping{}, domain.ErrPollNotFound
	}
	return m, nil
}

func (s *DuelStore) InsertResponse(_ context.Context, r domain.DuelResponse) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := responseKey{duelID: r.DuelID, order: r.QuestionOrder, participantID: r.ParticipantID}
	if _, exists := s.responses[key]; exists {
		return false, nil
	}
	s.responses[key] = r
	s.responseLog = append(s.responseLog, key)
	return true, nil
}

func (s *DuelStore) ListResponses(_ context.Context, duelID string, order int) ([]domain.DuelResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DuelResponse
	for _, key := range s.responseLog {
		if key.duelID != duelID || (order != 0 && key.order != order) {
			continue
		}
		out = append(out, s.responses[key])
	}
	return out, nil
}

func (s *DuelStore) AdvanceRound(_ context.Context, duelID string, order int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.duels[duelID]
	if !ok {
		return false, domain.ErrDuelNotFound
	}
	if d.Status != domain.DuelActive || d.CurrentQuestion != order || order >= d.QuestionsCount {
		return false, nil
	}
	d.CurrentQuestion = order + 1
	s.duels[duelID] = d
	return true, nil
}

func (s *DuelStore) FinalizeDuel(_ context.Context, st domain.Settlement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.duels[st.DuelID]
	if !ok {
		return false, domain.ErrDuelNotFound
	}
	if d.Status != domain.DuelActive || d.CurrentQuestion != st.Round || d.QuestionsCount != st.Round {
		return false, nil
	}
	d.Status = domain.DuelCompleted
	d.Result = st.Result
	d.WinnerID = st.WinnerID
	completed := st.CompletedAt
	d.CompletedAt = &completed
	s.duels[st.DuelID] = d

	if st.Transfers() {
		s.adjustLocked(st.WinnerID, st.Stake)
		s.adjustLocked(st.LoserID, -st.Stake)
	}
	return true, nil
}

func (s *DuelStore) adjustLocked(id string, delta int) {
	if domain.IsSimulatedOpponent(id) {
		return
	}
	p := s.participants[id]
	p.ID = id
	p.Balance += delta
	s.participants[id] = p
}

func (s *DuelStore) ExpirePending(_ context.Context, now time.Time) ([]domain.Duel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []domain.Duel
	for id, d := range s.duels {
		if d.Status != domain.DuelPending || !d.ExpiresAt.Before(now) {
			continue
		}
		d.Status = domain.DuelExpired
		at := now
		d.CompletedAt = &at
		s.duels[id] = d
		expired = append(expired, d)
	}
	sortByCreated(expired)
	return expired, nil
}

func (s *DuelStore) ListPendingExpiring(_ context.Context, now, until time.Time) ([]domain.Duel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Duel
	for _, d := range s.duels {
		if d.Status == domain.DuelPending && d.RemindedAt == nil && !d.ExpiresAt.Before(now) && !d.ExpiresAt.After(until) {
			out = append(out, d)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *DuelStore) MarkReminded(_ context.Context, duelID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.duels[duelID]
	if !ok {
		return false, domain.ErrDuelNotFound
	}
	if d.RemindedAt != nil {
		return false, nil
	}
	d.RemindedAt = &at
	s.duels[duelID] = d
	return true, nil
}

func (s *DuelStore) ListDuelsFor(_ context.Context, participantID string, status domain.DuelStatus, limit int) ([]domain.Duel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Duel
	for _, d := range s.duels {
		if d.Status == status && d.IsParticipant(participantID) {
			out = append(out, d)
		}
	}
	// newest completion first
	sort.Slice(out, func(i, j int) bool {
		return completedAt(out[i]).After(completedAt(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func completedAt(d domain.Duel) time.Time {
	if d.CompletedAt != nil {
		return *d.CompletedAt
	}
	return d.CreatedAt
}

func sortByCreated(duels []domain.Duel) {
	sort.Slice(duels, func(i, j int) bool { return duels[i].CreatedAt.Before(duels[j].CreatedAt) })
}
