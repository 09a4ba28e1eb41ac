package submissions

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*MemoryStore)(nil)

type historyKey struct {
	userID, questionnaireID, routeID string
}

type MemoryStore struct {
	mu        sync.RWMutex
	responses map[string]Response
	history   map[historyKey]RouteHistory
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		responses: make(map[string]Response),
		history:   make(map[historyKey]RouteHistory),
		now:       time.Now,
	}
}

func (s *MemoryStore) CreatePending(ctx context.Context, r Response) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if len(r.Payload) == 0 {
		r.Payload = []byte(`{}`)
	}
	now := s.now()
	r.Status = StatusPending
	r.Reason = ""
	r.CreatedAt, r.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[r.ID] = r
	return r, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.responses[id]
	if !ok {
		return Response{}, ErrNotFound
	}
	return r, nil
}

// transition вызывается под s.mu.
func (s *MemoryStore) transition(id string, to Status, reason string, from ...Status) (Response, error) {
	r, ok := s.responses[id]
	if !ok {
		return Response{}, ErrNotFound
	}
	if !slices.Contains(from, r.Status) {
		return Response{}, ErrAlreadyFinalized
	}
	r.Status = to
	r.Reason = reason
	r.UpdatedAt = s.now()
	s.responses[id] = r
	return r, nil
}

func (s *MemoryStore) Accept(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.transition(id, StatusAccepted, "", StatusPending, StatusUnreconciled)
	if err != nil {
		return err
	}
	k := historyKey{r.UserID, r.QuestionnaireID, r.RouteID}
	h := s.history[k]
	h.Count++
	h.LastSubmittedAt = r.UpdatedAt
	s.history[k] = h
	return nil
}

func (s *MemoryStore) Reject(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.transition(id, StatusRejected, reason, StatusPending, StatusUnreconciled)
	return err
}

func (s *MemoryStore) MarkUnreconciled(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.transition(id, StatusUnreconciled, reason, StatusPending)
	return err
}

func (s *MemoryStore) History(ctx context.Context, userID, questionnaireID string) (History, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := History{}
	for k, v := range s.history {
		if k.userID == userID && k.questionnaireID == questionnaireID {
			h[k.routeID] = v
		}
	}
	return h, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status, questionnaireID string) ([]Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []Response
	for _, r := range s.responses {
		if r.Status != status {
			continue
		}
		if questionnaireID != "" && r.QuestionnaireID != questionnaireID {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
