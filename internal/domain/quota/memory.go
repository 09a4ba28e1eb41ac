package quota

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

type memEntry struct {
	mu       sync.Mutex
	q        RouteQuota
	admitted map[string]struct{}
}

// MemoryStore хранит квоты в памяти процесса. Запись по ключу
// сериализуется мьютексом записи, глобальной блокировки между ключами нет.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]*memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]*memEntry), now: time.Now}
}

func (s *MemoryStore) lookup(key Key) (*memEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, key Key, category string, defaultLimit int) (RouteQuota, error) {
	if err := ctx.Err(); err != nil {
		return RouteQuota{}, err
	}
	if e, ok := s.lookup(key); ok {
		return e.snapshot(), nil
	}

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		if defaultLimit < 0 {
			defaultLimit = 0
		}
		e = &memEntry{q: RouteQuota{
			Key:         key,
			Category:    category,
			Limit:       defaultLimit,
			Active:      true,
			LastUpdated: s.now(),
		}}
		s.entries[key] = e
	}
	s.mu.Unlock()
	return e.snapshot(), nil
}

func (s *MemoryStore) Get(ctx context.Context, key Key) (RouteQuota, error) {
	if err := ctx.Err(); err != nil {
		return RouteQuota{}, err
	}
	e, ok := s.lookup(key)
	if !ok {
		return RouteQuota{}, ErrQuotaNotFound
	}
	return e.snapshot(), nil
}

func (s *MemoryStore) TryAdmitAndIncrement(ctx context.Context, key Key, admissionID string) (AdmitResult, error) {
	if err := ctx.Err(); err != nil {
		return AdmitResult{}, err
	}
	e, ok := s.lookup(key)
	if !ok {
		return AdmitResult{}, ErrQuotaNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.admitted[admissionID]; ok && admissionID != "" {
		return AdmitResult{Admitted: true, Repeated: true, Quota: e.q}, nil
	}
	if !e.q.Active || e.q.CurrentCount >= e.q.Limit {
		return AdmitResult{Admitted: false, Quota: e.q}, nil
	}
	e.q.CurrentCount++
	e.q.LastUpdated = s.now()
	if admissionID != "" {
		if e.admitted == nil {
			e.admitted = make(map[string]struct{})
		}
		e.admitted[admissionID] = struct{}{}
	}
	return AdmitResult{Admitted: true, Quota: e.q}, nil
}

func (s *MemoryStore) IncrementMetadata(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := s.lookup(key)
	if !ok {
		return ErrQuotaNotFound
	}
	e.mu.Lock()
	e.q.Metadata.TotalSubmissions++
	e.q.Metadata.UniqueUsersApprox++
	e.mu.Unlock()
	return nil
}

func (s *MemoryStore) AdminSet(ctx context.Context, key Key, patch Patch) (RouteQuota, error) {
	if err := ctx.Err(); err != nil {
		return RouteQuota{}, err
	}
	e, ok := s.lookup(key)
	if !ok {
		return RouteQuota{}, ErrQuotaNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.q
	if patch.Limit != nil {
		next.Limit = *patch.Limit
	}
	if patch.CurrentCount != nil {
		next.CurrentCount = *patch.CurrentCount
	}
	if patch.Active != nil {
		next.Active = *patch.Active
	}
	next.LastUpdated = s.now()
	e.q = next
	return next, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return ErrQuotaNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) ListAll(ctx context.Context, f Filter) ([]RouteQuota, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := make([]*memEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []RouteQuota
	for _, e := range entries {
		q := e.snapshot()
		if f.Match(q) {
			out = append(out, q)
		}
	}
	sortQuotas(out)
	return out, nil
}

func (e *memEntry) snapshot() RouteQuota {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q
}

// sortQuotas повторяет ORDER BY из Repo.ListAll.
func sortQuotas(qs []RouteQuota) {
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].QuestionnaireID != qs[j].QuestionnaireID {
			return qs[i].QuestionnaireID < qs[j].QuestionnaireID
		}
		if qs[i].Category != qs[j].Category {
			return qs[i].Category < qs[j].Category
		}
		return qs[i].RouteID < qs[j].RouteID
	})
}
