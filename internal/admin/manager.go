package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Spok95/route-survey/internal/domain/quota"
	"github.com/Spok95/route-survey/internal/domain/submissions"
	"github.com/Spok95/route-survey/internal/recorder"
)

var ErrInvalidLimit = errors.New("admin: limit must be >= 0")

// QuotaSource создаёт запись квоты с лимитом категории, если её ещё нет.
type QuotaSource interface {
	Quota(ctx context.Context, routeID, questionnaireID string) (quota.RouteQuota, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, submissionID string, counted bool) (recorder.Result, error)
}

// Manager правит квоты вручную, в обход алгоритма допуска.
// Каждая правка делается одной атомарной записью через Store.AdminSet.
type Manager struct {
	store       quota.Store
	quotas      QuotaSource
	submissions submissions.Store
	reconciler  Reconciler
	log         *slog.Logger
}

func New(store quota.Store, quotas QuotaSource, subs submissions.Store, rec Reconciler, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, quotas: quotas, submissions: subs, reconciler: rec, log: log}
}

func (m *Manager) set(ctx context.Context, key quota.Key, patch quota.Patch) (quota.RouteQuota, error) {
	// отсутствующая запись создаётся с лимитом категории, затем правится
	if _, err := m.quotas.Quota(ctx, key.RouteID, key.QuestionnaireID); err != nil {
		return quota.RouteQuota{}, err
	}
	q, err := m.store.AdminSet(ctx, key, patch)
	if err != nil {
		return quota.RouteQuota{}, err
	}
	m.log.Info("quota changed by admin",
		"quota", key.String(),
		"limit", q.Limit,
		"count", q.CurrentCount,
		"active", q.Active,
	)
	return q, nil
}

func (m *Manager) ResetQuota(ctx context.Context, key quota.Key) (quota.RouteQuota, error) {
	zero := 0
	return m.set(ctx, key, quota.Patch{CurrentCount: &zero})
}

func (m *Manager) SetLimit(ctx context.Context, key quota.Key, limit int) (quota.RouteQuota, error) {
	if limit < 0 {
		return quota.RouteQuota{}, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	return m.set(ctx, key, quota.Patch{Limit: &limit})
}

func (m *Manager) SetActive(ctx context.Context, key quota.Key, active bool) (quota.RouteQuota, error) {
	return m.set(ctx, key, quota.Patch{Active: &active})
}

// DeleteQuota идемпотентна: удаление отсутствующей записи не ошибка.
// Следующее обращение снова создаст квоту с лимитом категории.
func (m *Manager) DeleteQuota(ctx context.Context, key quota.Key) error {
	err := m.store.Delete(ctx, key)
	if err != nil && !errors.Is(err, quota.ErrQuotaNotFound) {
		return err
	}
	m.log.Info("quota deleted by admin", "quota", key.String())
	return nil
}

func (m *Manager) ListQuotas(ctx context.Context, f quota.Filter) ([]quota.RouteQuota, error) {
	return m.store.ListAll(ctx, f)
}

func (m *Manager) ListUnreconciled(ctx context.Context, questionnaireID string) ([]submissions.Response, error) {
	return m.submissions.ListByStatus(ctx, submissions.StatusUnreconciled, questionnaireID)
}

func (m *Manager) Reconcile(ctx context.Context, submissionID string, counted bool) (recorder.Result, error) {
	res, err := m.reconciler.Reconcile(ctx, submissionID, counted)
	if err != nil {
		return recorder.Result{}, err
	}
	m.log.Info("submission reconciled by admin", "submission_id", submissionID, "counted", counted, "accepted", res.Accepted)
	return res, nil
}
