package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Spok95/route-survey/internal/domain/catalog"
	"github.com/Spok95/route-survey/internal/domain/quota"
	"github.com/Spok95/route-survey/internal/infra/metrics"
)

const defaultCategory = "default"

// CategoryLimits — лимит квоты по категории; ключ "default" для остальных.
type CategoryLimits map[string]int

func (l CategoryLimits) For(category string) int {
	if v, ok := l[category]; ok {
		return v
	}
	return l[defaultCategory]
}

type Tracker struct {
	store   quota.Store
	catalog catalog.Provider
	limits  CategoryLimits
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(store quota.Store, cat catalog.Provider, limits CategoryLimits, timeout time.Duration,
	log *slog.Logger, m *metrics.Metrics) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Tracker{store: store, catalog: cat, limits: limits, timeout: timeout, log: log, metrics: m}
}

func (t *Tracker) route(ctx context.Context, routeID, questionnaireID string) (catalog.Route, error) {
	q, err := t.catalog.Questionnaire(ctx, questionnaireID)
	if err != nil {
		return catalog.Route{}, err
	}
	r, ok := q.Route(routeID)
	if !ok {
		return catalog.Route{}, fmt.Errorf("%w: %s/%s", catalog.ErrUnknownRoute, questionnaireID, routeID)
	}
	return r, nil
}

// Quota возвращает запись квоты, при первом обращении создаёт её
// с лимитом категории маршрута.
func (t *Tracker) Quota(ctx context.Context, routeID, questionnaireID string) (quota.RouteQuota, error) {
	r, err := t.route(ctx, routeID, questionnaireID)
	if err != nil {
		return quota.RouteQuota{}, err
	}
	return t.quotaFor(ctx, questionnaireID, r)
}

func (t *Tracker) quotaFor(ctx context.Context, questionnaireID string, r catalog.Route) (quota.RouteQuota, error) {
	key := quota.Key{RouteID: r.ID, QuestionnaireID: questionnaireID}
	return t.store.GetOrCreate(ctx, key, r.Category, t.limits.For(r.Category))
}

// IsFull — превью для UI, может быть устаревшим. Решение о слоте
// принимает только RecordCompletion.
func (t *Tracker) IsFull(ctx context.Context, routeID, questionnaireID string) (bool, error) {
	q, err := t.Quota(ctx, routeID, questionnaireID)
	if err != nil {
		return false, err
	}
	return !q.Active || q.Full(), nil
}

func (t *Tracker) RemainingQuota(ctx context.Context, routeID, questionnaireID string) (int, error) {
	q, err := t.Quota(ctx, routeID, questionnaireID)
	if err != nil {
		return 0, err
	}
	if !q.Active {
		return 0, nil
	}
	return q.Remaining(), nil
}

// RecordCompletion пытается занять слот квоты. Таймаут и ошибки хранилища
// никогда не дают Admitted=true. submissionID — ключ идемпотентности:
// повтор после потерянного ответа вернёт тот же слот.
func (t *Tracker) RecordCompletion(ctx context.Context, routeID, questionnaireID, userID, submissionID string) (quota.AdmitResult, error) {
	q, err := t.Quota(ctx, routeID, questionnaireID)
	if err != nil {
		t.metrics.Admissions.WithLabelValues(metrics.AdmissionError).Inc()
		return quota.AdmitResult{}, err
	}

	admitCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		admitCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := t.store.TryAdmitAndIncrement(admitCtx, q.Key, submissionID)
	t.metrics.AdmitLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		t.metrics.Admissions.WithLabelValues(metrics.AdmissionError).Inc()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("admit %s: %w: %w", q.Key, quota.ErrStorageUnavailable, err)
		}
		return quota.AdmitResult{}, err
	}

	if !res.Admitted {
		result := metrics.AdmissionFull
		if !res.Quota.Active {
			result = metrics.AdmissionInactive
		}
		t.metrics.Admissions.WithLabelValues(result).Inc()
		return res, nil
	}
	if res.Repeated {
		t.metrics.Admissions.WithLabelValues(metrics.AdmissionRepeated).Inc()
		t.log.Info("admission already recorded", "quota", q.Key.String(), "submission_id", submissionID)
		return res, nil
	}
	t.metrics.Admissions.WithLabelValues(metrics.AdmissionAdmitted).Inc()

	// метаданные — best effort, на результат не влияют
	if err := t.store.IncrementMetadata(ctx, q.Key); err != nil {
		t.log.Warn("quota metadata update failed", "quota", q.Key.String(), "user_id", userID, "err", err)
	}
	t.log.Debug("completion admitted", "quota", q.Key.String(), "user_id", userID,
		"count", res.Quota.CurrentCount, "limit", res.Quota.Limit)
	return res, nil
}

type RouteSummary struct {
	RouteID      string `json:"routeId"`
	Name         string `json:"name"`
	Limit        int    `json:"limit"`
	CurrentCount int    `json:"currentCount"`
	Remaining    int    `json:"remaining"`
	Active       bool   `json:"active"`
}

type CategorySummary struct {
	Category         string         `json:"category"`
	TotalLimit       int            `json:"totalLimit"`
	TotalCompletions int            `json:"totalCompletions"`
	TotalRemaining   int            `json:"totalRemaining"`
	Routes           []RouteSummary `json:"routes"`
}

// Summary агрегирует квоты анкеты по категориям. Маршруты без записи
// показываются с лимитом категории и нулевым счётчиком, запись не создаётся.
func (t *Tracker) Summary(ctx context.Context, questionnaireID string) ([]CategorySummary, error) {
	q, err := t.catalog.Questionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, err
	}
	stored, err := t.store.ListAll(ctx, quota.Filter{QuestionnaireID: questionnaireID})
	if err != nil {
		return nil, err
	}
	byRoute := make(map[string]quota.RouteQuota, len(stored))
	for _, rq := range stored {
		byRoute[rq.RouteID] = rq
	}

	byCategory := map[string]*CategorySummary{}
	for _, r := range q.Routes {
		rq, ok := byRoute[r.ID]
		if !ok {
			rq = quota.RouteQuota{Category: r.Category, Limit: t.limits.For(r.Category), Active: true}
		}
		rs := RouteSummary{
			RouteID:      r.ID,
			Name:         r.Name,
			Limit:        rq.Limit,
			CurrentCount: rq.CurrentCount,
			Active:       rq.Active,
		}
		if rq.Active {
			rs.Remaining = rq.Remaining()
		}

		cs, ok := byCategory[r.Category]
		if !ok {
			cs = &CategorySummary{Category: r.Category}
			byCategory[r.Category] = cs
		}
		cs.TotalLimit += rs.Limit
		cs.TotalCompletions += rs.CurrentCount
		cs.TotalRemaining += rs.Remaining
		cs.Routes = append(cs.Routes, rs)
	}

	out := make([]CategorySummary, 0, len(byCategory))
	for _, cs := range byCategory {
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// FullnessPreview — заполненность маршрутов анкеты одним запросом, без
// создания записей. Для отсутствующих квот лимит категории > 0, значит не заполнены.
func (t *Tracker) FullnessPreview(ctx context.Context, questionnaireID string) (map[string]bool, error) {
	stored, err := t.store.ListAll(ctx, quota.Filter{QuestionnaireID: questionnaireID})
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(stored))
	for _, rq := range stored {
		out[rq.RouteID] = !rq.Active || rq.Full()
	}
	return out, nil
}
