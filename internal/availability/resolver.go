package availability

import (
	"context"
	"log/slog"

	"github.com/Spok95/route-survey/internal/domain/catalog"
	"github.com/Spok95/route-survey/internal/domain/rules"
	"github.com/Spok95/route-survey/internal/domain/submissions"
)

type Bucket string

const (
	BucketAvailable  Bucket = "available"
	BucketWarnings   Bucket = "warnings"
	BucketRestricted Bucket = "restricted"
	BucketHidden     Bucket = "hidden"
)

type Item struct {
	Route     catalog.Route `json:"route"`
	QuotaFull bool          `json:"quotaFull"`
	Message   string        `json:"message,omitempty"`
	RuleID    string        `json:"ruleId,omitempty"`
}

// Availability — разбиение маршрутов-кандидатов на четыре непересекающихся списка.
type Availability struct {
	Available  []Item `json:"available"`
	Warnings   []Item `json:"warnings"`
	Restricted []Item `json:"restricted"`
	Hidden     []Item `json:"hidden"`
}

func (a *Availability) add(b Bucket, it Item) {
	switch b {
	case BucketHidden:
		a.Hidden = append(a.Hidden, it)
	case BucketRestricted:
		a.Restricted = append(a.Restricted, it)
	case BucketWarnings:
		a.Warnings = append(a.Warnings, it)
	default:
		a.Available = append(a.Available, it)
	}
}

type QuotaPreview interface {
	FullnessPreview(ctx context.Context, questionnaireID string) (map[string]bool, error)
}

type HistorySource interface {
	History(ctx context.Context, userID, questionnaireID string) (submissions.History, error)
}

type Resolver struct {
	catalog catalog.Provider
	quotas  QuotaPreview
	history HistorySource
	log     *slog.Logger
}

func NewResolver(cat catalog.Provider, quotas QuotaPreview, history HistorySource, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{catalog: cat, quotas: quotas, history: history, log: log}
}

// Classify переводит решение правил и превью заполненности в список.
// Заполненный маршрут без сработавшего правила уходит в предупреждения.
func Classify(d rules.Decision, quotaFull bool) Bucket {
	switch d.Outcome {
	case rules.OutcomeBlock:
		return BucketRestricted
	case rules.OutcomeHide:
		return BucketHidden
	case rules.OutcomeWarn:
		return BucketWarnings
	}
	if quotaFull {
		return BucketWarnings
	}
	return BucketAvailable
}

// Resolve ничего не пишет: история и превью квот только читаются.
// Ошибка превью квот не фатальна, маршруты считаются незаполненными.
func (r *Resolver) Resolve(ctx context.Context, userID, questionnaireID string, candidates []catalog.Route) (Availability, error) {
	q, err := r.catalog.Questionnaire(ctx, questionnaireID)
	if err != nil {
		return Availability{}, err
	}
	h, err := r.history.History(ctx, userID, questionnaireID)
	if err != nil {
		return Availability{}, err
	}
	full, err := r.quotas.FullnessPreview(ctx, questionnaireID)
	if err != nil {
		r.log.Warn("quota preview unavailable", "questionnaire_id", questionnaireID, "err", err)
		full = nil
	}

	active := q.ActiveRules()
	out := Availability{
		Available:  []Item{},
		Warnings:   []Item{},
		Restricted: []Item{},
		Hidden:     []Item{},
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, route := range candidates {
		if _, dup := seen[route.ID]; dup {
			continue
		}
		seen[route.ID] = struct{}{}

		isFull := full[route.ID]
		d := rules.Evaluate(h, rules.Candidate{RouteID: route.ID, Category: route.Category, QuotaFull: isFull}, active)
		out.add(Classify(d, isFull), Item{Route: route, QuotaFull: isFull, Message: d.Message, RuleID: d.RuleID})
	}
	return out, nil
}

// Recheck — повторная проверка одного маршрута при отправке. Превью квоты
// не учитывается: заполненность решает только атомарный допуск.
func (r *Resolver) Recheck(ctx context.Context, userID, questionnaireID string, route catalog.Route) (Bucket, Item, error) {
	q, err := r.catalog.Questionnaire(ctx, questionnaireID)
	if err != nil {
		return "", Item{}, err
	}
	h, err := r.history.History(ctx, userID, questionnaireID)
	if err != nil {
		return "", Item{}, err
	}
	d := rules.Evaluate(h, rules.Candidate{RouteID: route.ID, Category: route.Category}, q.ActiveRules())
	return Classify(d, false), Item{Route: route, Message: d.Message, RuleID: d.RuleID}, nil
}
