package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Spok95/route-survey/internal/availability"
	"github.com/Spok95/route-survey/internal/domain/catalog"
	"github.com/Spok95/route-survey/internal/domain/quota"
	"github.com/Spok95/route-survey/internal/domain/submissions"
	"github.com/Spok95/route-survey/internal/infra/metrics"
	"github.com/Spok95/route-survey/internal/infra/notify"
)

// ErrInconsistentState — отчёт сохранён, а допуск к квоте не удалось
// довести до конца. Такой отчёт помечается unreconciled и ждёт ручной сверки.
var ErrInconsistentState = errors.New("recorder: inconsistent state")

type Reason string

const (
	ReasonFull     Reason = "full"
	ReasonInactive Reason = "inactive"
	ReasonBlocked  Reason = "blocked"
	ReasonHidden   Reason = "hidden"
	ReasonError    Reason = "error"
)

// Исходы для метрики submissions_total сверх причин отказа.
const (
	outcomeAccepted     = "accepted"
	outcomeInconsistent = "inconsistent"
)

type Result struct {
	Accepted     bool   `json:"accepted"`
	Reason       Reason `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
	SubmissionID string `json:"submissionId,omitempty"`
	Remaining    int    `json:"remaining"`
}

type Completer interface {
	RecordCompletion(ctx context.Context, routeID, questionnaireID, userID, submissionID string) (quota.AdmitResult, error)
}

type Rechecker interface {
	Recheck(ctx context.Context, userID, questionnaireID string, route catalog.Route) (availability.Bucket, availability.Item, error)
}

type Options struct {
	Attempts      int
	Backoff       time.Duration
	NotifyTimeout time.Duration
}

type Recorder struct {
	catalog  catalog.Provider
	resolver Rechecker
	tracker  Completer
	store    submissions.Store
	notifier notify.Notifier
	log      *slog.Logger
	metrics  *metrics.Metrics
	opts     Options
}

func New(cat catalog.Provider, resolver Rechecker, tracker Completer, store submissions.Store,
	notifier notify.Notifier, log *slog.Logger, m *metrics.Metrics, opts Options) *Recorder {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 10 * time.Millisecond
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 5 * time.Second
	}
	return &Recorder{
		catalog: cat, resolver: resolver, tracker: tracker, store: store,
		notifier: notifier, log: log, metrics: m, opts: opts,
	}
}

func transient(err error) bool {
	return errors.Is(err, quota.ErrStorageUnavailable) ||
		errors.Is(err, submissions.ErrStorageUnavailable) ||
		errors.Is(err, quota.ErrQuotaNotFound) || // квоту удалили между созданием и допуском
		errors.Is(err, context.DeadlineExceeded)
}

func (r *Recorder) backoff() retry.Backoff {
	b := retry.NewExponential(r.opts.Backoff)
	b = retry.WithCappedDuration(time.Second, b)
	return retry.WithMaxRetries(uint64(r.opts.Attempts-1), b)
}

// withRetry повторяет только временные ошибки хранилища.
func (r *Recorder) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if transient(err) {
			r.log.Warn("transient storage error", "op", op, "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// Submit засчитывает прохождение маршрута пользователем.
//
// Порядок: повторная проверка правил, сохранение отчёта в pending,
// атомарный допуск к квоте, финализация отчёта (accepted/rejected).
// Отказы по правилам и заполненной квоте — это Result, а не ошибка.
func (r *Recorder) Submit(ctx context.Context, userID, questionnaireID, routeID string, payload json.RawMessage) (Result, error) {
	q, err := r.catalog.Questionnaire(ctx, questionnaireID)
	if err != nil {
		return Result{}, err
	}
	route, ok := q.Route(routeID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s/%s", catalog.ErrUnknownRoute, questionnaireID, routeID)
	}

	var (
		bucket availability.Bucket
		item   availability.Item
	)
	if err := r.withRetry(ctx, "recheck", func(ctx context.Context) error {
		var err error
		bucket, item, err = r.resolver.Recheck(ctx, userID, questionnaireID, route)
		return err
	}); err != nil {
		r.metrics.Submissions.WithLabelValues(string(ReasonError)).Inc()
		return Result{}, err
	}
	switch bucket {
	case availability.BucketRestricted:
		r.metrics.Submissions.WithLabelValues(string(ReasonBlocked)).Inc()
		return Result{Accepted: false, Reason: ReasonBlocked, Message: item.Message}, nil
	case availability.BucketHidden:
		r.metrics.Submissions.WithLabelValues(string(ReasonHidden)).Inc()
		return Result{Accepted: false, Reason: ReasonHidden, Message: item.Message}, nil
	}

	var resp submissions.Response
	if err := r.withRetry(ctx, "create response", func(ctx context.Context) error {
		var err error
		resp, err = r.store.CreatePending(ctx, submissions.Response{
			UserID:          userID,
			QuestionnaireID: questionnaireID,
			RouteID:         routeID,
			Payload:         payload,
		})
		return err
	}); err != nil {
		r.metrics.Submissions.WithLabelValues(string(ReasonError)).Inc()
		return Result{}, err
	}

	return r.admit(ctx, resp)
}

// admit занимает слот и финализирует отчёт. После записи в хранилище
// отмена клиентом уже ничего не откатывает, поэтому финализация идёт без отмены.
func (r *Recorder) admit(ctx context.Context, resp submissions.Response) (Result, error) {
	var res quota.AdmitResult
	err := r.withRetry(ctx, "admit", func(ctx context.Context) error {
		var err error
		res, err = r.tracker.RecordCompletion(ctx, resp.RouteID, resp.QuestionnaireID, resp.UserID, resp.ID)
		return err
	})
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		return r.inconsistent(persistCtx, resp, "admission unresolved", err)
	}

	if res.Admitted {
		if err := r.withRetry(persistCtx, "accept", func(ctx context.Context) error {
			return r.store.Accept(ctx, resp.ID)
		}); err != nil {
			return r.inconsistent(persistCtx, resp, "admitted but not accepted", err)
		}
		r.metrics.Submissions.WithLabelValues(outcomeAccepted).Inc()
		r.log.Info("submission accepted", "submission_id", resp.ID, "user_id", resp.UserID,
			"route_id", resp.RouteID, "questionnaire_id", resp.QuestionnaireID)
		return Result{Accepted: true, SubmissionID: resp.ID, Remaining: res.Quota.Remaining()}, nil
	}

	reason, msg := ReasonFull, "Этот маршрут только что набрал лимит прохождений"
	if !res.Quota.Active {
		reason, msg = ReasonInactive, "Маршрут сейчас не принимает отчёты"
	}
	if err := r.withRetry(persistCtx, "reject", func(ctx context.Context) error {
		return r.store.Reject(ctx, resp.ID, string(reason))
	}); err != nil {
		return r.inconsistent(persistCtx, resp, "rejected but not marked", err)
	}
	r.metrics.Submissions.WithLabelValues(string(reason)).Inc()
	r.log.Info("submission rejected", "submission_id", resp.ID, "user_id", resp.UserID,
		"route_id", resp.RouteID, "reason", reason)
	return Result{Accepted: false, Reason: reason, Message: msg, SubmissionID: resp.ID}, nil
}

// inconsistent помечает отчёт для ручной сверки и сообщает администратору.
func (r *Recorder) inconsistent(ctx context.Context, resp submissions.Response, what string, cause error) (Result, error) {
	r.metrics.Submissions.WithLabelValues(outcomeInconsistent).Inc()
	r.metrics.Unreconciled.Inc()

	markErr := r.store.MarkUnreconciled(ctx, resp.ID, fmt.Sprintf("%s: %v", what, cause))
	if markErr != nil && !errors.Is(markErr, submissions.ErrAlreadyFinalized) {
		r.log.Error("mark unreconciled failed", "submission_id", resp.ID, "err", markErr)
	}
	r.log.Error("submission needs reconciliation",
		"submission_id", resp.ID,
		"user_id", resp.UserID,
		"route_id", resp.RouteID,
		"questionnaire_id", resp.QuestionnaireID,
		"state", what,
		"err", cause,
	)
	text := fmt.Sprintf("Отчёт %s (пользователь %s, маршрут %s/%s) требует ручной сверки: %s: %v",
		resp.ID, resp.UserID, resp.QuestionnaireID, resp.RouteID, what, cause)
	notifyCtx, cancel := context.WithTimeout(ctx, r.opts.NotifyTimeout)
	defer cancel()
	if err := r.notifier.Notify(notifyCtx, text); err != nil {
		r.log.Warn("admin notification failed", "submission_id", resp.ID, "err", err)
	}

	return Result{Accepted: false, Reason: ReasonError, SubmissionID: resp.ID},
		fmt.Errorf("submission %s: %s: %w: %w", resp.ID, what, ErrInconsistentState, cause)
}

// Reconcile закрывает отчёт из очереди сверки. counted=true — оператор
// убедился, что инкремент квоты прошёл, и отчёт просто принимается;
// иначе допуск к квоте повторяется.
func (r *Recorder) Reconcile(ctx context.Context, submissionID string, counted bool) (Result, error) {
	resp, err := r.store.Get(ctx, submissionID)
	if err != nil {
		return Result{}, err
	}
	if resp.Status != submissions.StatusUnreconciled {
		return Result{}, fmt.Errorf("submission %s is %s: %w", submissionID, resp.Status, submissions.ErrAlreadyFinalized)
	}

	if counted {
		if err := r.withRetry(ctx, "accept", func(ctx context.Context) error {
			return r.store.Accept(ctx, resp.ID)
		}); err != nil {
			return Result{}, err
		}
		r.log.Info("submission reconciled as counted", "submission_id", resp.ID)
		return Result{Accepted: true, SubmissionID: resp.ID}, nil
	}

	var res quota.AdmitResult
	if err := r.withRetry(ctx, "admit", func(ctx context.Context) error {
		var err error
		res, err = r.tracker.RecordCompletion(ctx, resp.RouteID, resp.QuestionnaireID, resp.UserID, resp.ID)
		return err
	}); err != nil {
		return Result{}, err
	}
	persistCtx := context.WithoutCancel(ctx)
	if res.Admitted {
		if err := r.withRetry(persistCtx, "accept", func(ctx context.Context) error {
			return r.store.Accept(ctx, resp.ID)
		}); err != nil {
			r.log.Error("reconciled admission not accepted", "submission_id", resp.ID, "err", err)
			return Result{}, fmt.Errorf("submission %s: %w: %w", resp.ID, ErrInconsistentState, err)
		}
		r.log.Info("submission reconciled", "submission_id", resp.ID, "accepted", true)
		return Result{Accepted: true, SubmissionID: resp.ID, Remaining: res.Quota.Remaining()}, nil
	}

	reason := ReasonFull
	if !res.Quota.Active {
		reason = ReasonInactive
	}
	if err := r.withRetry(persistCtx, "reject", func(ctx context.Context) error {
		return r.store.Reject(ctx, resp.ID, string(reason))
	}); err != nil {
		return Result{}, err
	}
	r.log.Info("submission reconciled", "submission_id", resp.ID, "accepted", false, "reason", reason)
	return Result{Accepted: false, Reason: reason, SubmissionID: resp.ID}, nil
}
