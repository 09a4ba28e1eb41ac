package survey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Spok95/route-survey/internal/availability"
	"github.com/Spok95/route-survey/internal/domain/catalog"
	"github.com/Spok95/route-survey/internal/recorder"
	"github.com/Spok95/route-survey/internal/tracker"
)

type Resolver interface {
	Resolve(ctx context.Context, userID, questionnaireID string, candidates []catalog.Route) (availability.Availability, error)
}

type Submitter interface {
	Submit(ctx context.Context, userID, questionnaireID, routeID string, payload json.RawMessage) (recorder.Result, error)
}

type Summarizer interface {
	Summary(ctx context.Context, questionnaireID string) ([]tracker.CategorySummary, error)
}

// Service отдаёт потребителям доступность маршрутов, приём отчётов и сводку по квотам.
type Service struct {
	catalog  catalog.Provider
	resolver Resolver
	recorder Submitter
	tracker  Summarizer
}

func NewService(cat catalog.Provider, res Resolver, rec Submitter, tr Summarizer) *Service {
	return &Service{catalog: cat, resolver: res, recorder: rec, tracker: tr}
}

func (s *Service) GetRouteAvailability(ctx context.Context, userID, questionnaireID string) (availability.Availability, error) {
	if err := requireUser(userID); err != nil {
		return availability.Availability{}, err
	}
	q, err := s.catalog.Questionnaire(ctx, questionnaireID)
	if err != nil {
		return availability.Availability{}, err
	}
	return s.resolver.Resolve(ctx, userID, questionnaireID, q.Routes)
}

func (s *Service) SubmitRouteCompletion(ctx context.Context, userID, questionnaireID, routeID string, payload json.RawMessage) (recorder.Result, error) {
	if err := requireUser(userID); err != nil {
		return recorder.Result{}, err
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return recorder.Result{}, fmt.Errorf("%w: payload is not valid JSON", ErrBadRequest)
	}
	return s.recorder.Submit(ctx, userID, questionnaireID, routeID, payload)
}

func (s *Service) GetCategoryQuotaSummary(ctx context.Context, questionnaireID string) ([]tracker.CategorySummary, error) {
	return s.tracker.Summary(ctx, questionnaireID)
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrNoUser
	}
	return nil
}
