package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Spok95/route-survey/internal/admin"
	"github.com/Spok95/route-survey/internal/domain/catalog"
	"github.com/Spok95/route-survey/internal/domain/quota"
	"github.com/Spok95/route-survey/internal/domain/submissions"
	"github.com/Spok95/route-survey/internal/recorder"
	"github.com/Spok95/route-survey/internal/survey"
)

const (
	maxPayloadBytes = 1 << 20
	maxImportBytes  = 10 << 20
)

type API struct {
	survey     *survey.Service
	admin      *admin.Manager
	adminToken string
	log        *slog.Logger
}

func NewAPI(svc *survey.Service, adm *admin.Manager, adminToken string, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{survey: svc, admin: adm, adminToken: adminToken, log: log}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /questionnaires/{qid}/availability", a.handleAvailability)
	mux.HandleFunc("POST /questionnaires/{qid}/routes/{rid}/submissions", a.handleSubmit)
	mux.HandleFunc("GET /questionnaires/{qid}/quota-summary", a.handleSummary)

	mux.HandleFunc("GET /admin/quotas", a.requireAdmin(a.handleListQuotas))
	mux.HandleFunc("POST /admin/quotas/import", a.requireAdmin(a.handleImport))
	mux.HandleFunc("POST /admin/questionnaires/{qid}/routes/{rid}/quota/reset", a.requireAdmin(a.handleReset))
	mux.HandleFunc("PUT /admin/questionnaires/{qid}/routes/{rid}/quota/limit", a.requireAdmin(a.handleSetLimit))
	mux.HandleFunc("PUT /admin/questionnaires/{qid}/routes/{rid}/quota/active", a.requireAdmin(a.handleSetActive))
	mux.HandleFunc("DELETE /admin/questionnaires/{qid}/routes/{rid}/quota", a.requireAdmin(a.handleDelete))
	mux.HandleFunc("GET /admin/submissions/unreconciled", a.requireAdmin(a.handleUnreconciled))
	mux.HandleFunc("POST /admin/submissions/{id}/reconcile", a.requireAdmin(a.handleReconcile))
}

// fail переводит доменную ошибку в HTTP-статус.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, survey.ErrNoUser):
		status = http.StatusUnauthorized
	case errors.Is(err, survey.ErrBadRequest),
		errors.Is(err, admin.ErrInvalidLimit),
		errors.Is(err, admin.ErrBadSheet):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnknownQuestionnaire),
		errors.Is(err, catalog.ErrUnknownRoute),
		errors.Is(err, submissions.ErrNotFound),
		errors.Is(err, quota.ErrQuotaNotFound):
		status = http.StatusNotFound
	case errors.Is(err, submissions.ErrAlreadyFinalized):
		status = http.StatusConflict
	case errors.Is(err, recorder.ErrInconsistentState):
		a.log.Error("request left submission unreconciled", "path", r.URL.Path, "err", err)
		a.errorJSON(w, http.StatusInternalServerError, "Отчёт сохранён, но не засчитан. Он будет проверен вручную.")
		return
	case errors.Is(err, quota.ErrStorageUnavailable),
		errors.Is(err, submissions.ErrStorageUnavailable):
		a.log.Error("storage unavailable", "path", r.URL.Path, "err", err)
		a.errorJSON(w, http.StatusServiceUnavailable, "Сервис временно недоступен, попробуйте позже.")
		return
	default:
		a.log.Error("request failed", "path", r.URL.Path, "err", err)
		a.errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.errorJSON(w, status, err.Error())
}

func (a *API) handleAvailability(w http.ResponseWriter, r *http.Request) {
	av, err := a.survey.GetRouteAvailability(r.Context(), r.Header.Get(headerUserID), r.PathValue("qid"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, av)
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.errorJSON(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		a.errorJSON(w, http.StatusBadRequest, "cannot read request body")
		return
	}
	res, err := a.survey.SubmitRouteCompletion(r.Context(),
		r.Header.Get(headerUserID), r.PathValue("qid"), r.PathValue("rid"), json.RawMessage(body))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	switch res.Reason {
	case recorder.ReasonFull, recorder.ReasonInactive:
		status = http.StatusConflict
	case recorder.ReasonBlocked, recorder.ReasonHidden:
		status = http.StatusForbidden
	}
	a.writeJSON(w, status, res)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.survey.GetCategoryQuotaSummary(r.Context(), r.PathValue("qid"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sum)
}

func pathKey(r *http.Request) quota.Key {
	return quota.Key{RouteID: r.PathValue("rid"), QuestionnaireID: r.PathValue("qid")}
}

func (a *API) handleListQuotas(w http.ResponseWriter, r *http.Request) {
	f := quota.Filter{
		QuestionnaireID: r.URL.Query().Get("questionnaire"),
		Category:        r.URL.Query().Get("category"),
	}
	switch r.URL.Query().Get("active") {
	case "true":
		v := true
		f.Active = &v
	case "false":
		v := false
		f.Active = &v
	}
	qs, err := a.admin.ListQuotas(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if qs == nil {
		qs = []quota.RouteQuota{}
	}
	a.writeJSON(w, http.StatusOK, qs)
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	q, err := a.admin.ResetQuota(r.Context(), pathKey(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, q)
}

func (a *API) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit *int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Limit == nil {
		a.errorJSON(w, http.StatusBadRequest, `body must be {"limit": <int>}`)
		return
	}
	q, err := a.admin.SetLimit(r.Context(), pathKey(r), *req.Limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, q)
}

func (a *API) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		a.errorJSON(w, http.StatusBadRequest, `body must be {"active": <bool>}`)
		return
	}
	q, err := a.admin.SetActive(r.Context(), pathKey(r), *req.Active)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, q)
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.DeleteQuota(r.Context(), pathKey(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	rep, err := a.admin.ImportLimits(r.Context(), http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rep)
}

func (a *API) handleUnreconciled(w http.ResponseWriter, r *http.Request) {
	list, err := a.admin.ListUnreconciled(r.Context(), r.URL.Query().Get("questionnaire"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []submissions.Response{}
	}
	a.writeJSON(w, http.StatusOK, list)
}

func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Counted bool `json:"counted"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.errorJSON(w, http.StatusBadRequest, `body must be {"counted": <bool>}`)
			return
		}
	}
	res, err := a.admin.Reconcile(r.Context(), r.PathValue("id"), req.Counted)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}
