package submissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*Repo)(nil)

const responseColumns = `id, user_id, questionnaire_id, route_id, payload, status, reason, created_at, updated_at`

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResponse(row scanner) (Response, error) {
	var (
		r      Response
		id     uuid.UUID
		status string
	)
	if err := row.Scan(&id, &r.UserID, &r.QuestionnaireID, &r.RouteID, &r.Payload,
		&status, &r.Reason, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Response{}, err
	}
	r.ID = id.String()
	r.Status = Status(status)
	return r, nil
}

func (r *Repo) CreatePending(ctx context.Context, resp Response) (Response, error) {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	payload := resp.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO survey_responses (id, user_id, questionnaire_id, route_id, payload, status)
		VALUES ($1,$2,$3,$4,$5,'pending')
		RETURNING `+responseColumns,
		resp.ID, resp.UserID, resp.QuestionnaireID, resp.RouteID, []byte(payload))
	out, err := scanResponse(row)
	if err != nil {
		return Response{}, unavailable("create response", err)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Response, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return Response{}, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+responseColumns+` FROM survey_responses WHERE id = $1`, rid)
	out, err := scanResponse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Response{}, ErrNotFound
	}
	if err != nil {
		return Response{}, unavailable("get response", err)
	}
	return out, nil
}

// transition меняет статус только из разрешённых исходных состояний.
func (r *Repo) transition(ctx context.Context, tx pgx.Tx, id string, to Status, reason string, from ...Status) (Response, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return Response{}, ErrNotFound
	}
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	row := tx.QueryRow(ctx, `
		UPDATE survey_responses
		SET status = $2, reason = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+responseColumns,
		rid, string(to), reason, allowed)
	out, err := scanResponse(row)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Response{}, unavailable("update response", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM survey_responses WHERE id = $1)`, rid).Scan(&exists); err != nil {
		return Response{}, unavailable("check response", err)
	}
	if !exists {
		return Response{}, ErrNotFound
	}
	return Response{}, ErrAlreadyFinalized
}

func (r *Repo) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (r *Repo) Accept(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		resp, err := r.transition(ctx, tx, id, StatusAccepted, "", StatusPending, StatusUnreconciled)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_route_submissions (user_id, questionnaire_id, route_id, submission_count, last_submitted_at)
			VALUES ($1,$2,$3,1,now())
			ON CONFLICT (user_id, questionnaire_id, route_id)
			DO UPDATE SET submission_count  = user_route_submissions.submission_count + 1,
			              last_submitted_at = now()
		`, resp.UserID, resp.QuestionnaireID, resp.RouteID); err != nil {
			return unavailable("append history", err)
		}
		return nil
	})
}

func (r *Repo) Reject(ctx context.Context, id, reason string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := r.transition(ctx, tx, id, StatusRejected, reason, StatusPending, StatusUnreconciled)
		return err
	})
}

func (r *Repo) MarkUnreconciled(ctx context.Context, id, reason string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := r.transition(ctx, tx, id, StatusUnreconciled, reason, StatusPending)
		return err
	})
}

func (r *Repo) History(ctx context.Context, userID, questionnaireID string) (History, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT route_id, submission_count, last_submitted_at
		FROM user_route_submissions
		WHERE user_id = $1 AND questionnaire_id = $2
	`, userID, questionnaireID)
	if err != nil {
		return nil, unavailable("load history", err)
	}
	defer rows.Close()

	h := History{}
	for rows.Next() {
		var (
			routeID string
			rh      RouteHistory
		)
		if err := rows.Scan(&routeID, &rh.Count, &rh.LastSubmittedAt); err != nil {
			return nil, unavailable("scan history", err)
		}
		h[routeID] = rh
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load history", err)
	}
	return h, nil
}

func (r *Repo) ListByStatus(ctx context.Context, status Status, questionnaireID string) ([]Response, error) {
	q := `SELECT ` + responseColumns + ` FROM survey_responses WHERE status = $1`
	args := []any{string(status)}
	if questionnaireID != "" {
		q += ` AND questionnaire_id = $2`
		args = append(args, questionnaireID)
	}
	q += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable("list responses", err)
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, unavailable("scan response", err)
		}
		out = append(out, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list responses", err)
	}
	return out, nil
}
