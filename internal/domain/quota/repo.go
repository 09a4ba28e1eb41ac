package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*Repo)(nil)

const quotaColumns = `route_id, questionnaire_id, category, quota_limit, current_count, active,
	last_updated, total_submissions, unique_users_approx`

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuota(row scanner) (RouteQuota, error) {
	var q RouteQuota
	err := row.Scan(
		&q.RouteID,
		&q.QuestionnaireID,
		&q.Category,
		&q.Limit,
		&q.CurrentCount,
		&q.Active,
		&q.LastUpdated,
		&q.Metadata.TotalSubmissions,
		&q.Metadata.UniqueUsersApprox,
	)
	return q, err
}

func (r *Repo) Get(ctx context.Context, key Key) (RouteQuota, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+quotaColumns+`
		FROM route_quotas
		WHERE route_id = $1 AND questionnaire_id = $2
	`, key.RouteID, key.QuestionnaireID)
	q, err := scanQuota(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RouteQuota{}, ErrQuotaNotFound
	}
	if err != nil {
		return RouteQuota{}, unavailable("get quota", err)
	}
	return q, nil
}

// GetOrCreate создаёт запись с лимитом категории, если её ещё нет.
// При гонке двух создателей ON CONFLICT DO NOTHING оставляет первую запись.
func (r *Repo) GetOrCreate(ctx context.Context, key Key, category string, defaultLimit int) (RouteQuota, error) {
	q, err := r.Get(ctx, key)
	if err == nil || !errors.Is(err, ErrQuotaNotFound) {
		return q, err
	}
	if defaultLimit < 0 {
		defaultLimit = 0
	}

	if _, err := r.pool.Exec(ctx, `
		INSERT INTO route_quotas (route_id, questionnaire_id, category, quota_limit, current_count, active)
		VALUES ($1,$2,$3,$4,0,TRUE)
		ON CONFLICT (questionnaire_id, route_id) DO NOTHING
	`, key.RouteID, key.QuestionnaireID, category, defaultLimit); err != nil {
		return RouteQuota{}, unavailable("create quota", err)
	}
	return r.Get(ctx, key)
}

// TryAdmitAndIncrement — условный UPDATE: строка блокируется, конкурентные
// писатели ждут и заново проверяют WHERE, поэтому переполнить лимит нельзя.
// Отметка в quota_admissions пишется в той же транзакции: если ответ на
// COMMIT потерялся, повтор с тем же admissionID второй слот не займёт.
func (r *Repo) TryAdmitAndIncrement(ctx context.Context, key Key, admissionID string) (AdmitResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return AdmitResult{}, unavailable("begin admit", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if admissionID != "" {
		tag, err := tx.Exec(ctx, `
			INSERT INTO quota_admissions (submission_id, questionnaire_id, route_id)
			SELECT $1, questionnaire_id, route_id
			FROM route_quotas
			WHERE route_id = $2 AND questionnaire_id = $3
			ON CONFLICT (submission_id) DO NOTHING
		`, admissionID, key.RouteID, key.QuestionnaireID)
		if err != nil {
			return AdmitResult{}, unavailable("mark admission", err)
		}
		if tag.RowsAffected() == 0 {
			return r.repeatedAdmission(ctx, key, admissionID)
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE route_quotas
		SET current_count = current_count + 1,
		    last_updated  = now()
		WHERE route_id = $1 AND questionnaire_id = $2
		  AND active = TRUE
		  AND current_count < quota_limit
		RETURNING `+quotaColumns,
		key.RouteID, key.QuestionnaireID)

	q, err := scanQuota(row)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return AdmitResult{}, unavailable("commit admit", err)
		}
		return AdmitResult{Admitted: true, Quota: q}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return AdmitResult{}, unavailable("admit", err)
	}
	// отметка о допуске откатывается вместе с транзакцией
	_ = tx.Rollback(ctx)

	// либо квоты нет, либо она заполнена/выключена
	q, err = r.Get(ctx, key)
	if err != nil {
		return AdmitResult{}, err
	}
	return AdmitResult{Admitted: false, Quota: q}, nil
}

// repeatedAdmission различает два случая пустого INSERT: отметка уже есть
// (повтор) или самой квоты нет.
func (r *Repo) repeatedAdmission(ctx context.Context, key Key, admissionID string) (AdmitResult, error) {
	q, err := r.Get(ctx, key)
	if err != nil {
		return AdmitResult{}, err
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM quota_admissions
			WHERE submission_id = $1 AND route_id = $2 AND questionnaire_id = $3
		)
	`, admissionID, key.RouteID, key.QuestionnaireID).Scan(&exists); err != nil {
		return AdmitResult{}, unavailable("check admission", err)
	}
	if !exists {
		return AdmitResult{}, fmt.Errorf("admission %s already used outside %s", admissionID, key)
	}
	return AdmitResult{Admitted: true, Repeated: true, Quota: q}, nil
}

func (r *Repo) IncrementMetadata(ctx context.Context, key Key) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE route_quotas
		SET total_submissions   = total_submissions + 1,
		    unique_users_approx = unique_users_approx + 1
		WHERE route_id = $1 AND questionnaire_id = $2
	`, key.RouteID, key.QuestionnaireID)
	if err != nil {
		return unavailable("increment metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

// AdminSet применяет все поля одним UPDATE, читатели не увидят половину правки.
func (r *Repo) AdminSet(ctx context.Context, key Key, patch Patch) (RouteQuota, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE route_quotas
		SET quota_limit   = COALESCE($3::int, quota_limit),
		    current_count = COALESCE($4::int, current_count),
		    active        = COALESCE($5::boolean, active),
		    last_updated  = now()
		WHERE route_id = $1 AND questionnaire_id = $2
		RETURNING `+quotaColumns,
		key.RouteID, key.QuestionnaireID, patch.Limit, patch.CurrentCount, patch.Active)

	q, err := scanQuota(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RouteQuota{}, ErrQuotaNotFound
	}
	if err != nil {
		return RouteQuota{}, unavailable("admin set quota", err)
	}
	return q, nil
}

func (r *Repo) Delete(ctx context.Context, key Key) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM route_quotas WHERE route_id = $1 AND questionnaire_id = $2`,
		key.RouteID, key.QuestionnaireID)
	if err != nil {
		return unavailable("delete quota", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

func (r *Repo) ListAll(ctx context.Context, f Filter) ([]RouteQuota, error) {
	var (
		where []string
		args  []any
	)
	if f.QuestionnaireID != "" {
		args = append(args, f.QuestionnaireID)
		where = append(where, fmt.Sprintf("questionnaire_id = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}

	q := `SELECT ` + quotaColumns + ` FROM route_quotas`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY questionnaire_id, category, route_id"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable("list quotas", err)
	}
	defer rows.Close()

	var out []RouteQuota
	for rows.Next() {
		rq, err := scanQuota(rows)
		if err != nil {
			return nil, unavailable("scan quota", err)
		}
		out = append(out, rq)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list quotas", err)
	}
	return out, nil
}
