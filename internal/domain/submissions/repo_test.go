package submissions_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/route-survey/internal/domain/submissions"
	"github.com/Spok95/route-survey/internal/infra/db"
	"github.com/Spok95/route-survey/migrations"
)

// Интеграционные тесты на живом Postgres, только при APP_TEST_POSTGRES_DSN.
func newRepo(t *testing.T) *submissions.Repo {
	t.Helper()
	dsn := os.Getenv("APP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("APP_TEST_POSTGRES_DSN is not set")
	}
	require.NoError(t, db.Migrate(dsn, migrations.FS))
	pool, err := db.Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return submissions.NewRepo(pool)
}

func createPending(t *testing.T, r *submissions.Repo, user, qid, route string) submissions.Response {
	t.Helper()
	resp, err := r.CreatePending(context.Background(), submissions.Response{
		UserID:          user,
		QuestionnaireID: qid,
		RouteID:         route,
		Payload:         []byte(`{"rating":5}`),
	})
	require.NoError(t, err)
	require.Equal(t, submissions.StatusPending, resp.Status)
	return resp
}

func TestRepo_AcceptAppendsHistory(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	qid := "it-" + uuid.NewString()
	user := "u-" + uuid.NewString()

	first := createPending(t, r, user, qid, "ring-north")
	h, err := r.History(ctx, user, qid)
	require.NoError(t, err)
	require.Equal(t, 0, h.Count("ring-north"))

	require.NoError(t, r.Accept(ctx, first.ID))
	require.NoError(t, r.Accept(ctx, createPending(t, r, user, qid, "ring-north").ID))

	h, err = r.History(ctx, user, qid)
	require.NoError(t, err)
	require.Equal(t, 2, h.Count("ring-north"))
	require.False(t, h["ring-north"].LastSubmittedAt.IsZero())

	got, err := r.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, submissions.StatusAccepted, got.Status)
	require.JSONEq(t, `{"rating":5}`, string(got.Payload))
}

func TestRepo_RejectLeavesHistory(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	qid := "it-" + uuid.NewString()
	user := "u-" + uuid.NewString()

	resp := createPending(t, r, user, qid, "ring-north")
	require.NoError(t, r.Reject(ctx, resp.ID, "full"))

	got, err := r.Get(ctx, resp.ID)
	require.NoError(t, err)
	require.Equal(t, submissions.StatusRejected, got.Status)
	require.Equal(t, "full", got.Reason)

	h, err := r.History(ctx, user, qid)
	require.NoError(t, err)
	require.Equal(t, 0, h.Count("ring-north"))
}

func TestRepo_FinalStatesAreFinal(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	qid := "it-" + uuid.NewString()
	user := "u-" + uuid.NewString()

	resp := createPending(t, r, user, qid, "ring-north")
	require.NoError(t, r.Accept(ctx, resp.ID))

	require.ErrorIs(t, r.Accept(ctx, resp.ID), submissions.ErrAlreadyFinalized)
	require.ErrorIs(t, r.Reject(ctx, resp.ID, "full"), submissions.ErrAlreadyFinalized)
	require.ErrorIs(t, r.MarkUnreconciled(ctx, resp.ID, "x"), submissions.ErrAlreadyFinalized)

	// повторный Accept не должен был задеть счётчик
	h, err := r.History(ctx, user, qid)
	require.NoError(t, err)
	require.Equal(t, 1, h.Count("ring-north"))

	require.ErrorIs(t, r.Accept(ctx, uuid.NewString()), submissions.ErrNotFound)
	require.ErrorIs(t, r.Accept(ctx, "not-a-uuid"), submissions.ErrNotFound)
}

func TestRepo_UnreconciledQueue(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	qid := "it-" + uuid.NewString()
	user := "u-" + uuid.NewString()

	accepted := createPending(t, r, user, qid, "ring-north")
	rejected := createPending(t, r, user, qid, "old-town")
	require.NoError(t, r.MarkUnreconciled(ctx, accepted.ID, "admission unresolved"))
	require.NoError(t, r.MarkUnreconciled(ctx, rejected.ID, "admission unresolved"))
	require.ErrorIs(t, r.MarkUnreconciled(ctx, accepted.ID, "again"), submissions.ErrAlreadyFinalized)

	list, err := r.ListByStatus(ctx, submissions.StatusUnreconciled, qid)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.ElementsMatch(t, []string{accepted.ID, rejected.ID}, []string{list[0].ID, list[1].ID})
	require.Equal(t, "admission unresolved", list[0].Reason)

	require.NoError(t, r.Accept(ctx, accepted.ID))
	require.NoError(t, r.Reject(ctx, rejected.ID, "full"))

	list, err = r.ListByStatus(ctx, submissions.StatusUnreconciled, qid)
	require.NoError(t, err)
	require.Empty(t, list)

	h, err := r.History(ctx, user, qid)
	require.NoError(t, err)
	require.Equal(t, 1, h.Count("ring-north"))
	require.Equal(t, 0, h.Count("old-town"))
}
