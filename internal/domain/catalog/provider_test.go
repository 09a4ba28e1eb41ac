package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Spok95/route-survey/internal/domain/rules"
)

const definitions = `
questionnaires:
  - id: cycling-2025
    title: Test
    routes:
      - { id: ring-north, name: North, category: main-loop }
      - { id: old-town, name: Old town, category: diverse }
    rules:
      - id: one-per-route
        type: submission-limit
        enforcement: block
        config: { maxSubmissionsPerRoute: 1 }
        errorMessage: already sent
        isActive: true
      - id: disabled
        type: quota-limit
        enforcement: hide
        isActive: false
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "surveys.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFile(t *testing.T) {
	s, err := LoadFile(writeFile(t, definitions))
	require.NoError(t, err)

	q, err := s.Questionnaire(context.Background(), "cycling-2025")
	require.NoError(t, err)
	require.Len(t, q.Routes, 2)

	r, ok := q.Route("old-town")
	require.True(t, ok)
	require.Equal(t, "diverse", r.Category)

	active := q.ActiveRules()
	require.Len(t, active, 1)
	require.Equal(t, rules.TypeSubmissionLimit, active[0].Type)
	require.Equal(t, rules.EnforceBlock, active[0].Enforcement)
	require.Equal(t, 1, active[0].Config.MaxSubmissionsPerRoute)
	require.Equal(t, "already sent", active[0].ErrorMessage)
}

func TestLoadFile_ShippedDefinitions(t *testing.T) {
	s, err := LoadFile(filepath.Join("..", "..", "..", "config", "surveys.yaml"))
	require.NoError(t, err)
	qs, err := s.Questionnaires(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, qs)
}

func TestLoadFile_RejectsBadRule(t *testing.T) {
	_, err := LoadFile(writeFile(t, `
questionnaires:
  - id: q
    routes: [{ id: r, category: diverse }]
    rules:
      - { id: bad, type: submission-limit, enforcement: block, isActive: true }
`))
	require.Error(t, err)
}

func TestNewStatic_Validation(t *testing.T) {
	_, err := NewStatic(Questionnaire{ID: "q", Routes: []Route{{ID: "a"}, {ID: "a"}}})
	require.Error(t, err)

	_, err = NewStatic(Questionnaire{ID: "q"}, Questionnaire{ID: "q"})
	require.Error(t, err)

	s, err := NewStatic(Questionnaire{ID: "q"})
	require.NoError(t, err)
	_, err = s.Questionnaire(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownQuestionnaire)
}
