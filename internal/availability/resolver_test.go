package availability

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Spok95/route-survey/internal/domain/catalog"
	"github.com/Spok95/route-survey/internal/domain/rules"
	"github.com/Spok95/route-survey/internal/domain/submissions"
)

const qid = "cycling-2025"

type preview map[string]bool

func (p preview) FullnessPreview(context.Context, string) (map[string]bool, error) { return p, nil }

type brokenPreview struct{}

func (brokenPreview) FullnessPreview(context.Context, string) (map[string]bool, error) {
	return nil, errors.New("connection refused")
}

type history map[string]int

func (h history) History(context.Context, string, string) (submissions.History, error) {
	out := submissions.History{}
	for route, n := range h {
		out[route] = submissions.RouteHistory{Count: n}
	}
	return out, nil
}

var routes = []catalog.Route{
	{ID: "r1", Name: "One", Category: "main-loop"},
	{ID: "r2", Name: "Two", Category: "main-loop"},
	{ID: "r3", Name: "Three", Category: "diverse"},
	{ID: "r4", Name: "Four", Category: "alternate"},
}

func rule(id string, typ rules.Type, e rules.Enforcement, limit int) rules.Rule {
	return rules.Rule{
		ID:           id,
		Type:         typ,
		Enforcement:  e,
		Config:       rules.Config{MaxSubmissionsPerRoute: limit},
		ErrorMessage: id,
		IsActive:     true,
	}
}

func newResolver(t *testing.T, rs []rules.Rule, p QuotaPreview, h HistorySource) *Resolver {
	t.Helper()
	cat, err := catalog.NewStatic(catalog.Questionnaire{ID: qid, Routes: routes, Rules: rs})
	require.NoError(t, err)
	return NewResolver(cat, p, h, nil)
}

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Route.ID)
	}
	return out
}

func TestResolve_BlockedAfterSubmission(t *testing.T) {
	r := newResolver(t,
		[]rules.Rule{rule("once", rules.TypeSubmissionLimit, rules.EnforceBlock, 1)},
		preview{}, history{"r1": 1})

	av, err := r.Resolve(context.Background(), "u1", qid, routes)
	require.NoError(t, err)
	require.Equal(t, []string{"r1"}, ids(av.Restricted))
	require.Equal(t, "once", av.Restricted[0].Message)
	require.ElementsMatch(t, []string{"r2", "r3", "r4"}, ids(av.Available))
	require.Empty(t, av.Warnings)
	require.Empty(t, av.Hidden)
}

func TestResolve_HideBeatsWarn(t *testing.T) {
	r := newResolver(t, []rules.Rule{
		rule("soft", rules.TypeSubmissionLimit, rules.EnforceWarn, 1),
		rule("hide", rules.TypeSubmissionLimit, rules.EnforceHide, 1),
	}, preview{}, history{"r2": 1})

	av, err := r.Resolve(context.Background(), "u1", qid, routes)
	require.NoError(t, err)
	require.Equal(t, []string{"r2"}, ids(av.Hidden))
	require.NotContains(t, ids(av.Warnings), "r2")
}

func TestResolve_QuotaFullRouting(t *testing.T) {
	cases := []struct {
		name  string
		rules []rules.Rule
		want  Bucket
	}{
		{"no rule warns", nil, BucketWarnings},
		{"hide rule hides", []rules.Rule{rule("q", rules.TypeQuotaLimit, rules.EnforceHide, 0)}, BucketHidden},
		{"block rule restricts", []rules.Rule{rule("q", rules.TypeQuotaLimit, rules.EnforceBlock, 0)}, BucketRestricted},
		{"warn rule warns", []rules.Rule{rule("q", rules.TypeQuotaLimit, rules.EnforceWarn, 0)}, BucketWarnings},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newResolver(t, tc.rules, preview{"r3": true}, history{})
			av, err := r.Resolve(context.Background(), "u1", qid, routes)
			require.NoError(t, err)

			got := map[Bucket][]string{
				BucketAvailable:  ids(av.Available),
				BucketWarnings:   ids(av.Warnings),
				BucketRestricted: ids(av.Restricted),
				BucketHidden:     ids(av.Hidden),
			}
			require.Equal(t, []string{"r3"}, got[tc.want])
			require.Len(t, av.Available, 3)
		})
	}
}

func TestResolve_PartitionProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	enforcements := []rules.Enforcement{rules.EnforceBlock, rules.EnforceWarn, rules.EnforceHide}

	for i := 0; i < 200; i++ {
		var rs []rules.Rule
		n := rnd.Intn(4)
		for j := 0; j < n; j++ {
			typ := rules.TypeSubmissionLimit
			if rnd.Intn(2) == 0 {
				typ = rules.TypeQuotaLimit
			}
			rs = append(rs, rule(fmt.Sprintf("r%d", j), typ, enforcements[rnd.Intn(3)], 1+rnd.Intn(2)))
		}
		p, h := preview{}, history{}
		for _, route := range routes {
			p[route.ID] = rnd.Intn(2) == 0
			h[route.ID] = rnd.Intn(3)
		}

		av, err := newResolver(t, rs, p, h).Resolve(context.Background(), "u", qid, routes)
		require.NoError(t, err)

		seen := map[string]int{}
		for _, list := range [][]Item{av.Available, av.Warnings, av.Restricted, av.Hidden} {
			for _, it := range list {
				seen[it.Route.ID]++
			}
		}
		require.Len(t, seen, len(routes))
		for _, route := range routes {
			require.Equal(t, 1, seen[route.ID], "route %s in iteration %d", route.ID, i)
		}
	}
}

func TestResolve_DuplicateCandidates(t *testing.T) {
	r := newResolver(t, nil, preview{}, history{})
	av, err := r.Resolve(context.Background(), "u", qid, []catalog.Route{routes[0], routes[0], routes[1]})
	require.NoError(t, err)
	require.Equal(t, []string{"r1", "r2"}, ids(av.Available))
}

func TestResolve_PreviewFailureIsNotFatal(t *testing.T) {
	r := newResolver(t, nil, brokenPreview{}, history{})
	av, err := r.Resolve(context.Background(), "u", qid, routes)
	require.NoError(t, err)
	require.Len(t, av.Available, len(routes))
}

func TestResolve_EmptyListsAreNotNil(t *testing.T) {
	r := newResolver(t, nil, preview{}, history{})
	av, err := r.Resolve(context.Background(), "u", qid, nil)
	require.NoError(t, err)
	require.NotNil(t, av.Available)
	require.NotNil(t, av.Warnings)
	require.NotNil(t, av.Restricted)
	require.NotNil(t, av.Hidden)
}

func TestRecheck_IgnoresFullnessPreview(t *testing.T) {
	r := newResolver(t,
		[]rules.Rule{
			rule("q", rules.TypeQuotaLimit, rules.EnforceHide, 0),
			rule("once", rules.TypeSubmissionLimit, rules.EnforceBlock, 1),
		},
		preview{"r1": true, "r2": true}, history{"r2": 1})

	b, _, err := r.Recheck(context.Background(), "u", qid, routes[0])
	require.NoError(t, err)
	require.Equal(t, BucketAvailable, b)

	b, it, err := r.Recheck(context.Background(), "u", qid, routes[1])
	require.NoError(t, err)
	require.Equal(t, BucketRestricted, b)
	require.Equal(t, "once", it.Message)
}

func TestClassify(t *testing.T) {
	require.Equal(t, BucketAvailable, Classify(rules.Decision{}, false))
	require.Equal(t, BucketWarnings, Classify(rules.Decision{}, true))
	require.Equal(t, BucketWarnings, Classify(rules.Decision{Outcome: rules.OutcomeWarn}, false))
	require.Equal(t, BucketHidden, Classify(rules.Decision{Outcome: rules.OutcomeHide}, true))
	require.Equal(t, BucketRestricted, Classify(rules.Decision{Outcome: rules.OutcomeBlock}, true))
}
