package pager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mixpanel/action-destinations-sub001/internal/action"
	"github.com/mixpanel/action-destinations-sub001/internal/destination"
	"github.com/mixpanel/action-destinations-sub001/internal/mapping"
	"github.com/mixpanel/action-destinations-sub001/internal/schema"
)

// fakePartner is a minimal pager API: team lookup, alert creation, channel
// listing.
type fakePartner struct {
	mu          sync.Mutex
	teamLookups int
	alerts      []map[string]any
	auth        []string
}

func (f *fakePartner) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/teams", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.teamLookups++
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"teams": []map[string]any{
				{"id": "T-42", "name": r.URL.Query().Get("name")},
			},
		})
	})
	mux.HandleFunc("POST /v2/alerts", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.alerts = append(f.alerts, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"status": "created"})
	})
	mux.HandleFunc("GET /v2/channels", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"channels": []map[string]any{
				{"id": "C-1", "name": "ops"},
				{"id": "C-2", "name": "oncall"},
			},
		}
		if r.URL.Query().Get("page") == "" {
			resp["next_page"] = "2"
		}
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newPagerAgainst(t *testing.T, url string) *destination.Destination {
	t.Helper()
	reg := mapping.NewRegistry()
	reg.Freeze()
	dest, err := NewWithBaseURL(mapping.NewEvaluator(reg), url)
	require.NoError(t, err)
	return dest
}

func pagerSettings() map[string]any {
	return map[string]any{"apiKey": "secret-key", "team": "platform"}
}

func TestAlert_FanOutOverChannels(t *testing.T) {
	partner := &fakePartner{}
	srv := httptest.NewServer(partner.handler())
	defer srv.Close()

	dest := newPagerAgainst(t, srv.URL)
	require.NoError(t, dest.SetSubscriptions([]destination.Subscription{
		{
			Name:          "alert on errors",
			Subscribe:     map[string]any{"type": "track", "event": "Error Raised"},
			PartnerAction: "alert",
			Mapping: map[string]any{
				"title":      map[string]any{"@template": "{{properties.service}} raised an error"},
				"severity":   map[string]any{"@field": "properties.severity"},
				"occurredAt": map[string]any{"@field": "timestamp"},
				"channels":   map[string]any{"@field": "properties.channels"},
			},
		},
	}))

	event := map[string]any{
		"type":      "track",
		"event":     "Error Raised",
		"userId":    "u-1",
		"timestamp": float64(1717237800),
		"properties": map[string]any{
			"service":  "billing",
			"severity": "critical",
			"channels": []any{"C-1", "C-2"},
		},
	}

	results, err := dest.OnEvent(context.Background(), event, pagerSettings())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, destination.StatusSuccess, results[0].Status)
	require.Len(t, results[0].Branches, 2)
	require.Equal(t, "C-1", results[0].Branches[0].Element)
	require.Equal(t, "C-2", results[0].Branches[1].Element)
	require.Equal(t, 201, results[0].Branches[0].StatusCode)

	require.Len(t, partner.alerts, 2)
	for _, alert := range partner.alerts {
		require.Equal(t, "billing raised an error", alert["title"])
		require.Equal(t, "critical", alert["severity"])
		require.Equal(t, "T-42", alert["team_id"])
		require.Equal(t, "2024-06-01T10:30:00Z", alert["occurred_at"])
	}

	// Both branches share one team lookup, carrying the API key.
	require.Equal(t, 1, partner.teamLookups)
	require.Equal(t, "Bearer secret-key", partner.auth[0])
}

func TestAlert_TeamLookupIsCachedAcrossEvents(t *testing.T) {
	partner := &fakePartner{}
	srv := httptest.NewServer(partner.handler())
	defer srv.Close()

	dest := newPagerAgainst(t, srv.URL)
	require.NoError(t, dest.SetSubscriptions([]destination.Subscription{
		{
			Name:          "alert on errors",
			PartnerAction: "alert",
			Mapping: map[string]any{
				"title":    map[string]any{"@field": "event"},
				"channels": map[string]any{"@field": "properties.channels"},
			},
		},
	}))

	event := map[string]any{
		"type":  "track",
		"event": "Error Raised",
		"properties": map[string]any{
			"channels": []any{"C-1"},
		},
	}

	for i := 0; i < 3; i++ {
		results, err := dest.OnEvent(context.Background(), event, pagerSettings())
		require.NoError(t, err)
		require.Equal(t, destination.StatusSuccess, results[0].Status)
	}

	require.Equal(t, 1, partner.teamLookups)
	require.Len(t, partner.alerts, 3)
}

func TestAlert_SettingsValidationHaltsBeforeAnyRequest(t *testing.T) {
	partner := &fakePartner{}
	srv := httptest.NewServer(partner.handler())
	defer srv.Close()

	dest := newPagerAgainst(t, srv.URL)
	require.NoError(t, dest.SetSubscriptions([]destination.Subscription{
		{Name: "alert on errors", PartnerAction: "alert"},
	}))

	results, err := dest.OnEvent(context.Background(), map[string]any{"type": "track"}, map[string]any{"team": "platform"})
	require.NoError(t, err)
	require.Equal(t, destination.StatusError, results[0].Status)
	require.Contains(t, results[0].Error, "apiKey")

	require.Zero(t, partner.teamLookups)
	require.Empty(t, partner.alerts)
}

func TestAlert_PayloadValidationCollectsAllErrors(t *testing.T) {
	partner := &fakePartner{}
	srv := httptest.NewServer(partner.handler())
	defer srv.Close()

	dest := newPagerAgainst(t, srv.URL)
	require.NoError(t, dest.SetSubscriptions([]destination.Subscription{
		{
			Name:          "alert on errors",
			PartnerAction: "alert",
			Mapping: map[string]any{
				"severity": map[string]any{"@field": "properties.severity"},
			},
		},
	}))

	event := map[string]any{
		"type":       "track",
		"properties": map[string]any{"severity": "catastrophic"},
	}

	results, err := dest.OnEvent(context.Background(), event, pagerSettings())
	require.NoError(t, err)
	require.Equal(t, destination.StatusError, results[0].Status)

	// Missing title, missing channels and the bad enum all surface together.
	require.Contains(t, results[0].Error, "title")
	require.Contains(t, results[0].Error, "channels")
	require.Contains(t, results[0].Error, "severity")
	require.Empty(t, partner.alerts)
}

func TestListChannels_PagesThrough(t *testing.T) {
	partner := &fakePartner{}
	srv := httptest.NewServer(partner.handler())
	defer srv.Close()

	dest := newPagerAgainst(t, srv.URL)
	act, ok := dest.Action("alert")
	require.True(t, ok)

	first, err := act.Autocomplete(context.Background(), dest.Client(), &action.Context{Settings: pagerSettings()}, "channels")
	require.NoError(t, err)
	require.Len(t, first.Data, 2)
	require.Equal(t, "ops", first.Data[0].Label)
	require.Equal(t, "C-1", first.Data[0].Value)
	require.Equal(t, "2", first.Pagination.NextPage)

	second, err := act.Autocomplete(context.Background(), dest.Client(), &action.Context{Settings: pagerSettings(), Page: "2"}, "channels")
	require.NoError(t, err)
	require.Empty(t, second.Pagination.NextPage)
}

func TestSpecsCompile(t *testing.T) {
	for _, spec := range []*schema.Spec{settingsSpec, alertPayloadSpec} {
		require.NoError(t, spec.Compile())
	}
}
