package requester

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_ExtensionsApply(t *testing.T) {
	var gotAuth, gotCustom string
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Team")
		gotPath = r.URL.Path
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	client := New(
		BaseURL(srv.URL),
		BearerAuth("secret"),
		Header("X-Team", "growth"),
	)

	resp, err := client.Get(context.Background(), "/v2/things", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "growth", gotCustom)
	require.Equal(t, "/v2/things", gotPath)

	var body map[string]any
	require.NoError(t, resp.JSON(&body))
	require.Equal(t, true, body["ok"])
}

func TestClient_PostJSONAndParams(t *testing.T) {
	var gotBody map[string]any
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		gotQuery = r.URL.Query().Get("page")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := New(BaseURL(srv.URL))
	resp, err := client.Post(context.Background(), "/messages", &RequestOptions{
		JSON:         map[string]any{"text": "hi"},
		SearchParams: map[string]string{"page": "2"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "hi", gotBody["text"])
	require.Equal(t, "2", gotQuery)
}

func TestClient_PartnerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(BaseURL(srv.URL))
	resp, err := client.Post(context.Background(), "/messages", nil)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusTooManyRequests, reqErr.StatusCode)
	// The response is still returned alongside the error for callers that
	// want the partner's body.
	require.NotNil(t, resp)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestClient_ExtendLayersWithoutMutating(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("X-Scope")))
	}))
	defer srv.Close()

	base := New(BaseURL(srv.URL), Header("X-Scope", "destination"))
	extended := base.Extend(Header("X-Scope", "subscription"))

	resp, err := base.Get(context.Background(), "/", nil)
	require.NoError(t, err)
	require.Equal(t, "destination", string(resp.Body))

	resp, err = extended.Get(context.Background(), "/", nil)
	require.NoError(t, err)
	require.Equal(t, "subscription", string(resp.Body))
}
