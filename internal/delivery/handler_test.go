package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/mixpanel/action-destinations-sub001/internal/action"
	httperr "github.com/mixpanel/action-destinations-sub001/internal/core/errors"
	"github.com/mixpanel/action-destinations-sub001/internal/core/storage"
	"github.com/mixpanel/action-destinations-sub001/internal/destination"
	"github.com/mixpanel/action-destinations-sub001/internal/mapping"
	"github.com/mixpanel/action-destinations-sub001/internal/requester"
)

// recordingStore captures saved deliveries for assertions.
type recordingStore struct {
	mu    sync.Mutex
	saved []*storage.Delivery
	err   error
}

func (r *recordingStore) SaveDelivery(_ context.Context, d *storage.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, d)
	return nil
}

func (r *recordingStore) RetrieveDeliveriesAfterCursor(_ context.Context, cursor int64, destinationID string, limit int) ([]*storage.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*storage.Delivery
	for i, d := range r.saved {
		seq := int64(i + 1)
		if seq <= cursor {
			continue
		}
		if destinationID != "" && d.DestinationID != destinationID {
			continue
		}
		copied := *d
		copied.Seq = seq
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestDestination(t *testing.T, id string, subs []destination.Subscription, request action.RequestFunc) *destination.Destination {
	t.Helper()

	reg := mapping.NewRegistry()
	reg.Freeze()
	act, err := action.New(action.Definition{
		Slug:    "send",
		Request: request,
		Autocomplete: map[string]action.AutocompleteFunc{
			"channel": func(ctx context.Context, client *requester.Client, ec *action.Context) (*action.AutocompleteResponse, error) {
				resp := &action.AutocompleteResponse{
					Data: []action.AutocompleteItem{{Label: "General", Value: "C001"}},
				}
				resp.Pagination.NextPage = ec.Page + "1"
				return resp, nil
			},
		},
	}, mapping.NewEvaluator(reg))
	require.NoError(t, err)

	dest, err := destination.New(destination.Config{ID: id, Actions: []*action.Action{act}})
	require.NoError(t, err)
	require.NoError(t, dest.SetSubscriptions(subs))
	return dest
}

func newTestService(t *testing.T, store storage.DeliveryStore, request action.RequestFunc) *Service {
	t.Helper()

	dest := newTestDestination(t, "webhook", []destination.Subscription{
		{Name: "track events", Subscribe: map[string]any{"type": "track"}, PartnerAction: "send"},
		{Name: "page views", Subscribe: map[string]any{"type": "page"}, PartnerAction: "send"},
	}, request)

	reg := destination.NewRegistry()
	require.NoError(t, reg.Register(dest))

	directives := mapping.NewRegistry()
	directives.Freeze()
	return NewService(reg, mapping.NewEvaluator(directives), store, 1, 0)
}

func okRequest(ctx context.Context, client *requester.Client, ec *action.Context) (*requester.Response, error) {
	return &requester.Response{StatusCode: 200}, nil
}

func performDelivery(t *testing.T, svc *Service, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestDeliverHandler_Success(t *testing.T) {
	store := &recordingStore{}
	svc := newTestService(t, store, okRequest)

	resp := performDelivery(t, svc, "/v1/destinations/webhook/events", `{
		"event": {"type": "track", "event": "Signed Up", "userId": "u-1", "messageId": "msg-1"},
		"settings": {"endpoint": "https://partner.example.com"}
	}`)

	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Destination string                      `json:"destination"`
		Results     []destination.SettledResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "webhook", result.Destination)
	require.Len(t, result.Results, 2)
	require.Equal(t, destination.StatusSuccess, result.Results[0].Status)
	require.Equal(t, destination.StatusNotSubscribed, result.Results[1].Status)

	// One audit row per evaluated subscription.
	require.Len(t, store.saved, 2)
	require.Equal(t, "webhook", store.saved[0].DestinationID)
	require.Equal(t, "track", store.saved[0].EventType)
	require.Equal(t, "Signed Up", store.saved[0].EventName)
	require.Equal(t, "msg-1", store.saved[0].MessageID)
	require.NotEmpty(t, store.saved[0].ID)
}

func TestDeliverHandler_PartialFailureStillSettles(t *testing.T) {
	store := &recordingStore{}
	svc := newTestService(t, store, func(ctx context.Context, client *requester.Client, ec *action.Context) (*requester.Response, error) {
		return nil, errors.New("partner unavailable")
	})

	resp := performDelivery(t, svc, "/v1/destinations/webhook/events", `{
		"event": {"type": "track", "event": "Signed Up", "userId": "u-1"}
	}`)

	// Per-subscription failures are a normal 200 response shape.
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Results []destination.SettledResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, destination.StatusError, result.Results[0].Status)
	require.Contains(t, result.Results[0].Branches[0].Error, "partner unavailable")
}

func TestDeliverHandler_DataAliasAccepted(t *testing.T) {
	store := &recordingStore{}
	svc := newTestService(t, store, okRequest)

	resp := performDelivery(t, svc, "/v1/destinations/webhook/events", `{
		"data": {"type": "track", "event": "Signed Up", "userId": "u-1"}
	}`)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, store.saved, 2)
}

func TestDeliverHandler_UnknownDestination(t *testing.T) {
	svc := newTestService(t, &recordingStore{}, okRequest)

	resp := performDelivery(t, svc, "/v1/destinations/nope/events", `{
		"event": {"type": "track", "event": "Signed Up", "userId": "u-1"}
	}`)

	require.Equal(t, http.StatusNotFound, resp.Code)
	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpDestinationNotFoundError, errResp.ErrorType)
}

func TestDeliverHandler_InvalidJSON(t *testing.T) {
	svc := newTestService(t, &recordingStore{}, okRequest)

	resp := performDelivery(t, svc, "/v1/destinations/webhook/events", "not json")

	require.Equal(t, http.StatusBadRequest, resp.Code)
	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidJsonError, errResp.ErrorType)
}

func TestDeliverHandler_EnvelopeValidationFailure(t *testing.T) {
	svc := newTestService(t, &recordingStore{}, okRequest)

	resp := performDelivery(t, svc, "/v1/destinations/webhook/events", `{
		"event": {"type": "track", "userId": "u-1"}
	}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpValidationError, errResp.ErrorType)
	require.Contains(t, errResp.Message, "event name is required")
}

func TestDeliverHandler_BodyTooLarge(t *testing.T) {
	svc := newTestService(t, &recordingStore{}, okRequest)

	big := bytes.Repeat([]byte("x"), 2*1024*1024)
	resp := performDelivery(t, svc, "/v1/destinations/webhook/events", string(big))

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestDeliverHandler_AuditFailureDoesNotFailResponse(t *testing.T) {
	store := &recordingStore{err: errors.New("db down")}
	svc := newTestService(t, store, okRequest)

	resp := performDelivery(t, svc, "/v1/destinations/webhook/events", `{
		"event": {"type": "track", "event": "Signed Up", "userId": "u-1"}
	}`)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestListDestinationsHandler(t *testing.T) {
	svc := newTestService(t, &recordingStore{}, okRequest)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/v1/destinations", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var result struct {
		Destinations []string `json:"destinations"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, []string{"webhook"}, result.Destinations)
}

func TestAutocompleteHandler(t *testing.T) {
	svc := newTestService(t, &recordingStore{}, okRequest)

	t.Run("known field pages through", func(t *testing.T) {
		resp := performDelivery(t, svc, "/v1/destinations/webhook/actions/send/autocomplete/channel", `{
			"settings": {"apiKey": "k"},
			"page": "2"
		}`)

		require.Equal(t, http.StatusOK, resp.Code)
		var result action.AutocompleteResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
		require.Len(t, result.Data, 1)
		require.Equal(t, "C001", result.Data[0].Value)
		require.Equal(t, "21", result.Pagination.NextPage)
	})

	t.Run("unknown field", func(t *testing.T) {
		resp := performDelivery(t, svc, "/v1/destinations/webhook/actions/send/autocomplete/nope", `{}`)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("unknown action", func(t *testing.T) {
		resp := performDelivery(t, svc, "/v1/destinations/webhook/actions/nope/autocomplete/channel", `{}`)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}
