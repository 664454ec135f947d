package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cds-backend/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveURL(t *testing.T) {
	dispatcher, err := NewDispatcher("http://django:8000", time.Second)
	require.NoError(t, err)

	resolved, err := dispatcher.ResolveURL("http://hospital.example:8000/api/jobs/42/callback?token=abc")
	require.NoError(t, err)
	assert.Equal(t, "http://django:8000/api/jobs/42/callback?token=abc", resolved)
}

func TestResolveURLWithoutOverride(t *testing.T) {
	dispatcher, err := NewDispatcher("", time.Second)
	require.NoError(t, err)

	resolved, err := dispatcher.ResolveURL("https://hospital.example/cb")
	require.NoError(t, err)
	assert.Equal(t, "https://hospital.example/cb", resolved)
}

func TestNewDispatcherRejectsBadBase(t *testing.T) {
	_, err := NewDispatcher("django:8000", time.Second)
	require.Error(t, err)
}

func TestDeliverPostsPayload(t *testing.T) {
	var received api.CallbackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher("", time.Second)
	require.NoError(t, err)

	dispatcher.Deliver(context.Background(), server.URL+"/cb", api.CallbackPayload{
		JobId:  "job-9",
		Status: api.CallbackCompleted,
		Files:  map[string]api.FilePayload{"result.json": {Content: "{}", Type: "application/json"}},
	})

	assert.Equal(t, "job-9", received.JobId)
	assert.Equal(t, api.CallbackCompleted, received.Status)
	assert.Contains(t, received.Files, "result.json")
}

func TestDeliverSwallowsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher("", time.Second)
	require.NoError(t, err)

	// error status, unreachable host, unparsable url: all swallowed
	dispatcher.Deliver(context.Background(), server.URL+"/cb", api.CallbackPayload{JobId: "job-1", Status: api.CallbackFailed})
	dispatcher.Deliver(context.Background(), "http://127.0.0.1:1/cb", api.CallbackPayload{JobId: "job-2", Status: api.CallbackFailed})
	dispatcher.Deliver(context.Background(), "://bad", api.CallbackPayload{JobId: "job-3", Status: api.CallbackFailed})
}
