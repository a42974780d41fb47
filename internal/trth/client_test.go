package trth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(server.URL+"/List", server.URL+"/Download", "", Credentials{Username: "alice", Password: "secret"}, server.Client())
}

func TestClient_ListResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/List", r.URL.Path)
		assert.Equal(t, DefaultResultsDir, r.URL.Query().Get("dir"))
		assert.Equal(t, "csv", r.URL.Query().Get("mode"))
		assert.Equal(t, "alice", r.URL.Query().Get("user"))
		assert.Equal(t, "secret", r.URL.Query().Get("pass"))

		_, _ = w.Write([]byte(sampleListing))
	})

	body, err := client.ListResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleListing, string(body))
}

func TestClient_ListResults_Non2xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	})

	_, err := client.ListResults(context.Background())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusUnauthorized, netErr.StatusCode)
	assert.Equal(t, "list", netErr.Operation)
	assert.Contains(t, netErr.Message, "invalid credentials")
}

func TestClient_OpenFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Download", r.URL.Path)
		assert.Equal(t, "x-N000000001-report.csv", r.URL.Query().Get("file"))
		assert.Equal(t, "alice", r.URL.Query().Get("user"))

		_, _ = w.Write([]byte("payload"))
	})

	rc, err := client.OpenFile(context.Background(), "x-N000000001-report.csv")
	require.NoError(t, err)

	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))
}

func TestClient_OpenFile_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})

	_, err := client.OpenFile(context.Background(), "gone-N000000001.csv")

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
	assert.False(t, netErr.Retryable())
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := NewClient(server.URL, server.URL, "", Credentials{}, nil)

	_, err := client.ListResults(context.Background())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Zero(t, netErr.StatusCode)
	assert.True(t, netErr.Retryable())
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient("", "", "", Credentials{}, nil)

	assert.Equal(t, DefaultListURL, client.ListURL)
	assert.Equal(t, DefaultDownloadURL, client.DownloadURL)
	assert.Equal(t, DefaultResultsDir, client.ResultsDir)
}
