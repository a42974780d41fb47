package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/plugaai/trth_downloader/internal/progress"
	"github.com/plugaai/trth_downloader/internal/trth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *progress.Store {
	t.Helper()

	s := progress.NewStore([]*trth.RemoteFile{
		{Name: "x-N000000001-part000.csv", RequestID: "N000000001", PartType: "part000", Size: 200},
		{Name: "x-N000000001-report.csv", RequestID: "N000000001", PartType: "report", Size: 50},
		{Name: "y-N000000002.csv", RequestID: "N000000002", PartType: "part000", Size: 10},
	})

	require.NoError(t, s.Transition("x-N000000001-part000.csv", progress.Downloading))
	require.NoError(t, s.Add("x-N000000001-part000.csv", 50))
	require.NoError(t, s.Transition("y-N000000002.csv", progress.Downloading))
	require.NoError(t, s.Fail("y-N000000002.csv", errors.New("connection reset")))

	return s
}

func TestStatusHandler_Progress(t *testing.T) {
	server := httptest.NewServer(NewStatusHandler(newTestStore(t), nil, "", "").Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/progress")
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body ProgressResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	require.Len(t, body.Files, 3)
	assert.Equal(t, "downloading", body.Files[0].State)
	assert.InDelta(t, 25.0, body.Files[0].Percent, 0.001)
	assert.Equal(t, "failed", body.Files[2].State)
	assert.Equal(t, "connection reset", body.Files[2].Error)
	assert.Equal(t, Counts{Pending: 1, Downloading: 1, Failed: 1}, body.Counts)
}

func TestStatusHandler_Group(t *testing.T) {
	server := httptest.NewServer(NewStatusHandler(newTestStore(t), nil, "", "").Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/progress/N000000001")
	require.NoError(t, err)

	defer resp.Body.Close()

	var files []FileStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&files))
	require.Len(t, files, 2)
	assert.Equal(t, "report", files[1].PartType)

	resp, err = http.Get(server.URL + "/progress/N999999999")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusHandler_BasicAuth(t *testing.T) {
	server := httptest.NewServer(NewStatusHandler(newTestStore(t), nil, "admin", "pw").Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/progress")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/progress", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.SetBasicAuth("admin", "pw")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// health stays public
	resp, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
