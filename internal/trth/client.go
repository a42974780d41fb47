package trth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/plugaai/trth_downloader/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultListURL     = "http://tickhistory.thomsonreuters.com/HttpPull/List"
	DefaultDownloadURL = "https://tickhistory.thomsonreuters.com/HttpPull/Download"
	DefaultResultsDir  = "/api-results"

	maxErrorBody = 4 * 1024
)

// ResultClient talks to the HTTP-pull endpoints that expose extraction results.
type ResultClient interface {
	ListResults(ctx context.Context) ([]byte, error)
	OpenFile(ctx context.Context, name string) (io.ReadCloser, error)
}

// Credentials is the user/pass pair shared by the HTTP-pull and SOAP endpoints.
type Credentials struct {
	Username string
	Password string
}

// Client is the HTTP-pull client. Both endpoints authenticate through the
// user and pass query parameters.
type Client struct {
	ListURL     string
	DownloadURL string
	ResultsDir  string
	Credentials Credentials

	httpClient *http.Client
}

// NewClient creates a Client. A nil httpClient gets a streaming-friendly
// default: no overall timeout, only a bound on waiting for response headers.
func NewClient(listURL, downloadURL, resultsDir string, creds Credentials, httpClient *http.Client) *Client {
	if listURL == "" {
		listURL = DefaultListURL
	}

	if downloadURL == "" {
		downloadURL = DefaultDownloadURL
	}

	if resultsDir == "" {
		resultsDir = DefaultResultsDir
	}

	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	return &Client{
		ListURL:     listURL,
		DownloadURL: downloadURL,
		ResultsDir:  resultsDir,
		Credentials: creds,
		httpClient:  httpClient,
	}
}

// NewHTTPClient returns an http.Client suited to long streaming downloads,
// instrumented with OpenTelemetry.
func NewHTTPClient() *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = 60 * time.Second

	return &http.Client{Transport: otelhttp.NewTransport(base)}
}

// ListResults fetches the raw CSV listing of the results directory.
func (c *Client) ListResults(ctx context.Context) ([]byte, error) {
	logger := logctx.LoggerFromContext(ctx).With("results_dir", c.ResultsDir)

	params := c.authParams()
	params.Set("dir", c.ResultsDir)
	params.Set("mode", "csv")

	resp, err := c.get(ctx, c.ListURL, params)
	if err != nil {
		logger.ErrorContext(ctx, "failed to request result listing", "err", err)

		return nil, &NetworkError{Operation: "list", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus("list", resp); err != nil {
		logger.ErrorContext(ctx, "non-2xx listing response", "status", resp.StatusCode)

		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Operation: "list", Message: "failed to read listing body", Err: err}
	}

	logger.DebugContext(ctx, "fetched result listing", "bytes", len(body))

	return body, nil
}

// OpenFile opens a streaming download of one listed file. The caller owns
// the returned body and must close it.
func (c *Client) OpenFile(ctx context.Context, name string) (io.ReadCloser, error) {
	logger := logctx.LoggerFromContext(ctx).With("file_name", name)

	params := c.authParams()
	params.Set("file", name)

	resp, err := c.get(ctx, c.DownloadURL, params)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open download stream", "err", err)

		return nil, &NetworkError{Operation: "download", Message: err.Error(), Err: err}
	}

	if err := checkStatus("download", resp); err != nil {
		resp.Body.Close()

		logger.ErrorContext(ctx, "non-2xx download response", "status", resp.StatusCode)

		return nil, err
	}

	return resp.Body, nil
}

func (c *Client) authParams() url.Values {
	params := url.Values{}
	params.Set("user", c.Credentials.Username)
	params.Set("pass", c.Credentials.Password)

	return params
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint %q: %w", endpoint, err)
	}

	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	return c.httpClient.Do(req)
}

func checkStatus(operation string, resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &NetworkError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Message:    string(b),
	}
}
