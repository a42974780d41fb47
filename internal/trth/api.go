package trth

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/plugaai/trth_downloader/internal/logctx"
)

const (
	DefaultAPIURL = "https://trth-api.thomsonreuters.com/TRTHApi-5.8/services/TRTHApi"

	apiNamespace  = "http://webservice.tickhistory.thomsonreuters.com"
	soapNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
)

// RequestCanceller cancels an upstream extraction request, which also
// removes its result files from the HTTP-pull directory.
type RequestCanceller interface {
	CancelRequest(ctx context.Context, requestID string) error
}

// APIClient is a minimal binding of the TRTH SOAP API. Only the operations
// the downloader needs are declared.
type APIClient struct {
	URL         string
	Credentials Credentials

	httpClient *http.Client

	mu      sync.Mutex
	tokenID string
}

func NewAPIClient(apiURL string, creds Credentials, httpClient *http.Client) *APIClient {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	return &APIClient{
		URL:         apiURL,
		Credentials: creds,
		httpClient:  httpClient,
	}
}

type credentialsHeader struct {
	Username string `xml:"username"`
	Password string `xml:"password"`
	TokenID  string `xml:"tokenId"`
}

type requestEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	Soap    string   `xml:"xmlns:soap,attr"`
	NS      string   `xml:"xmlns:ns0,attr"`
	Header  struct {
		Credentials credentialsHeader `xml:"ns0:CredentialsHeader"`
	} `xml:"soap:Header"`
	Body struct {
		Content any
	} `xml:"soap:Body"`
}

type getVersionRequest struct {
	XMLName xml.Name `xml:"ns0:GetVersion"`
}

type cancelRequestRequest struct {
	XMLName   xml.Name `xml:"ns0:CancelRequest"`
	RequestID string   `xml:"requestID"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type responseEnvelope struct {
	Header struct {
		Credentials *credentialsHeader `xml:"CredentialsHeader"`
	} `xml:"Header"`
	Body struct {
		Fault *soapFault `xml:"Fault"`
	} `xml:"Body"`
}

// Authenticate negotiates the session token with a GetVersion call.
func (c *APIClient) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx).With("operation", "GetVersion")

	resp, err := c.call(ctx, "GetVersion", getVersionRequest{}, "")
	if err != nil {
		return err
	}

	if resp.Header.Credentials == nil || resp.Header.Credentials.TokenID == "" {
		return &NetworkError{Operation: "GetVersion", Message: "response carried no token"}
	}

	c.mu.Lock()
	c.tokenID = resp.Header.Credentials.TokenID
	c.mu.Unlock()

	logger.InfoContext(ctx, "authenticated with TRTH API", "user", resp.Header.Credentials.Username)

	return nil
}

// CancelRequest cancels the given request id, authenticating first if no
// token has been negotiated yet.
func (c *APIClient) CancelRequest(ctx context.Context, requestID string) error {
	if c.token() == "" {
		if err := c.Authenticate(ctx); err != nil {
			return err
		}
	}

	_, err := c.call(ctx, "CancelRequest", cancelRequestRequest{RequestID: requestID}, c.token())

	return err
}

func (c *APIClient) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tokenID
}

func (c *APIClient) call(ctx context.Context, operation string, content any, token string) (*responseEnvelope, error) {
	env := requestEnvelope{Soap: soapNamespace, NS: apiNamespace}
	env.Header.Credentials = credentialsHeader{
		Username: c.Credentials.Username,
		Password: c.Credentials.Password,
		TokenID:  token,
	}
	env.Body.Content = content

	payload, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+operation+`"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Operation: operation, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Operation: operation, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	var out responseEnvelope
	if err := xml.Unmarshal(body, &out); err != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, &NetworkError{Operation: operation, StatusCode: resp.StatusCode, Message: string(body)}
		}

		return nil, &NetworkError{Operation: operation, StatusCode: resp.StatusCode, Message: "malformed SOAP response", Err: err}
	}

	if out.Body.Fault != nil {
		return nil, &NetworkError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    out.Body.Fault.Code + ": " + out.Body.Fault.String,
		}
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &NetworkError{Operation: operation, StatusCode: resp.StatusCode, Message: resp.Status}
	}

	return &out, nil
}
