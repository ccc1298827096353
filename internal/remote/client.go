// Package remote is the HTTP client for the contact-management API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/contactsync/internal/core"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://api.inovstar.com/core/v2/api"

	// DefaultTimeout is the total per-request timeout.
	DefaultTimeout = 30 * time.Second

	// HeaderAccessToken carries the caller's credential.
	HeaderAccessToken = "access-token"

	dialTimeout           = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 20 * time.Second

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// NewHTTPClient returns a client with bounded dial, TLS and header waits.
// Redirects are not followed so the credential header never leaves the
// configured host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   tlsHandshakeTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Client implements core.ContactAPI over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ core.ContactAPI = (*Client)(nil)

// New creates a client for baseURL. A nil httpClient uses NewHTTPClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// CreateContact posts one contact. Any 2xx is success. A non-2xx answer is
// a *core.RemoteError built from the {status, msg, errorCode} body, or
// from the HTTP status line when the body is not that shape.
func (c *Client) CreateContact(ctx context.Context, credential string, payload core.ContactPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode contact: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/contacts", credential, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return createError(resp)
}

// ListContacts fetches every contact in one unpaginated request.
func (c *Client) ListContacts(ctx context.Context, credential string) ([]core.Contact, error) {
	var contacts []core.Contact
	if err := c.getJSON(ctx, "/contacts", credential, &contacts); err != nil {
		return nil, err
	}
	if contacts == nil {
		contacts = []core.Contact{}
	}
	return contacts, nil
}

// ListTags fetches the organization's tags.
func (c *Client) ListTags(ctx context.Context, credential string) ([]core.TagRef, error) {
	var tags []core.TagRef
	if err := c.getJSON(ctx, "/tags", credential, &tags); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []core.TagRef{}
	}
	return tags, nil
}

// GetChannel fetches the channel bound to the credential.
func (c *Client) GetChannel(ctx context.Context, credential string) (*core.Channel, error) {
	var ch core.Channel
	if err := c.getJSON(ctx, "/channel", credential, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) getJSON(ctx context.Context, path, credential string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, credential, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return getError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, credential string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(HeaderAccessToken, credential)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &core.TransportError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// errorBody is the API's error shape. Fields may arrive as strings or
// numbers.
type errorBody struct {
	Status    flexString `json:"status"`
	Msg       flexString `json:"msg"`
	Message   flexString `json:"message"`
	ErrorCode flexString `json:"errorCode"`
}

// createError applies the per-field fallbacks of the create endpoint.
func createError(resp *http.Response) error {
	fallback := core.FallbackRemoteError(resp.StatusCode)

	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(data, &body); err != nil {
		return fallback
	}

	re := *fallback
	if body.Status != "" {
		re.Status = string(body.Status)
	}
	if body.Msg != "" {
		re.Message = string(body.Msg)
	}
	if body.ErrorCode != "" {
		re.Code = string(body.ErrorCode)
	}
	return &re
}

// getError prefers the body's message or msg over "<code> <reason>".
func getError(resp *http.Response) error {
	re := core.FallbackRemoteError(resp.StatusCode)
	re.Message = strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode)

	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(data, &body) == nil {
		switch {
		case body.Message != "":
			re.Message = string(body.Message)
		case body.Msg != "":
			re.Message = string(body.Msg)
		}
		if body.ErrorCode != "" {
			re.Code = string(body.ErrorCode)
		}
	}
	return re
}

// flexString decodes a JSON string, number or bool as its text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(data)))
	return nil
}
