package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/benmeehan/kiln-console/internal/constants"
	"github.com/benmeehan/kiln-console/internal/models"
	"github.com/rs/zerolog"
)

var (
	// ErrNetwork covers rejected requests and non-success HTTP statuses.
	ErrNetwork = errors.New("network failure")
	// ErrMalformed covers responses that are missing or have invalid fields.
	ErrMalformed = errors.New("malformed response")
)

// Client is the controller backend as seen by the console.
type Client interface {
	FetchStatus(ctx context.Context) (models.DeviceStatus, error)
	FetchHistory(ctx context.Context, windowSeconds int64) (models.History, error)
	FetchPrograms(ctx context.Context) ([]models.Program, error)
	FetchProgram(ctx context.Context, id int64) (models.ProgramDetail, error)
	SendCommand(ctx context.Context, cmd models.Command) error
	DeleteProgram(ctx context.Context, id int64) error
}

// HTTPClient talks to the controller's CGI endpoints.
type HTTPClient struct {
	baseURL *url.URL
	suffix  string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPClient creates a client for the controller at baseURL. suffix is appended
// to every endpoint name (for example ".cgi").
func NewHTTPClient(baseURL, suffix string, timeout time.Duration, logger zerolog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid device base URL %q: %w", baseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid device base URL %q: scheme and host are required", baseURL)
	}

	return &HTTPClient{
		baseURL: parsed,
		suffix:  suffix,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// FetchStatus reads the current controller state.
func (c *HTTPClient) FetchStatus(ctx context.Context) (models.DeviceStatus, error) {
	var status models.DeviceStatus
	err := c.getJSON(ctx, constants.EndpointStatus, nil, &status)
	return status, err
}

// FetchHistory reads the trailing windowSeconds of logged samples and segment boundaries.
func (c *HTTPClient) FetchHistory(ctx context.Context, windowSeconds int64) (models.History, error) {
	var history models.History
	query := url.Values{"sec": {strconv.FormatInt(windowSeconds, 10)}}
	err := c.getJSON(ctx, constants.EndpointLog, query, &history)
	return history, err
}

// FetchPrograms lists the stored firing programs.
func (c *HTTPClient) FetchPrograms(ctx context.Context) ([]models.Program, error) {
	var list models.ProgramList
	if err := c.getJSON(ctx, constants.EndpointPrograms, nil, &list); err != nil {
		return nil, err
	}
	return list.Programs, nil
}

// FetchProgram reads the steps of one stored program.
func (c *HTTPClient) FetchProgram(ctx context.Context, id int64) (models.ProgramDetail, error) {
	var detail models.ProgramDetail
	query := url.Values{"id": {strconv.FormatInt(id, 10)}}
	err := c.getJSON(ctx, constants.EndpointProgram, query, &detail)
	return detail, err
}

// SendCommand issues a command. The response body is not interpreted.
func (c *HTTPClient) SendCommand(ctx context.Context, cmd models.Command) error {
	query := url.Values{
		"cmd": {strconv.Itoa(int(cmd.Code))},
		"p1":  {strconv.FormatInt(cmd.P1, 10)},
		"p2":  {strconv.FormatInt(cmd.P2, 10)},
	}
	return c.fire(ctx, constants.EndpointCommand, query)
}

// DeleteProgram marks a stored program as deleted.
func (c *HTTPClient) DeleteProgram(ctx context.Context, id int64) error {
	query := url.Values{"id": {strconv.FormatInt(id, 10)}}
	return c.fire(ctx, constants.EndpointDelete, query)
}

func (c *HTTPClient) endpointURL(endpoint string, query url.Values) string {
	u := c.baseURL.ResolveReference(&url.URL{Path: endpoint + c.suffix})
	u.RawQuery = query.Encode()
	return u.String()
}

// do performs a GET and returns the response when the status is 2xx.
func (c *HTTPClient) do(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	target := c.endpointURL(endpoint, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build %s request: %v", ErrNetwork, endpoint, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: received status code %d", ErrNetwork, endpoint, resp.StatusCode)
	}

	c.logger.Debug().Str("url", target).Msg("Controller request completed")
	return resp, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, query url.Values, v any) error {
	resp, err := c.do(ctx, endpoint, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, endpoint, err)
	}
	return nil
}

func (c *HTTPClient) fire(ctx context.Context, endpoint string, query url.Values) error {
	resp, err := c.do(ctx, endpoint, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
