package ollama

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	// DefaultURL is the generate endpoint of a local Ollama server.
	DefaultURL = "http://localhost:11434/api/generate"

	// DefaultModel is the model requested when none is configured.
	DefaultModel = "deepseek-r1:1.5b"

	// DefaultEmptyPromptReply is streamed instead of contacting the server
	// when the prompt is blank.
	DefaultEmptyPromptReply = "I couldn't hear anything. Please try again."

	defaultProbeTimeout = 2 * time.Second
)

// Client talks to one Ollama generate endpoint. It is safe for concurrent
// use; every StreamGenerate call is an independent request.
type Client struct {
	url              string
	model            string
	headers          map[string]string
	httpClient       *http.Client
	probeTimeout     time.Duration
	emptyPromptReply string
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithHeaders adds headers to every request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) { c.headers = h }
}

// WithHTTPClient sets the HTTP client. It must not impose an overall
// timeout, since generations may run arbitrarily long.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithProbeTimeout sets the Ping deadline.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) { c.probeTimeout = d }
}

// WithEmptyPromptReply sets the text streamed for a blank prompt.
func WithEmptyPromptReply(s string) Option {
	return func(c *Client) { c.emptyPromptReply = s }
}

// NewClient creates a client for the generate endpoint at rawURL. An empty
// rawURL selects DefaultURL.
func NewClient(rawURL string, opts ...Option) *Client {
	if rawURL == "" {
		rawURL = DefaultURL
	}
	c := &Client{
		url:              rawURL,
		model:            DefaultModel,
		httpClient:       http.DefaultClient,
		probeTimeout:     defaultProbeTimeout,
		emptyPromptReply: DefaultEmptyPromptReply,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// URL returns the generate endpoint.
func (c *Client) URL() string { return c.url }

// Model returns the configured model.
func (c *Client) Model() string { return c.model }

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Context Context `json:"context"`
	Stream  bool    `json:"stream"`
}

// StreamGenerate starts a generation for prompt continuing from rolling.
// The request is sent on the first call to Next. A blank prompt yields the
// empty-prompt reply followed by done without any network traffic.
func (c *Client) StreamGenerate(ctx context.Context, prompt string, rolling Context) *Stream {
	if strings.TrimSpace(prompt) == "" {
		return staticStream(c.emptyPromptReply)
	}
	if rolling == nil {
		rolling = Context{}
	}
	return &Stream{
		ctx:    ctx,
		client: c,
		req: generateRequest{
			Model:   c.model,
			Prompt:  prompt,
			Context: rolling,
			Stream:  true,
		},
	}
}

func (c *Client) post(ctx context.Context, body generateRequest) (*http.Response, error) {
	data, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, &TransportError{URL: c.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{URL: c.url, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		msg := readErrorBody(resp)
		resp.Body.Close()
		return nil, &TransportError{URL: c.url, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	return resp, nil
}

// Ping checks that the server answers at all. Any HTTP response counts;
// only a connection failure or the probe deadline reports ErrUnreachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	probe := ProbeURL(c.url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp.Body.Close()
	return nil
}

// ProbeURL derives the liveness URL from a generate URL by replacing the
// first "/generate" with "/". URLs without it are probed at their root.
func ProbeURL(generateURL string) string {
	if strings.Contains(generateURL, "/generate") {
		return strings.Replace(generateURL, "/generate", "/", 1)
	}
	u, err := url.Parse(generateURL)
	if err != nil || u.Host == "" {
		return generateURL
	}
	u.Path, u.RawQuery = "/", ""
	return u.String()
}

type errorBody struct {
	Error string `json:"error"`
}

func readErrorBody(resp *http.Response) string {
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(io.LimitReader(resp.Body, 4096))
	var eb errorBody
	if sonic.Unmarshal(buf.Bytes(), &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		return s
	}
	return resp.Status
}
