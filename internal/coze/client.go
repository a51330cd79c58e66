package coze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL          = "https://api.coze.cn"
	defaultTimeout          = 30 * time.Second
	defaultConversationName = "Answer"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithWorkflow sets the workflow and app identifiers requests run against.
func WithWorkflow(workflowID, appID string) ClientOption {
	return func(c *Client) {
		c.workflowID = workflowID
		c.appID = appID
	}
}

// WithConversationName sets the CONVERSATION_NAME workflow parameter.
func WithConversationName(name string) ClientOption {
	return func(c *Client) {
		c.conversationName = name
	}
}

// WithTimeout sets the request timeout on the client's HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is an HTTP client for the Coze workflow chat API.
type Client struct {
	accessToken      string
	workflowID       string
	appID            string
	conversationName string
	baseURL          string
	httpClient       *http.Client
	logger           *slog.Logger
}

// NewClient creates a new Coze API client.
func NewClient(accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		accessToken:      accessToken,
		baseURL:          defaultBaseURL,
		conversationName: defaultConversationName,
		httpClient:       &http.Client{Timeout: defaultTimeout},
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateConversation opens a new conversation and returns its id. An exchange
// cannot proceed without one, so callers treat any error here as final.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/conversation/create", strings.NewReader("{}"))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if apiErr := ParseErrorResponse(respBody); apiErr != nil {
			return "", apiErr
		}
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result ConversationResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("conversation create response carried no id")
	}

	c.logger.Info("created conversation", slog.String("conversation_id", result.Data.ID))
	return result.Data.ID, nil
}

// ChatWithWorkflow runs one buffered workflow exchange: create a conversation,
// post the workflow request, and fold the streamed frames into a single
// Answer. Every failure comes back as a failed Answer rather than an error,
// including the preconditions checked before any network call. Nothing is
// retried.
func (c *Client) ChatWithWorkflow(ctx context.Context, userInput string, additional ...Message) *Answer {
	if c.accessToken == "" {
		return failedAnswer("coze access token is not configured")
	}
	if c.workflowID == "" {
		return failedAnswer("coze workflow id is not configured")
	}
	if c.appID == "" {
		return failedAnswer("coze app id is not configured")
	}

	conversationID, err := c.CreateConversation(ctx)
	if err != nil {
		c.logger.Error("failed to create conversation", slog.String("error", err.Error()))
		return failedAnswer("cannot create conversation, check coze api configuration")
	}

	req := c.buildRequest(userInput, additional)
	req.ConversationID = conversationID

	body, err := json.Marshal(req)
	if err != nil {
		return failedAnswer(fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/workflows/chat", bytes.NewReader(body))
	if err != nil {
		return failedAnswer(fmt.Sprintf("failed to create request: %v", err))
	}

	c.setHeaders(httpReq)

	c.logger.Info("sending workflow request",
		slog.String("workflow_id", c.workflowID),
		slog.String("conversation_id", conversationID),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			c.logger.Error("coze api request timed out")
			return failedAnswer("coze api request timed out")
		}
		return failedAnswer(fmt.Sprintf("coze api request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			c.logger.Error("coze api request timed out")
			return failedAnswer("coze api request timed out")
		}
		return failedAnswer(fmt.Sprintf("failed to read response: %v", err))
	}

	answer := Assemble(NewDecoder(bytes.NewReader(respBody), c.logger), c.logger)
	if answer.Succeeded {
		// The session's id is the request-scoped identity; it wins over
		// whatever the done frame reported.
		answer.ConversationID = conversationID
	}
	return answer
}

// StreamResult wraps a live stream frame or error.
type StreamResult struct {
	Frame *StreamFrame
	Err   error
}

// StreamWorkflow posts the workflow request and delivers frames as they
// arrive, without creating a conversation first (the pure-stream path carries
// no conversation id). Precondition and HTTP-level failures are returned
// before any channel exists; an in-band terminal error arrives as the final
// result's Err. The channel closes at [DONE] or end of input.
func (c *Client) StreamWorkflow(ctx context.Context, userInput string, additional ...Message) (<-chan StreamResult, error) {
	if c.accessToken == "" {
		return nil, errors.New("coze access token is not configured")
	}
	if c.workflowID == "" {
		return nil, errors.New("coze workflow id is not configured")
	}
	if c.appID == "" {
		return nil, errors.New("coze app id is not configured")
	}

	body, err := json.Marshal(c.buildRequest(userInput, additional))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/workflows/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		if apiErr := ParseErrorResponse(respBody); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	out := make(chan StreamResult)
	go c.streamReader(resp.Body, out)
	return out, nil
}

func (c *Client) streamReader(body io.ReadCloser, out chan<- StreamResult) {
	defer close(out)
	defer body.Close()

	d := NewDecoder(body, c.logger)
	for {
		frame, err := d.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			out <- StreamResult{Err: err}
			return
		}
		out <- StreamResult{Frame: frame}
	}
}

func (c *Client) buildRequest(userInput string, additional []Message) *WorkflowRequest {
	msgs := additional
	if len(msgs) == 0 {
		msgs = []Message{{
			Content:     userInput,
			ContentType: "text",
			Role:        "user",
			Type:        "question",
		}}
	}
	return &WorkflowRequest{
		WorkflowID: c.workflowID,
		AppID:      c.appID,
		Parameters: map[string]any{
			"CONVERSATION_NAME": c.conversationName,
			"USER_INPUT":        userInput,
		},
		AdditionalMessages: msgs,
	}
}

func (c *Client) handleErrorResponse(resp *http.Response) *Answer {
	respBody, _ := io.ReadAll(resp.Body)
	if apiErr := ParseErrorResponse(respBody); apiErr != nil {
		c.logger.Error("coze api error",
			slog.Int("code", apiErr.Code),
			slog.String("msg", apiErr.Msg),
		)
		return failedAnswer(apiErr.Error())
	}
	return failedAnswer(fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(respBody)))
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", "feishu-coze-relay/1.0")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
