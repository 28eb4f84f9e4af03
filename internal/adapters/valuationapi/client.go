package valuationapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bnema/valuation-session-cli/internal/domain"
	"github.com/bnema/valuation-session-cli/internal/ports"
)

const (
	startPath  = "/api/valuation/conversation/start"
	stepPath   = "/api/valuation/conversation/step"
	healthPath = "/health"
)

// TokenSource supplies a bearer token for engine calls; nil means
// unauthenticated requests.
type TokenSource func(ctx context.Context) (string, error)

type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokenSource TokenSource
}

var _ ports.ValuationClient = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client, tokenSource TokenSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		tokenSource: tokenSource,
	}
}

type startRequest struct {
	CompanyID string `json:"company_id"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
	AIMessage string `json:"ai_message"`
	Step      int    `json:"step"`
	NextField string `json:"next_field"`
	InputType string `json:"input_type"`
	HelpText  string `json:"help_text"`
}

type stepRequest struct {
	CompanyID string `json:"company_id"`
	SessionID string `json:"session_id"`
	Step      int    `json:"step"`
	Field     string `json:"field"`
	Value     any    `json:"value"`
}

type stepResponse struct {
	Complete        bool          `json:"complete"`
	AIMessage       string        `json:"ai_message"`
	Step            int           `json:"step"`
	NextField       string        `json:"next_field"`
	InputType       string        `json:"input_type"`
	HelpText        string        `json:"help_text"`
	ValuationResult *resultSchema `json:"valuation_result"`
	ReportHTML      string        `json:"report_html"`
	InfoPanelHTML   string        `json:"info_panel_html"`
	Error           string        `json:"error"`
}

type resultSchema struct {
	ValuationID     string         `json:"valuation_id"`
	EquityValue     int64          `json:"equity_value"`
	ValuationRange  valuationRange `json:"valuation_range"`
	ConfidenceScore float64        `json:"confidence_score"`
	Methodology     string         `json:"methodology"`
}

type valuationRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

func (c *Client) StartConversation(ctx context.Context, companyID string) (domain.ConversationStart, error) {
	var resp startResponse
	err := c.do(ctx, http.MethodPost, startPath, startRequest{CompanyID: companyID}, &resp)
	if err != nil {
		return domain.ConversationStart{}, err
	}

	return domain.ConversationStart{
		ConversationID: resp.SessionID,
		Message:        resp.AIMessage,
		Step:           resp.Step,
		NextField:      resp.NextField,
		InputType:      resp.InputType,
		HelpText:       resp.HelpText,
	}, nil
}

func (c *Client) SubmitStep(ctx context.Context, step domain.ConversationStep) (domain.ConversationReply, error) {
	req := stepRequest{
		CompanyID: step.CompanyID,
		SessionID: step.ConversationID,
		Step:      step.Step,
		Field:     step.Field,
		Value:     fieldValue(step.Value),
	}

	var resp stepResponse
	if err := c.do(ctx, http.MethodPost, stepPath, req, &resp); err != nil {
		return domain.ConversationReply{}, err
	}
	if resp.Error != "" {
		return domain.ConversationReply{}, &domain.TransportError{Op: stepPath, Err: errors.New(resp.Error)}
	}

	reply := domain.ConversationReply{
		Complete:   resp.Complete,
		Message:    resp.AIMessage,
		Step:       resp.Step,
		NextField:  resp.NextField,
		InputType:  resp.InputType,
		HelpText:   resp.HelpText,
		ReportHTML: resp.ReportHTML,
		InfoHTML:   resp.InfoPanelHTML,
	}
	if result := resp.ValuationResult; result != nil {
		reply.Result = &domain.ValuationResult{
			ValuationID:     result.ValuationID,
			EquityValue:     result.EquityValue,
			RangeMin:        result.ValuationRange.Min,
			RangeMax:        result.ValuationRange.Max,
			ConfidenceScore: result.ConfidenceScore,
			Methodology:     result.Methodology,
		}
	}

	return reply, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, healthPath, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokenSource != nil {
		token, err := c.tokenSource(ctx)
		if err != nil {
			return fmt.Errorf("resolve engine token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Op: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.TransportError{
			Op:         path,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(snippet))),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{Op: path, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

// The engine validates numeric fields as numbers; free-text answers go
// through as strings.
func fieldValue(raw string) any {
	if number, err := strconv.ParseFloat(raw, 64); err == nil {
		return number
	}

	return raw
}
