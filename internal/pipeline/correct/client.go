package correct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/pipeline/validate"
)

// Config for the oracle client.
type Config struct {
	APIKey      string // falls back to env ORACLE_API_KEY
	BaseURL     string // default https://api.openai.com/v1
	Model       string
	Temperature float32
	Timeout     time.Duration // per-call bound; expiry degrades to fallback
}

// Client is the LLM-backed correction oracle. It supplies the record plus a
// small set of similar reference records as context and parses a structured
// correction response.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	mu   sync.Mutex
	refs []domain.CompRecord
}

// maxReferences bounds the in-memory reference set fed to the prompt.
const maxReferences = 50

// NewClient creates the oracle client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ORACLE_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// AddReference records a validated record as future prompt context.
func (c *Client) AddReference(rec domain.CompRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs = append(c.refs, rec)
	if len(c.refs) > maxReferences {
		c.refs = c.refs[len(c.refs)-maxReferences:]
	}
}

// Correct implements Corrector against an OpenAI-style chat completions API.
func (c *Client) Correct(ctx context.Context, rec domain.CompRecord, issues []validate.Issue) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	schema := buildCorrectionSchema()

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": c.buildUserPrompt(rec, issues)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	raw, err := c.post(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", body)
	if err != nil {
		c.logger.Error("oracle.correct.http_error",
			slog.Any("error", err),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("failed to decode oracle response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("oracle response holds no choices")
	}

	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	if err := validateAgainstSchema(schema, content); err != nil {
		c.logger.Error("oracle.correct.schema_validation_failed",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("oracle response failed schema validation: %w", err)
	}

	var parsed struct {
		Corrections []struct {
			Field          string  `json:"field"`
			CorrectedValue string  `json:"corrected_value"`
			Confidence     float64 `json:"confidence"`
			Reasoning      string  `json:"reasoning"`
		} `json:"corrections"`
	}
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal corrections: %w", err)
	}

	corrected := rec
	corrections := make([]Correction, 0, len(parsed.Corrections))
	for _, pc := range parsed.Corrections {
		original := applyCorrection(&corrected, pc.Field, pc.CorrectedValue)
		corrections = append(corrections, Correction{
			Field:      pc.Field,
			Original:   original,
			Corrected:  pc.CorrectedValue,
			Confidence: pc.Confidence,
			Reasoning:  pc.Reasoning,
			Source:     SourceOracle,
		})
	}

	c.logger.Info("oracle.correct.ok",
		slog.Int("corrections", len(corrections)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	return &Result{
		Original:          rec,
		Corrected:         corrected,
		Corrections:       corrections,
		OverallConfidence: overallConfidence(corrections),
	}, nil
}

const systemPrompt = "You are a real-estate data repair assistant. You are " +
	"given one comparable-sale record with validation issues and a few " +
	"similar reference sales. Propose corrections only for fields you can " +
	"justify from the context. Return ONLY JSON matching the provided schema."

func (c *Client) buildUserPrompt(rec domain.CompRecord, issues []validate.Issue) string {
	var sb strings.Builder
	sb.WriteString("Record:\n")
	sb.WriteString(mustJSON(rec))
	sb.WriteString("\n\nIssues:\n")
	for _, issue := range issues {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", issue.Field, issue.Severity, issue.Message)
	}
	refs := c.similarReferences(rec, 3)
	if len(refs) > 0 {
		sb.WriteString("\nSimilar reference sales:\n")
		sb.WriteString(mustJSON(refs))
	}
	return sb.String()
}

// similarReferences picks up to n reference records by simple similarity:
// matching property type, or living area within 20%.
func (c *Client) similarReferences(rec domain.CompRecord, n int) []domain.CompRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.CompRecord
	for i := len(c.refs) - 1; i >= 0 && len(out) < n; i-- {
		ref := c.refs[i]
		if rec.PropertyType != "" && strings.EqualFold(ref.PropertyType, rec.PropertyType) {
			out = append(out, ref)
			continue
		}
		if rec.GLASqft != nil && ref.GLASqft != nil && *rec.GLASqft > 0 {
			if math.Abs(*ref.GLASqft-*rec.GLASqft) <= 0.2**rec.GLASqft {
				out = append(out, ref)
			}
		}
	}
	return out
}

// applyCorrection writes a proposed value into the record and returns the
// value it replaced. Unknown fields and unparsable numerics are ignored so a
// partially useful oracle response still helps.
func applyCorrection(rec *domain.CompRecord, field, value string) (original string) {
	parseF := func() *float64 {
		f, err := strconv.ParseFloat(strings.NewReplacer("$", "", ",", "").Replace(value), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	switch field {
	case "address":
		original, rec.Address = rec.Address, value
	case "city":
		original, rec.City = rec.City, value
	case "state":
		original, rec.State = rec.State, value
	case "zip_code":
		original, rec.ZipCode = rec.ZipCode, value
	case "sale_date":
		original, rec.SaleDate = rec.SaleDate, value
	case "property_type":
		original, rec.PropertyType = rec.PropertyType, value
	case "sale_price_usd":
		original = formatOptionalFloat(rec.SalePriceUSD)
		if f := parseF(); f != nil {
			rec.SalePriceUSD = f
		}
	case "gla_sqft":
		original = formatOptionalFloat(rec.GLASqft)
		if f := parseF(); f != nil {
			rec.GLASqft = f
		}
	case "lot_size":
		original = formatOptionalFloat(rec.LotSize)
		if f := parseF(); f != nil {
			rec.LotSize = f
		}
	case "bathrooms":
		original = formatOptionalFloat(rec.Bathrooms)
		if f := parseF(); f != nil {
			rec.Bathrooms = f
		}
	case "bedrooms":
		if rec.Bedrooms != nil {
			original = strconv.Itoa(*rec.Bedrooms)
		}
		if f := parseF(); f != nil {
			rec.Bedrooms = domain.Int(int(*f))
		}
	case "year_built":
		if rec.YearBuilt != nil {
			original = strconv.Itoa(*rec.YearBuilt)
		}
		if f := parseF(); f != nil {
			rec.YearBuilt = domain.Int(int(*f))
		}
	}
	return original
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle http error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("oracle status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
