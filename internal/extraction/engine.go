package extraction

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"certpipe/internal/constants"
	"certpipe/internal/logger"
	apperrors "certpipe/pkg/errors"
	"certpipe/pkg/metrics"
	"certpipe/pkg/models"
)

const (
	callExtract = "extract_listing"
	callSplit   = "split_certificates"
)

// Engine turns raw chat text into structured listings via two model
// calls: one structuring pass and one certificate-splitting pass.
type Engine struct {
	caller        ModelCaller
	extractPrompt string
	splitPrompt   string
	logger        logger.Logger
}

func NewEngine(caller ModelCaller, extractPrompt, splitPrompt string, log logger.Logger) *Engine {
	return &Engine{
		caller:        caller,
		extractPrompt: extractPrompt,
		splitPrompt:   splitPrompt,
		logger:        log,
	}
}

// rawListing is the model's output schema. The gateway-facing names
// differ from the internal model, and price arrives as number, numeric
// string, or null depending on the model's mood.
type rawListing struct {
	Type           string          `json:"type"`
	Certificate    string          `json:"certificate"`
	SocialSecurity string          `json:"social_security"`
	Location       string          `json:"location"`
	Price          json.RawMessage `json:"price"`
	OtherInfo      string          `json:"other_info"`
	OriginalInfo   string          `json:"original_info"`
}

// ExtractListings runs the structuring call. One message may carry
// several listings; the model returns either a single object or an
// array. An unparseable reply yields an error, not partial data.
func (e *Engine) ExtractListings(ctx context.Context, content string) ([]models.ExtractedListing, error) {
	reply, err := e.caller.Chat(ctx, callExtract, constants.SessionExtract, e.extractPrompt, content)
	if err != nil {
		return nil, err
	}

	cleaned := CleanModelResponse(reply)

	var raws []rawListing
	if err := json.Unmarshal([]byte(cleaned), &raws); err != nil {
		var single rawListing
		if err := json.Unmarshal([]byte(cleaned), &single); err != nil {
			metrics.ExtractionParseFailuresTotal.WithLabelValues(callExtract).Inc()
			e.logger.WarnwCtx(ctx, "Unparseable extraction response",
				"response", truncate(cleaned, constants.TruncateLen),
			)
			return nil, apperrors.ErrValidation.WithDetail("reason", "unparseable model response")
		}
		raws = []rawListing{single}
	}

	listings := make([]models.ExtractedListing, 0, len(raws))
	for _, raw := range raws {
		listings = append(listings, models.ExtractedListing{
			DealType:            raw.Type,
			CertificatesRaw:     raw.Certificate,
			SocialSecurityTerms: raw.SocialSecurity,
			Location:            raw.Location,
			Price:               parsePrice(raw.Price),
			OtherInfo:           raw.OtherInfo,
			OriginalInfo:        raw.OriginalInfo,
		})
	}
	return listings, nil
}

// SplitCertificates normalizes a certificate combination ("一级公路+
// 水利+中工带B") into individual certificate names. The empty input
// short-circuits without a model call. Parse failures degrade to an
// empty slice; the listing is still persisted with the raw text.
func (e *Engine) SplitCertificates(ctx context.Context, certificatesRaw string) ([]string, error) {
	if strings.TrimSpace(certificatesRaw) == "" {
		return nil, nil
	}

	reply, err := e.caller.Chat(ctx, callSplit, constants.SessionCertSplit, e.splitPrompt, certificatesRaw)
	if err != nil {
		return nil, err
	}

	cleaned := CleanModelResponse(reply)
	certs := parseCertificateList(cleaned)
	if certs == nil {
		metrics.ExtractionParseFailuresTotal.WithLabelValues(callSplit).Inc()
		e.logger.WarnwCtx(ctx, "Unparseable certificate split response",
			"response", truncate(cleaned, constants.TruncateLen),
		)
	}
	return certs, nil
}

// CleanModelResponse strips the markdown code fences models wrap JSON
// in despite instructions: leading ```json/```python/``` and a trailing
// ```, with whitespace trimmed before and after each step.
func CleanModelResponse(response string) string {
	cleaned := strings.TrimSpace(response)

	for _, fence := range []string{"```python", "```json", "```"} {
		if strings.HasPrefix(cleaned, fence) {
			cleaned = cleaned[len(fence):]
			break
		}
	}
	cleaned = strings.TrimSuffix(cleaned, "```")

	return strings.TrimSpace(cleaned)
}

// parseCertificateList accepts a JSON array of strings, one level of
// nesting ([["a","b"]] means take the first group), or falls back to
// splitting on ASCII and fullwidth commas. Returns nil when nothing
// usable remains.
func parseCertificateList(cleaned string) []string {
	if cleaned == "" {
		return nil
	}

	var flat []string
	if err := json.Unmarshal([]byte(cleaned), &flat); err == nil {
		return compact(flat)
	}

	var nested [][]string
	if err := json.Unmarshal([]byte(cleaned), &nested); err == nil {
		if len(nested) == 0 {
			return nil
		}
		return compact(nested[0])
	}

	// Fallback: treat it as a loose comma-separated line.
	stripped := strings.Trim(cleaned, "[]")
	stripped = strings.ReplaceAll(stripped, "，", ",")
	parts := strings.Split(stripped, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"'`)
	}
	return compact(parts)
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parsePrice(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int64(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
