package listing

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"certpipe/pkg/errors"
	"certpipe/pkg/models"
)

// Assembler merges a message, its enrichment context, and one extracted
// listing into a persistable TradeListing.
type Assembler struct {
	strict bool
}

// NewAssembler returns an assembler. With strict enabled, listings that
// carry neither a deal type nor certificate text are rejected instead of
// stored as noise rows.
func NewAssembler(strict bool) *Assembler {
	return &Assembler{strict: strict}
}

// Assemble builds a TradeListing. OriginalText prefers the model's
// per-listing source line and falls back to the whole message for
// single-listing messages.
func (a *Assembler) Assemble(msg models.ChatMessage, enriched models.EnrichedContext, extracted models.ExtractedListing, splitCerts []string) (TradeListing, error) {
	if a.strict && strings.TrimSpace(extracted.DealType) == "" && strings.TrimSpace(extracted.CertificatesRaw) == "" {
		return TradeListing{}, errors.ErrValidation.WithDetail("message", "listing has no deal type and no certificates")
	}

	original := strings.TrimSpace(extracted.OriginalInfo)
	if original == "" {
		original = msg.RawContent
	}

	return TradeListing{
		ID:                  uuid.New().String(),
		DealType:            extracted.DealType,
		CertificatesRaw:     extracted.CertificatesRaw,
		SplitCertificates:   splitCerts,
		SocialSecurityTerms: extracted.SocialSecurityTerms,
		Location:            extracted.Location,
		Price:               extracted.Price,
		OtherInfo:           extracted.OtherInfo,
		OriginalText:        original,
		GroupID:             msg.SourceID,
		SenderID:            msg.SenderID,
		MessageID:           msg.MessageID,
		GroupName:           enriched.GroupName,
		SenderNickname:      enriched.SenderNickname,
		ReceivedAt:          msg.ReceivedAt,
		CreatedAt:           time.Now().UTC(),
	}, nil
}
