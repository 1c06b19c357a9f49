package enrichment

import (
	"context"
	"time"

	"certpipe/internal/gateway"
	"certpipe/internal/logger"
	"certpipe/pkg/metrics"
	"certpipe/pkg/models"
)

// GatewayLookup is the subset of the gateway control API enrichment
// needs. Satisfied by *gateway.Client.
type GatewayLookup interface {
	QueryGroup(ctx context.Context, groupID string) (gateway.GroupInfo, error)
	GetMemberNick(ctx context.Context, groupID, memberID string) (string, error)
}

// Service resolves group and sender display names for group messages.
// Enrichment is strictly best-effort: every failure degrades to an
// empty field, never to an error.
type Service struct {
	lookup GatewayLookup
	cache  *Cache
	logger logger.Logger
}

func NewService(lookup GatewayLookup, cache *Cache, log logger.Logger) *Service {
	return &Service{
		lookup: lookup,
		cache:  cache,
		logger: log,
	}
}

func (s *Service) Enrich(ctx context.Context, msg models.ChatMessage) models.EnrichedContext {
	if msg.SourceKind != models.SourceGroupChat {
		return models.EnrichedContext{}
	}

	enriched := models.EnrichedContext{
		GroupName:      s.groupName(ctx, msg.SourceID),
		SenderNickname: s.memberNick(ctx, msg.SourceID, msg.SenderID),
	}

	if s.cache != nil {
		metrics.SetEnrichmentCacheHitRate(s.cache.HitRate())
	}
	return enriched
}

func (s *Service) groupName(ctx context.Context, groupID string) string {
	if groupID == "" {
		return ""
	}
	if s.cache != nil {
		if name, ok := s.cache.GetGroupName(ctx, groupID); ok {
			metrics.IncEnrichmentLookup("group_name", "cache_hit")
			return name
		}
	}

	start := time.Now()
	info, err := s.lookup.QueryGroup(ctx, groupID)
	metrics.ObserveEnrichmentLookupDuration("group_name", time.Since(start))
	if err != nil {
		metrics.IncEnrichmentLookup("group_name", "error")
		s.logger.WarnwCtx(ctx, "Group name lookup failed",
			"group_id", groupID,
			"error", err,
		)
		return ""
	}

	metrics.IncEnrichmentLookup("group_name", "success")
	if s.cache != nil {
		s.cache.SetGroupName(ctx, groupID, info.Name)
	}
	return info.Name
}

func (s *Service) memberNick(ctx context.Context, groupID, memberID string) string {
	if groupID == "" || memberID == "" {
		return ""
	}
	if s.cache != nil {
		if nick, ok := s.cache.GetMemberNick(ctx, groupID, memberID); ok {
			metrics.IncEnrichmentLookup("member_nick", "cache_hit")
			return nick
		}
	}

	start := time.Now()
	nick, err := s.lookup.GetMemberNick(ctx, groupID, memberID)
	metrics.ObserveEnrichmentLookupDuration("member_nick", time.Since(start))
	if err != nil {
		metrics.IncEnrichmentLookup("member_nick", "error")
		s.logger.WarnwCtx(ctx, "Member nickname lookup failed",
			"group_id", groupID,
			"sender_id", memberID,
			"error", err,
		)
		return ""
	}

	metrics.IncEnrichmentLookup("member_nick", "success")
	if s.cache != nil {
		s.cache.SetMemberNick(ctx, groupID, memberID, nick)
	}
	return nick
}
