package integration

import (
	"time"

	"certpipe/internal/config"
	"certpipe/internal/constants"
	"certpipe/internal/listing"
	"certpipe/internal/logger"
	"certpipe/pkg/models"
)

const (
	containerStartupTimeout = 60
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestDeduplicationConfig() config.DeduplicationConfig {
	return config.DeduplicationConfig{
		TTLSeconds:   300,
		OnRedisError: constants.FallbackAllow,
	}
}

func createTestMessage(id, groupID, content string) models.ChatMessage {
	return models.ChatMessage{
		MessageID:   id,
		SourceKind:  models.SourceGroupChat,
		SourceID:    groupID,
		SenderID:    "wxid_tester",
		ContentKind: models.ContentText,
		RawContent:  content,
		MemberCount: 120,
		ReceivedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

func createTestListing(groupID, originalText string, certs []string) *listing.TradeListing {
	return &listing.TradeListing{
		DealType:            "出",
		CertificatesRaw:     "一级建造师带B",
		SplitCertificates:   certs,
		SocialSecurityTerms: "社保唯一",
		Location:            "广州",
		Price:               30000,
		OriginalText:        originalText,
		GroupID:             groupID,
		SenderID:            "wxid_tester",
		MessageID:           "769073",
		GroupName:           "建筑人才群",
		SenderNickname:      "阿强",
		ReceivedAt:          time.Now().UTC().Truncate(time.Millisecond),
	}
}
