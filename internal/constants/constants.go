package constants

import "time"

// Gateway wire protocol.
const (
	// EventCodeGroupMessage is the only event code the pipeline consumes.
	EventCodeGroupMessage = 10008

	GatewayAPIPath = "/qianxun/httpapi"

	GatewayOpListAccounts = "getWeChatList"
	GatewayOpQueryGroup   = "queryGroup"
	GatewayOpMemberNick   = "getMemberNick"
	GatewayOpCheckStatus  = "checkWeChat"

	GatewaySuccessCode    = 200
	DefaultGatewayTimeout = 30 * time.Second
)

// Gateway fromType values.
const (
	FromTypeDirect    = 1
	FromTypeGroup     = 2
	FromTypeBroadcast = 3
)

// Gateway msgType values.
const (
	MsgTypeText        = 1
	MsgTypeImage       = 3
	MsgTypeVoice       = 34
	MsgTypeCard        = 42
	MsgTypeVideo       = 43
	MsgTypeSticker     = 47
	MsgTypeLocation    = 48
	MsgTypeShare       = 49
	MsgTypeRedPacket   = 2001
	MsgTypeMiniProgram = 2002
	MsgTypeGroupInvite = 2003
	MsgTypeSystem      = 10000
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second

	KafkaPublishMaxAttempts   = 3
	KafkaPublishRetryInterval = 200 * time.Millisecond
)

const (
	CacheKeyPrefixDedup      = "dedup:"
	CacheKeyPrefixGroupName  = "enrich:group:"
	CacheKeyPrefixMemberNick = "enrich:nick:"
)

const (
	DefaultQueueCapacity = 1000
	DefaultWorkerCount   = 3
	DefaultShutdownGrace = 30 * time.Second
	ShutdownTimeout      = 5 * time.Second

	DefaultServerReadTimeout  = 15 * time.Second
	DefaultServerWriteTimeout = 15 * time.Second
)

const (
	DefaultEnrichCacheTTLSeconds = 6 * 3600
	DefaultDedupTTLSeconds       = 7 * 24 * 3600
)

const (
	DefaultModelTemperature = 0.1
	DefaultModelMaxTokens   = 4096
	DefaultSessionCap       = 40

	SessionExtract   = "listing_extract"
	SessionCertSplit = "cert_split"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
	TruncateLen  = 50
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)
