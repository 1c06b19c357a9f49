package models

import "time"

// SourceKind classifies where a chat message came from.
type SourceKind int

const (
	SourceUnknown SourceKind = iota
	SourceDirectChat
	SourceGroupChat
	SourceBroadcast
)

func (k SourceKind) String() string {
	switch k {
	case SourceDirectChat:
		return "direct"
	case SourceGroupChat:
		return "group"
	case SourceBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// ContentKind classifies the payload of a chat message.
type ContentKind int

const (
	ContentUnknown ContentKind = iota
	ContentText
	ContentImage
	ContentVoice
	ContentCard
	ContentVideo
	ContentSticker
	ContentLocation
	ContentShare
	ContentRedPacket
	ContentMiniProgram
	ContentGroupInvite
	ContentSystem
)

func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentImage:
		return "image"
	case ContentVoice:
		return "voice"
	case ContentCard:
		return "card"
	case ContentVideo:
		return "video"
	case ContentSticker:
		return "sticker"
	case ContentLocation:
		return "location"
	case ContentShare:
		return "share"
	case ContentRedPacket:
		return "redpacket"
	case ContentMiniProgram:
		return "miniprogram"
	case ContentGroupInvite:
		return "groupinvite"
	case ContentSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ImageInfo carries the fields parsed out of an inline image descriptor
// ("[pic=<path>,isDecrypt=<0|1>,...]"). Present only for ContentImage.
type ImageInfo struct {
	Path      string `json:"path"`
	Decrypted bool   `json:"decrypted"`
}

// ChatMessage is one inbound chat event, normalized from the gateway's wire
// shape. It is created once by the adapter and immutable afterwards.
//
// MessageID is gateway-assigned and may repeat across gateway retries;
// deduplication is keyed on RawContent, never on MessageID.
type ChatMessage struct {
	MessageID    string      `json:"message_id"`
	SourceKind   SourceKind  `json:"source_kind"`
	SourceID     string      `json:"source_id"`
	SenderID     string      `json:"sender_id"`
	ContentKind  ContentKind `json:"content_kind"`
	RawContent   string      `json:"raw_content"`
	Image        *ImageInfo  `json:"image,omitempty"`
	IsOutgoing   bool        `json:"is_outgoing"`
	MemberCount  int         `json:"member_count"`
	MentionedIDs []string    `json:"mentioned_ids,omitempty"`
	ReceivedAt   time.Time   `json:"received_at"`
}

// EnrichedContext is best-effort group/sender metadata. Empty fields are
// valid and must never block the rest of the pipeline.
type EnrichedContext struct {
	GroupName      string `json:"group_name,omitempty"`
	SenderNickname string `json:"sender_nickname,omitempty"`
}

// ExtractedListing is the structured output of the first model call.
// Fields the model could not determine are zero values, never absent.
// OriginalInfo is the source line the model attributes the listing to;
// multi-listing messages yield one per line.
type ExtractedListing struct {
	DealType            string `json:"deal_type"`
	CertificatesRaw     string `json:"certificates_raw"`
	SocialSecurityTerms string `json:"social_security_terms"`
	Location            string `json:"location"`
	Price               int64  `json:"price"`
	OtherInfo           string `json:"other_info"`
	OriginalInfo        string `json:"original_info"`
}
