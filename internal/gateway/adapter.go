package gateway

import (
	"strconv"
	"strings"
	"time"

	"certpipe/internal/constants"
	"certpipe/pkg/models"
)

// Normalize converts a raw gateway event into the pipeline's message
// shape. It never fails: unrecognized codes map to the unknown kinds
// and a missing timestamp falls back to now.
func Normalize(event Event, now time.Time) models.ChatMessage {
	data := event.Data.Data

	msg := models.ChatMessage{
		MessageID:    data.MsgID.String(),
		SourceKind:   sourceKind(data.FromType),
		SourceID:     data.FromWxid,
		SenderID:     senderID(data),
		ContentKind:  contentKind(data.MsgType),
		RawContent:   data.Msg,
		IsOutgoing:   data.MsgSource == 1,
		MemberCount:  data.MemberCount,
		MentionedIDs: data.AtWxidList,
		ReceivedAt:   eventTime(data.Timestamp.String(), now),
	}

	if msg.ContentKind == models.ContentImage {
		msg.Image = parseImageDescriptor(data.Msg)
	}

	return msg
}

func sourceKind(fromType int) models.SourceKind {
	switch fromType {
	case constants.FromTypeDirect:
		return models.SourceDirectChat
	case constants.FromTypeGroup:
		return models.SourceGroupChat
	case constants.FromTypeBroadcast:
		return models.SourceBroadcast
	default:
		return models.SourceUnknown
	}
}

// senderID prefers the in-group speaker; direct chats only carry the
// conversation peer.
func senderID(data MessageData) string {
	if data.FinalFromWxid != "" {
		return data.FinalFromWxid
	}
	return data.FromWxid
}

func contentKind(msgType int) models.ContentKind {
	switch msgType {
	case constants.MsgTypeText:
		return models.ContentText
	case constants.MsgTypeImage:
		return models.ContentImage
	case constants.MsgTypeVoice:
		return models.ContentVoice
	case constants.MsgTypeCard:
		return models.ContentCard
	case constants.MsgTypeVideo:
		return models.ContentVideo
	case constants.MsgTypeSticker:
		return models.ContentSticker
	case constants.MsgTypeLocation:
		return models.ContentLocation
	case constants.MsgTypeShare:
		return models.ContentShare
	case constants.MsgTypeRedPacket:
		return models.ContentRedPacket
	case constants.MsgTypeMiniProgram:
		return models.ContentMiniProgram
	case constants.MsgTypeGroupInvite:
		return models.ContentGroupInvite
	case constants.MsgTypeSystem:
		return models.ContentSystem
	default:
		return models.ContentUnknown
	}
}

func eventTime(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return now
	}
	// the gateway sends either epoch seconds or milliseconds
	if v > 1e12 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

// parseImageDescriptor parses the inline "[pic=<path>,isDecrypt=<0|1>,...]"
// form image messages arrive in. Content not matching the form yields nil;
// the raw content is still preserved on the message.
func parseImageDescriptor(raw string) *models.ImageInfo {
	if !strings.HasPrefix(raw, "[pic=") || !strings.HasSuffix(raw, "]") {
		return nil
	}

	body := raw[len("[pic=") : len(raw)-1]
	parts := strings.Split(body, ",")
	info := &models.ImageInfo{Path: parts[0]}

	for _, part := range parts[1:] {
		if v, ok := strings.CutPrefix(part, "isDecrypt="); ok {
			info.Decrypted = v == "1"
		}
	}

	return info
}
