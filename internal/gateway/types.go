package gateway

import "encoding/json"

// apiResponse is the envelope every control API call returns.
type apiResponse struct {
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
	Result json.RawMessage `json:"result"`
}

// Account is one logged-in account on the gateway host.
type Account struct {
	WXID     string `json:"wxid"`
	Nickname string `json:"nick"`
}

// groupResult is the result payload of a queryGroup call.
type groupResult struct {
	Nick string `json:"nick"`
}

// memberNickResult is the result payload of a getMemberNick call.
type memberNickResult struct {
	GroupNick string `json:"groupNick"`
}

// GroupInfo is the subset of group metadata the pipeline cares about.
type GroupInfo struct {
	Name string
}

// Event is one frame pushed over the gateway WebSocket. Data nests a
// second envelope carrying the account id and the message body.
type Event struct {
	Event int       `json:"event"`
	Data  EventData `json:"data"`
}

type EventData struct {
	WXID string      `json:"wxid"`
	Data MessageData `json:"data"`
}

// MessageData is the raw message body as the gateway serializes it.
// Numeric-ish fields arrive inconsistently typed, hence json.Number.
type MessageData struct {
	FromType      int         `json:"fromType"`
	MsgType       int         `json:"msgType"`
	MsgSource     int         `json:"msgSource"`
	FromWxid      string      `json:"fromWxid"`
	FinalFromWxid string      `json:"finalFromWxid"`
	AtWxidList    []string    `json:"atWxidList"`
	Silence       int         `json:"silence"`
	MemberCount   int         `json:"membercount"`
	Signature     string      `json:"signature"`
	Msg           string      `json:"msg"`
	MsgID         json.Number `json:"msgId"`
	SendID        json.Number `json:"sendId"`
	Timestamp     json.Number `json:"timeStamp"`
}
