package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpipe/internal/config"
	"certpipe/internal/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(config.GatewayConfig{
		APIBaseURL: srv.URL,
		SafeKey:    "secret",
		BotID:      "wxid_bot",
	}, nil, logger.NopLogger())
	return client, srv
}

func TestClientQueryGroup(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/qianxun/httpapi", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("safekey"))
		assert.Equal(t, "wxid_bot", r.URL.Query().Get("wxid"))

		var body struct {
			Type string                 `json:"type"`
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "queryGroup", body.Type)
		assert.Equal(t, "12345@chatroom", body.Data["wxid"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":   200,
			"msg":    "ok",
			"result": map[string]string{"nick": "全国建造师交流群"},
		})
	})

	info, err := client.QueryGroup(context.Background(), "12345@chatroom")
	require.NoError(t, err)
	assert.Equal(t, "全国建造师交流群", info.Name)
}

func TestClientGetMemberNick(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Type string                 `json:"type"`
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "getMemberNick", body.Type)
		assert.Equal(t, "wxid_member", body.Data["objWxid"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":   200,
			"result": map[string]string{"groupNick": "张工"},
		})
	})

	nick, err := client.GetMemberNick(context.Background(), "12345@chatroom", "wxid_member")
	require.NoError(t, err)
	assert.Equal(t, "张工", nick)
}

func TestClientGatewayErrorCode(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 500,
			"msg":  "account offline",
		})
	})

	_, err := client.QueryGroup(context.Background(), "12345@chatroom")
	assert.Error(t, err)
}

func TestClientResolveBotID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":   200,
			"result": []map[string]string{{"wxid": "wxid_resolved"}},
		})
	})
	client.botID = ""

	id, err := client.ResolveBotID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wxid_resolved", id)
	// second call short-circuits
	id, err = client.ResolveBotID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wxid_resolved", id)
}

func TestClientValidation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.QueryGroup(context.Background(), "")
	assert.Error(t, err)

	_, err = client.GetMemberNick(context.Background(), "", "member")
	assert.Error(t, err)
}

func TestDecodeAPIResponseStripsControlChars(t *testing.T) {
	dirty := []byte("{\"code\":200,\"msg\":\"ok\x01\x02\",\"result\":{\"nick\":\"群\x05名\"}}")

	resp, err := decodeAPIResponse(dirty)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code)

	var result groupResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "群名", result.Nick)
}
