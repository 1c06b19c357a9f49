package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"certpipe/internal/config"
	"certpipe/internal/constants"
	"certpipe/internal/logger"
	"certpipe/pkg/circuitbreaker"
	apperrors "certpipe/pkg/errors"
	"certpipe/pkg/metrics"
)

// Client talks to the gateway control API. All operations go through a
// single POST endpoint; the operation name rides in the request body.
type Client struct {
	baseURL    string
	safeKey    string
	botID      string
	httpClient *http.Client
	breaker    *circuitbreaker.Wrapper
	log        logger.Logger
}

func NewClient(cfg config.GatewayConfig, breaker *circuitbreaker.Wrapper, log logger.Logger) *Client {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = constants.DefaultGatewayTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		safeKey: cfg.SafeKey,
		botID:   cfg.BotID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: breaker,
		log:     log,
	}
}

// BotID returns the account id the client operates as. Empty until
// ResolveBotID succeeds or the id was configured explicitly.
func (c *Client) BotID() string {
	return c.botID
}

// ResolveBotID asks the gateway which accounts are logged in and adopts
// the first one. A configured bot id short-circuits the call.
func (c *Client) ResolveBotID(ctx context.Context) (string, error) {
	if c.botID != "" {
		return c.botID, nil
	}

	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 || accounts[0].WXID == "" {
		return "", apperrors.ErrServiceUnavailable.WithDetail("reason", "no logged-in accounts on gateway")
	}

	c.botID = accounts[0].WXID
	c.log.Infow("Resolved gateway account", "bot_id", c.botID)
	return c.botID, nil
}

func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	resp, err := c.call(ctx, constants.GatewayOpListAccounts, nil, "")
	if err != nil {
		return nil, err
	}

	var accounts []Account
	if err := json.Unmarshal(resp.Result, &accounts); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal).WithDetail("operation", constants.GatewayOpListAccounts)
	}
	return accounts, nil
}

// CheckOnline verifies the resolved account is still logged in.
func (c *Client) CheckOnline(ctx context.Context) error {
	if c.botID == "" {
		return apperrors.ErrServiceUnavailable.WithDetail("reason", "bot id not resolved")
	}
	_, err := c.call(ctx, constants.GatewayOpCheckStatus, nil, c.botID)
	return err
}

// QueryGroup fetches group metadata. cache "1" reads the gateway's own
// cache, which is good enough for display names.
func (c *Client) QueryGroup(ctx context.Context, groupID string) (GroupInfo, error) {
	if groupID == "" {
		return GroupInfo{}, apperrors.ErrValidation.WithDetail("field", "group_id")
	}

	data := map[string]interface{}{
		"wxid": groupID,
		"type": "1",
	}
	resp, err := c.call(ctx, constants.GatewayOpQueryGroup, data, c.botID)
	if err != nil {
		return GroupInfo{}, err
	}

	var result groupResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return GroupInfo{}, apperrors.Wrap(err, apperrors.ErrInternal).WithDetail("operation", constants.GatewayOpQueryGroup)
	}
	return GroupInfo{Name: result.Nick}, nil
}

// GetMemberNick fetches the in-group display name of a member.
func (c *Client) GetMemberNick(ctx context.Context, groupID, memberID string) (string, error) {
	if groupID == "" || memberID == "" {
		return "", apperrors.ErrValidation.WithDetail("field", "group_id/member_id")
	}

	data := map[string]interface{}{
		"wxid":    groupID,
		"objWxid": memberID,
	}
	resp, err := c.call(ctx, constants.GatewayOpMemberNick, data, c.botID)
	if err != nil {
		return "", err
	}

	var result memberNickResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInternal).WithDetail("operation", constants.GatewayOpMemberNick)
	}
	return result.GroupNick, nil
}

func (c *Client) call(ctx context.Context, operation string, data map[string]interface{}, asAccount string) (*apiResponse, error) {
	doCall := func() (interface{}, error) {
		return c.doCall(ctx, operation, data, asAccount)
	}

	var (
		result interface{}
		err    error
	)
	if c.breaker != nil {
		result, err = c.breaker.ExecuteWithContext(ctx, doCall)
		c.breaker.RecordRequest(err == nil)
	} else {
		result, err = doCall()
	}

	if err != nil {
		metrics.GatewayAPIRequestsTotal.WithLabelValues(operation, "error").Inc()
		return nil, err
	}
	metrics.GatewayAPIRequestsTotal.WithLabelValues(operation, "success").Inc()
	return result.(*apiResponse), nil
}

func (c *Client) doCall(ctx context.Context, operation string, data map[string]interface{}, asAccount string) (*apiResponse, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	payload, err := json.Marshal(map[string]interface{}{
		"type": operation,
		"data": data,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal)
	}

	endpoint := c.baseURL + constants.GatewayAPIPath
	params := url.Values{}
	if c.safeKey != "" {
		params.Set("safekey", c.safeKey)
	}
	if asAccount != "" {
		params.Set("wxid", asAccount)
	}
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrServiceUnavailable).WithDetail("operation", operation)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return nil, apperrors.ErrServiceUnavailable.
			WithDetail("operation", operation).
			WithDetail("status", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrServiceUnavailable).WithDetail("operation", operation)
	}

	apiResp, err := decodeAPIResponse(body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal).WithDetail("operation", operation)
	}

	if apiResp.Code != constants.GatewaySuccessCode {
		return nil, apperrors.ErrServiceUnavailable.
			WithDetail("operation", operation).
			WithDetail("gateway_code", apiResp.Code).
			WithDetail("gateway_msg", apiResp.Msg)
	}

	return apiResp, nil
}

// decodeAPIResponse tolerates the stray control characters the gateway
// is known to leave inside string values.
func decodeAPIResponse(body []byte) (*apiResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		return &resp, nil
	}

	cleaned := stripControlChars(body)
	if err := json.Unmarshal(cleaned, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return &resp, nil
}

func stripControlChars(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			continue
		}
		if c == 0x7F {
			continue
		}
		out = append(out, c)
	}
	return out
}
