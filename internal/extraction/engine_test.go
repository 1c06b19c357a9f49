package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpipe/internal/logger"
)

type fakeCaller struct {
	reply string
	err   error
	calls int
	last  string
}

func (f *fakeCaller) Chat(ctx context.Context, call, sessionID, systemPrompt, userMessage string) (string, error) {
	f.calls++
	f.last = userMessage
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newEngine(caller ModelCaller) *Engine {
	return NewEngine(caller, "extract prompt", "split prompt", logger.NopLogger())
}

func TestCleanModelResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain json",
			in:   `{"type":"出"}`,
			want: `{"type":"出"}`,
		},
		{
			name: "json fence",
			in:   "```json\n{\"type\":\"出\"}\n```",
			want: `{"type":"出"}`,
		},
		{
			name: "python fence",
			in:   "```python\n[\"一级建造师市政\"]\n```",
			want: `["一级建造师市政"]`,
		},
		{
			name: "bare fence",
			in:   "```\n[1]\n```",
			want: "[1]",
		},
		{
			name: "surrounding whitespace",
			in:   "  \n```json\n[]\n```  \n",
			want: "[]",
		},
		{
			name: "no closing fence",
			in:   "```json\n{}",
			want: "{}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanModelResponse(tt.in))
		})
	}
}

func TestExtractListingsArray(t *testing.T) {
	caller := &fakeCaller{reply: "```json\n" + `[
		{"type":"寻","certificate":"二级建造师机电","social_security":"社保不转","location":"浙江绍兴","price":20000,"other_info":"配合出场","original_info":"寻二级建造师机电，浙江绍兴，价格2万"},
		{"type":"出","certificate":"二级建造师市政","social_security":null,"location":"江苏南京","price":"15000","other_info":null,"original_info":"出二级建造师市政，江苏南京"}
	]` + "\n```"}

	listings, err := newEngine(caller).ExtractListings(context.Background(), "two line message")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "寻", listings[0].DealType)
	assert.Equal(t, "二级建造师机电", listings[0].CertificatesRaw)
	assert.Equal(t, "社保不转", listings[0].SocialSecurityTerms)
	assert.Equal(t, int64(20000), listings[0].Price)

	assert.Equal(t, "出", listings[1].DealType)
	assert.Equal(t, int64(15000), listings[1].Price)
	assert.Empty(t, listings[1].SocialSecurityTerms)
}

func TestExtractListingsSingleObject(t *testing.T) {
	caller := &fakeCaller{reply: `{"type":"出","certificate":"一级建造师建筑","price":null,"original_info":"出一建建筑"}`}

	listings, err := newEngine(caller).ExtractListings(context.Background(), "出一建建筑")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "出", listings[0].DealType)
	assert.Zero(t, listings[0].Price)
	assert.Equal(t, "出一建建筑", listings[0].OriginalInfo)
}

func TestExtractListingsUnparseable(t *testing.T) {
	caller := &fakeCaller{reply: "抱歉，我无法处理这条消息。"}

	_, err := newEngine(caller).ExtractListings(context.Background(), "content")
	assert.Error(t, err)
}

func TestExtractListingsModelError(t *testing.T) {
	caller := &fakeCaller{err: errors.New("model down")}

	_, err := newEngine(caller).ExtractListings(context.Background(), "content")
	assert.Error(t, err)
}

func TestSplitCertificatesFlatList(t *testing.T) {
	caller := &fakeCaller{reply: `["一级建造师公路", "一级建造师水利", "中级工程师带B证"]`}

	certs, err := newEngine(caller).SplitCertificates(context.Background(), "一级公路+水利+中工带B")
	require.NoError(t, err)
	assert.Equal(t, []string{"一级建造师公路", "一级建造师水利", "中级工程师带B证"}, certs)
	assert.Equal(t, "一级公路+水利+中工带B", caller.last)
}

func TestSplitCertificatesNestedList(t *testing.T) {
	caller := &fakeCaller{reply: "```python\n[[\"二级建造师市政\", \"中级职称\"]]\n```"}

	certs, err := newEngine(caller).SplitCertificates(context.Background(), "二级市政+中级职称")
	require.NoError(t, err)
	assert.Equal(t, []string{"二级建造师市政", "中级职称"}, certs)
}

func TestSplitCertificatesCommaFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{
			name:  "fullwidth commas",
			reply: "一级建造师公路，一级建造师水利",
			want:  []string{"一级建造师公路", "一级建造师水利"},
		},
		{
			name:  "quasi list with single quotes",
			reply: "['二级建造师市政', '中级职称']",
			want:  []string{"二级建造师市政", "中级职称"},
		},
		{
			name:  "mixed commas",
			reply: "a,b，c",
			want:  []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{reply: tt.reply}
			certs, err := newEngine(caller).SplitCertificates(context.Background(), "raw")
			require.NoError(t, err)
			assert.Equal(t, tt.want, certs)
		})
	}
}

func TestSplitCertificatesEmptyInputSkipsModel(t *testing.T) {
	caller := &fakeCaller{reply: `["x"]`}

	certs, err := newEngine(caller).SplitCertificates(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, certs)
	assert.Zero(t, caller.calls)
}

func TestSplitCertificatesGarbageYieldsNil(t *testing.T) {
	caller := &fakeCaller{reply: "   "}

	certs, err := newEngine(caller).SplitCertificates(context.Background(), "raw")
	require.NoError(t, err)
	assert.Nil(t, certs)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{`20000`, 20000},
		{`"15000"`, 15000},
		{`"3.5"`, 3},
		{`null`, 0},
		{`"两万"`, 0},
		{``, 0},
	}

	for _, tt := range tests {
		got := parsePrice([]byte(tt.raw))
		assert.Equal(t, tt.want, got, "raw %q", tt.raw)
	}
}
