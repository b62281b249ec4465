package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snwatch/models"
	"snwatch/notify"
)

const telegramOK = `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":12345}}}`

// telegramServer answers sendMessage with replies[i] for the i-th request,
// repeating the last reply once they run out.
type telegramServer struct {
	t       *testing.T
	mu      sync.Mutex
	replies []string
	forms   []url.Values
}

func (s *telegramServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !assert.Equal(s.t, "/botTOKEN/sendMessage", r.URL.Path) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = r.ParseForm()
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := telegramOK
	if n := len(s.replies); n > 0 {
		reply = s.replies[min(len(s.forms), n-1)]
	}
	s.forms = append(s.forms, r.PostForm)
	_, _ = w.Write([]byte(reply))
}

func (s *telegramServer) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.forms))
	for i, f := range s.forms {
		out[i] = f.Get("text")
	}
	return out
}

func newTelegram(t *testing.T, replies ...string) (*notify.Telegram, *telegramServer) {
	t.Helper()
	ts := &telegramServer{t: t, replies: replies}
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)
	return notify.NewTelegram(srv.URL+"/", "TOKEN"), ts
}

func TestTelegramSendReply(t *testing.T) {
	tg, ts := newTelegram(t)
	require.True(t, tg.Ready())

	id, ok := tg.UserID(&models.User{TelegramID: models.Ptr[int64](12345)})
	require.True(t, ok)
	assert.Equal(t, "12345", id)
	_, ok = tg.UserID(&models.User{})
	assert.False(t, ok)

	err := tg.SendReply(context.Background(), id, "hi *there*", notify.SendOptions{
		Links: []notify.Link{{Text: "explorer", URL: "https://x/y"}},
	})
	require.NoError(t, err)
	require.Len(t, ts.forms, 1)
	assert.Equal(t, "12345", ts.forms[0].Get("chat_id"))
	assert.Equal(t, "Markdown", ts.forms[0].Get("parse_mode"))
	assert.Equal(t, "hi *there*", ts.forms[0].Get("text"))

	var markup struct {
		InlineKeyboard [][]struct {
			Text string `json:"text"`
			URL  string `json:"url"`
		} `json:"inline_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(ts.forms[0].Get("reply_markup")), &markup))
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, "https://x/y", markup.InlineKeyboard[0][0].URL)

	long := strings.Repeat("word ", 1000)
	require.NoError(t, tg.SendReply(context.Background(), id, long, notify.SendOptions{}))
	assert.Len(t, ts.forms, 3)
}

func TestTelegramRejectsNonNumericRecipient(t *testing.T) {
	tg, ts := newTelegram(t)
	require.Error(t, tg.SendReply(context.Background(), "alice", "x", notify.SendOptions{}))
	assert.Empty(t, ts.forms)
}

func TestTelegramBlocked(t *testing.T) {
	tg, _ := newTelegram(t, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)

	err := tg.SendReply(context.Background(), "1", "x", notify.SendOptions{})
	assert.True(t, errors.Is(err, notify.ErrBlocked))
}

func TestTelegramOtherError(t *testing.T) {
	tg, _ := newTelegram(t, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)

	err := tg.SendReply(context.Background(), "1", "x", notify.SendOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, notify.ErrBlocked))
}

func TestTelegramWaitsOutRetryAfter(t *testing.T) {
	tg, ts := newTelegram(t,
		`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":1}}`,
		telegramOK)

	require.NoError(t, tg.SendReply(context.Background(), "1", "x", notify.SendOptions{}))
	assert.Len(t, ts.forms, 2)
}

func TestTelegramRetryAfterHonoursContext(t *testing.T) {
	tg, ts := newTelegram(t,
		`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 20","parameters":{"retry_after":20}}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tg.SendReply(ctx, "1", "x", notify.SendOptions{})
	require.Error(t, err)
	assert.LessOrEqual(t, len(ts.forms), 1)
}

func TestTelegramLaterChunkFailureStillCountsAsDelivered(t *testing.T) {
	tg, ts := newTelegram(t,
		telegramOK,
		`{"ok":false,"error_code":400,"description":"Bad Request: message is too long"}`)

	long := strings.Repeat("word ", 1000)
	require.NoError(t, tg.SendReply(context.Background(), "1", long, notify.SendOptions{}))
	assert.Len(t, ts.forms, 2, "the first chunk is not resent")
}

func TestTelegramMeasuresUTF16Units(t *testing.T) {
	tg, ts := newTelegram(t)

	// 3000 code points but 4500 UTF-16 units
	text := strings.Repeat("🚨 ", 1500)
	require.NoError(t, tg.SendReply(context.Background(), "1", text, notify.SendOptions{}))

	texts := ts.texts()
	require.Len(t, texts, 2)
	for _, chunk := range texts {
		assert.LessOrEqual(t, len(utf16.Encode([]rune(chunk))), 4096)
	}
}

func TestTelegramMarkup(t *testing.T) {
	tg := notify.NewTelegram("", "")
	assert.False(t, tg.Ready())
	assert.Equal(t, "*b*", tg.FormatBold("b"))
	assert.Equal(t, "_i_", tg.FormatItalic("i"))
	assert.Equal(t, `a\_b\*c`, tg.Escape("a_b*c"))
}

func TestTelegramEntitiesNeverContainEscapes(t *testing.T) {
	tg := notify.NewTelegram("", "")
	cases := map[string]string{
		"my_node":   `_my_\__node_`,
		"_leading":  `\__leading_`,
		"trailing_": `_trailing_\_`,
		"a__b":      `_a_\_\__b_`,
		"a*b`c":     "_a*b`c_",
	}
	for alias, want := range cases {
		assert.Equal(t, want, tg.FormatItalic(alias), alias)
	}
	assert.Equal(t, `*x*\**y*`, tg.FormatBold("x*y"))
}

// discordServer records DM channel opens and message contents, answering
// message posts with replies[i] for the i-th post.
type discordServer struct {
	t        *testing.T
	mu       sync.Mutex
	opened   int
	contents []string
	replies  []func(w http.ResponseWriter)
}

func (s *discordServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(s.t, "Bot TOKEN", r.Header.Get("Authorization"))
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case r.URL.Path == "/users/@me/channels":
		s.opened++
		_, _ = w.Write([]byte(`{"id":"chan-1","type":1}`))
	case r.URL.Path == "/channels/chan-1/messages":
		var body map[string]any
		assert.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))
		n := len(s.contents)
		content, _ := body["content"].(string)
		s.contents = append(s.contents, content)
		if n < len(s.replies) && s.replies[n] != nil {
			s.replies[n](w)
			return
		}
		_, _ = w.Write([]byte(`{"id":"m1","channel_id":"chan-1","content":"ok"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newDiscord(t *testing.T, replies ...func(w http.ResponseWriter)) (*notify.Discord, *discordServer) {
	t.Helper()
	ds := &discordServer{t: t, replies: replies}
	srv := httptest.NewServer(ds)
	t.Cleanup(srv.Close)
	return notify.NewDiscord(srv.URL, "TOKEN"), ds
}

func discordReply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestDiscordSendReply(t *testing.T) {
	dc, ds := newDiscord(t)
	id, ok := dc.UserID(&models.User{DiscordID: models.Ptr("999")})
	require.True(t, ok)

	require.NoError(t, dc.SendReply(context.Background(), id, "first", notify.SendOptions{
		Links: []notify.Link{{Text: "explorer", URL: "https://x/y"}},
	}))
	require.NoError(t, dc.SendReply(context.Background(), id, "second", notify.SendOptions{}))

	assert.Equal(t, 1, ds.opened, "dm channel is cached")
	require.Len(t, ds.contents, 2)
	assert.Equal(t, "first\nexplorer: <https://x/y>", ds.contents[0])
	assert.Equal(t, "**b** *i*", dc.FormatBold("b")+" "+dc.FormatItalic("i"))
	assert.Equal(t, `*my\_node*`, dc.FormatItalic("my_node"))
}

func TestDiscordBlocked(t *testing.T) {
	dc, _ := newDiscord(t, discordReply(http.StatusForbidden, `{"code":50007,"message":"Cannot send messages to this user"}`))

	err := dc.SendReply(context.Background(), "5", "x", notify.SendOptions{})
	assert.True(t, errors.Is(err, notify.ErrBlocked))
}

func TestDiscordOtherError(t *testing.T) {
	dc, _ := newDiscord(t, discordReply(http.StatusBadRequest, `{"code":50035,"message":"Invalid Form Body"}`))

	err := dc.SendReply(context.Background(), "5", "x", notify.SendOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, notify.ErrBlocked))
}

func TestDiscordRateLimitIsRetried(t *testing.T) {
	dc, ds := newDiscord(t, discordReply(http.StatusTooManyRequests,
		`{"message":"You are being rate limited.","retry_after":0.01,"global":false}`))

	require.NoError(t, dc.SendReply(context.Background(), "5", "x", notify.SendOptions{}))
	assert.Equal(t, []string{"x", "x"}, ds.contents)
}

func TestDiscordLaterChunkFailureStillCountsAsDelivered(t *testing.T) {
	dc, ds := newDiscord(t, nil, discordReply(http.StatusBadRequest, `{"code":50035,"message":"Invalid Form Body"}`))

	long := strings.Repeat("word ", 500)
	require.NoError(t, dc.SendReply(context.Background(), "5", long, notify.SendOptions{}))
	assert.Len(t, ds.contents, 2, "the first chunk is not resent")
}
