package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"snwatch/models"
)

const discordMaxMessage = 2000

// Discord sends direct messages through the Discord REST API. The gateway is
// never opened.
type Discord struct {
	session *discordgo.Session
	token   string

	mu       sync.Mutex
	channels map[string]string // user id -> DM channel id
}

// NewDiscord builds a REST-only session. apiURL replaces the library's
// built-in API root when set.
func NewDiscord(apiURL, token string) *Discord {
	// New never fails for a plain token.
	session, _ := discordgo.New("Bot " + token)
	var transport http.RoundTripper = http.DefaultTransport
	if base := strings.TrimRight(apiURL, "/"); base != "" {
		transport = apiRootTransport{root: base + "/", next: transport}
	}
	session.Client = &http.Client{Timeout: 15 * time.Second, Transport: transport}
	return &Discord{
		session:  session,
		token:    token,
		channels: make(map[string]string),
	}
}

// apiRootTransport redirects requests aimed at discordgo's API root to root.
type apiRootTransport struct {
	root string
	next http.RoundTripper
}

func (t apiRootTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rest, ok := strings.CutPrefix(req.URL.String(), discordgo.EndpointAPI)
	if !ok {
		return t.next.RoundTrip(req)
	}
	target, err := url.Parse(t.root + rest)
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.URL = target
	req.Host = target.Host
	return t.next.RoundTrip(req)
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Ready() bool { return d.token != "" }

func (d *Discord) FormatBold(text string) string { return "**" + d.Escape(text) + "**" }

func (d *Discord) FormatItalic(text string) string { return "*" + d.Escape(text) + "*" }

var discordEscaper = strings.NewReplacer("\\", "\\\\", "*", "\\*", "_", "\\_", "~", "\\~", "`", "\\`", "|", "\\|")

func (d *Discord) Escape(text string) string { return discordEscaper.Replace(text) }

func (d *Discord) UserID(user *models.User) (string, bool) {
	if user == nil || user.DiscordID == nil || *user.DiscordID == "" {
		return "", false
	}
	return *user.DiscordID, true
}

func (d *Discord) dmChannel(ctx context.Context, userID string) (string, error) {
	d.mu.Lock()
	id, ok := d.channels[userID]
	d.mu.Unlock()
	if ok {
		return id, nil
	}

	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", discordError("open dm", err)
	}

	d.mu.Lock()
	d.channels[userID] = ch.ID
	d.mu.Unlock()
	return ch.ID, nil
}

func discordError(op string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil &&
		restErr.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser {
		return ErrBlocked
	}
	return fmt.Errorf("discord: %s: %w", op, err)
}

func (d *Discord) SendReply(ctx context.Context, recipient, text string, opts SendOptions) error {
	channel, err := d.dmChannel(ctx, recipient)
	if err != nil {
		return err
	}

	for _, l := range opts.Links {
		text += fmt.Sprintf("\n%s: <%s>", l.Text, l.URL)
	}

	return sendChunks(d.Name(), SplitMessage(text, discordMaxMessage), func(_ int, chunk string) error {
		if _, err := d.session.ChannelMessageSend(channel, chunk, discordgo.WithContext(ctx)); err != nil {
			return discordError("send", err)
		}
		return nil
	})
}
