// Package slack is a thin adapter over the Slack Web API and the RTM
// websocket: just enough to read messages, look up users, download
// attachments and post replies.
package slack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"go.uber.org/zap"
)

// DefaultAPIURL is the base URL of the Slack Web API.
const DefaultAPIURL = slackapi.APIURL

// ErrUntrustedURL is returned by Fetch for URLs the bot token must not be
// sent to.
var ErrUntrustedURL = errors.New("slack: refusing to send credentials to untrusted url")

// Options configures a Client.
type Options struct {
	Token      string
	APIURL     string   // defaults to DefaultAPIURL
	FileHosts  []string // hosts Fetch may send the token to
	HTTPClient *http.Client
}

// Client talks to the Slack Web API with a bot token.
type Client struct {
	api       *slackapi.Client
	fileHosts []string
	logger    *zap.Logger
}

// NewClient creates a Client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	apiURL := strings.TrimRight(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = strings.TrimRight(DefaultAPIURL, "/")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	hosts := make([]string, len(opts.FileHosts))
	for i, h := range opts.FileHosts {
		hosts[i] = strings.ToLower(h)
	}
	return &Client{
		api: slackapi.New(opts.Token,
			slackapi.OptionAPIURL(apiURL+"/"),
			slackapi.OptionHTTPClient(httpClient),
		),
		fileHosts: hosts,
		logger:    logger.With(zap.String("component", "slack")),
	}
}

// UserName returns the handle of the user with the given ID.
func (c *Client) UserName(ctx context.Context, id string) (string, error) {
	user, err := c.api.GetUserInfoContext(ctx, id)
	if err != nil {
		return "", fmt.Errorf("slack users.info: %w", err)
	}
	if user.Name == "" {
		return "", fmt.Errorf("slack users.info: user %s has no name", id)
	}
	return user.Name, nil
}

// UserTag renders a mention of the user for a reply. A failed lookup falls
// back to the raw ID; a message without a user gets no tag.
func (c *Client) UserTag(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	name, err := c.UserName(ctx, id)
	if err != nil {
		c.logger.Debug("user lookup failed, tagging by id", zap.String("user", id), zap.Error(err))
		name = id
	}
	return "<@" + name + ">"
}

// PostMessage posts text to channel as the bot user.
func (c *Client) PostMessage(ctx context.Context, channel, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, channel,
		slackapi.MsgOptionText(text, false),
		slackapi.MsgOptionAsUser(true),
	)
	if err != nil {
		return fmt.Errorf("slack chat.postMessage: %w", err)
	}
	return nil
}

// RTMSession is the result of rtm.connect.
type RTMSession struct {
	URL  string
	Self string // the bot's own user ID
}

// ConnectRTM asks Slack for a websocket URL for the real time messaging API.
func (c *Client) ConnectRTM(ctx context.Context) (RTMSession, error) {
	info, wsURL, err := c.api.ConnectRTMContext(ctx)
	if err != nil {
		return RTMSession{}, fmt.Errorf("slack rtm.connect: %w", err)
	}
	if wsURL == "" {
		return RTMSession{}, fmt.Errorf("slack rtm.connect: no websocket url in response")
	}
	session := RTMSession{URL: wsURL}
	if info != nil && info.User != nil {
		session.Self = info.User.ID
	}
	return session, nil
}

// Fetch downloads a private file. The bot token is only attached for https
// URLs on one of the configured file hosts; anything else fails with
// ErrUntrustedURL before a request is made.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.trusted(rawURL); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := c.api.GetFileContext(ctx, rawURL, &buf); err != nil {
		return nil, fmt.Errorf("fetching file: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Client) trusted(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrustedURL, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUntrustedURL, u.Scheme)
	}
	if !slices.Contains(c.fileHosts, strings.ToLower(u.Hostname())) {
		return fmt.Errorf("%w: host %q", ErrUntrustedURL, u.Hostname())
	}
	return nil
}
