package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
)

// Credentials identify the bot to Slack.
type Credentials struct {
	ID    string
	Token string
}

var (
	idLine    = regexp.MustCompile(`^\s*SLACKBOT_ID\s*=\s*([a-zA-Z0-9_-]*)\s*(#.*)?$`)
	tokenLine = regexp.MustCompile(`^\s*SLACKBOT_TOKEN\s*=\s*([a-zA-Z0-9_-]*)\s*(#.*)?$`)
)

// LoadCredentials reads the bot identity file. It holds one entry per line,
// each optionally followed by a comment:
//
//	SLACKBOT_ID = U0123ABCD # the bot user
//	SLACKBOT_TOKEN = xoxb-...
//
// Both entries are required.
func LoadCredentials(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("opening identity file: %w", err)
	}
	defer f.Close()

	var creds Credentials
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if m := idLine.FindStringSubmatch(line); m != nil && creds.ID == "" {
			creds.ID = m[1]
		}
		if m := tokenLine.FindStringSubmatch(line); m != nil && creds.Token == "" {
			creds.Token = m[1]
		}
	}
	if err := sc.Err(); err != nil {
		return Credentials{}, fmt.Errorf("reading identity file: %w", err)
	}

	if creds.ID == "" || creds.Token == "" {
		return Credentials{}, fmt.Errorf("identity file %s must contain both lines matching %s and %s",
			path, idLine.String(), tokenLine.String())
	}
	return creds, nil
}
