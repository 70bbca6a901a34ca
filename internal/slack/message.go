package slack

import "encoding/json"

// File is an attachment on a message.
type File struct {
	Name       string `json:"name,omitempty"`
	URLPrivate string `json:"url_private,omitempty"`
}

// Message is one event read from Slack. Only the fields the bot looks at
// are decoded; Raw keeps the whole event for watch mode.
type Message struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Text    string `json:"text,omitempty"`
	User    string `json:"user,omitempty"`
	Channel string `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
	File    *File  `json:"file,omitempty"`
	Files   []File `json:"files,omitempty"`

	Raw map[string]any `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the full event in Raw.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(p)
	m.Raw = raw
	return nil
}

// FileURL returns the private URL of the attached file, or "" if the
// message has none.
func (m Message) FileURL() string {
	if m.File != nil && m.File.URLPrivate != "" {
		return m.File.URLPrivate
	}
	if len(m.Files) > 0 {
		return m.Files[0].URLPrivate
	}
	return ""
}

// Fields returns the event as a generic map, falling back to the decoded
// fields for messages that were not read off the wire.
func (m Message) Fields() map[string]any {
	if m.Raw != nil {
		return m.Raw
	}
	out := map[string]any{"type": m.Type}
	for k, v := range map[string]string{
		"subtype": m.Subtype, "text": m.Text, "user": m.User, "channel": m.Channel, "ts": m.TS,
	} {
		if v != "" {
			out[k] = v
		}
	}
	if url := m.FileURL(); url != "" {
		out["file"] = map[string]any{"url_private": url}
	}
	return out
}
