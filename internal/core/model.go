package core

// RawEvent is a message event as delivered by the event source. Field
// names follow the Slack Events API wire format; Ts stays a string to
// preserve the platform's sub-second precision.
type RawEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Channel string `json:"channel"`
	User    string `json:"user,omitempty"`
	Text    string `json:"text,omitempty"`
	Ts      string `json:"ts"`
}

// Message is a fully enriched chat message as stored and served to
// viewers. Text is rendered HTML. Immutable once constructed.
type Message struct {
	User      string `json:"user"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Text      string `json:"text"`
	Ts        string `json:"ts"`
}
