package bridge

// Inbound is a message event from the chat gateway.
type Inbound struct {
	Type       string `json:"type"`
	Channel    string `json:"channel"`
	Sender     string `json:"sender"`      // stable sender ID
	SenderName string `json:"sender_name"` // display name, may be empty
	DM         bool   `json:"dm"`
	Mention    bool   `json:"mention"` // true when the agent was mentioned directly
	Content    string `json:"content"`
}

// Outbound is a message the bridge sends through the gateway.
type Outbound struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Content string `json:"content"`
}

// authMessage opens the gateway session.
type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// authReply is the gateway's response to authentication.
type authReply struct {
	Type string `json:"type"`
}
