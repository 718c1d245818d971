package chat

// Role tags one unit of backend conversation context.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part carries the text payload of a Turn. The backend nests turn text one
// level deep, so the wire shape is {role, parts:[{text}]}.
type Part struct {
	Text string `json:"text"`
}

// Turn is one role-tagged unit of backend conversation history.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTurn builds a single-part turn.
func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// Text returns the concatenated payload of the turn.
func (t Turn) Text() string {
	if len(t.Parts) == 1 {
		return t.Parts[0].Text
	}
	var s string
	for _, p := range t.Parts {
		s += p.Text
	}
	return s
}

// Message is one transcript entry as shown to the user.
type Message struct {
	Text   string `json:"text"`
	IsUser bool   `json:"isUser"`
}
