package domain

import "time"

// Preferences are the optional user-supplied hints blended into the prompt.
type Preferences struct {
	Style       string `json:"style,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Occasion    string `json:"occasion,omitempty"`
	Mood        string `json:"mood,omitempty"`
	Description string `json:"description,omitempty"`
}

// GenerationRequest is one caption request: an embedded image plus preferences.
type GenerationRequest struct {
	Image       string
	Preferences Preferences
}

// GenerationResult is the structured output recovered from the model.
// Hashtags and Songs are never nil.
type GenerationResult struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
	Songs    []string `json:"songs"`
}

// Post is one persisted generation owned by a single user.
type Post struct {
	ID        uint64    `json:"id"`
	UserID    string    `json:"-"`
	Image     string    `json:"image"`
	ImageKey  string    `json:"-"`
	Caption   string    `json:"caption"`
	Hashtags  []string  `json:"hashtags"`
	Songs     []string  `json:"songs"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity is the authenticated caller resolved at the boundary.
type Identity struct {
	Subject string
	Email   string
}

// OwnerKey returns the identifier posts are scoped by.
func (i Identity) OwnerKey() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Subject
}
