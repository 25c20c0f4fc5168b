package domain

// PushToken is a device token registered for notifications.
type PushToken struct {
	UserID   string `db:"user_id" json:"user_id"`
	Token    string `db:"token" json:"token"`
	Platform string `db:"platform" json:"platform"`
}

// Notification is a push message addressed to one user.
type Notification struct {
	UserID string         `json:"user_id"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
}
