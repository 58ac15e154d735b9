package models

import "time"

// DocumentRef is a remote file handle together with the filename the user
// originally uploaded it under.
type DocumentRef struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

// UsageRecord is one token-usage datapoint, keyed by the acting user.
type UsageRecord struct {
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	TokensUsed int       `json:"tokens_used"`
	Date       time.Time `json:"date"`
}

// UserUsage is an aggregate of usage records for one user.
type UserUsage struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	TotalTokens int64  `json:"total_tokens"`
	Requests    int64  `json:"requests"`
}

// DialogueMessage is one turn of a remote dialogue, as shown by /history.
type DialogueMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
