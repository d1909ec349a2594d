package backend

import (
	"encoding/json"
	"time"

	"github.com/mushfiqur/botadmin/internal/chat"
)

// MaxAttachmentSize is the per-file upload ceiling enforced client-side.
const MaxAttachmentSize = 50 << 20

// Attachment is one file to upload with a chat message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// HistoryResponse is the confirmed message log for one chat. The backend
// normally returns an array of [sender, text, timestamp] triples; anything
// else is carried verbatim in Opaque and rendered as a single system
// message.
type HistoryResponse struct {
	Structured bool
	Records    []chat.RawRecord
	Opaque     string
}

// SendError is a rejection from the send endpoint, carrying the backend's
// human-readable reason.
type SendError struct {
	Message string
}

func (e *SendError) Error() string {
	return e.Message
}

// WireUser is one row of the dashboard user roster as the backend encodes
// it. user_id arrives as a JSON number for some bot platforms, so it is
// decoded via json.Number and normalized to a string.
type WireUser struct {
	UserID   json.Number `json:"user_id"`
	FullName string      `json:"full_name"`
	Username string      `json:"username"`
	PhotoURL string      `json:"photo_url"`
	IsOnline bool        `json:"is_online"`
	JoinDate string      `json:"join_date"`
	Label    string      `json:"label"`
}

// ToUser converts the wire row to the domain user type.
func (w WireUser) ToUser() chat.User {
	return chat.User{
		ID:       w.UserID.String(),
		FullName: w.FullName,
		Username: w.Username,
		PhotoURL: w.PhotoURL,
		IsOnline: w.IsOnline,
		JoinDate: w.JoinDate,
		Label:    w.Label,
	}
}

// UsersPage is one page of the roster.
type UsersPage struct {
	Users    []WireUser `json:"users"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// Stats is the dashboard headline counters.
type Stats struct {
	TotalUsers    int       `json:"total_users"`
	ActiveUsers   int       `json:"active_users"`
	TotalMessages int       `json:"total_messages"`
	NewJoinsToday int       `json:"new_joins_today"`
	FetchedAt     time.Time `json:"-"`
}
