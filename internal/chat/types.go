package chat

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderOperator Sender = "operator"
	SenderRemote   Sender = "remote"
	SenderSystem   Sender = "system"
)

// PayloadKind tags the renderable variant of a message.
type PayloadKind string

const (
	KindText  PayloadKind = "text"
	KindImage PayloadKind = "image"
	KindVideo PayloadKind = "video"
	KindAudio PayloadKind = "audio"
	KindFile  PayloadKind = "file"
)

// State is the per-session sync state.
type State string

const (
	StateIdle    State = "IDLE"
	StateLoading State = "LOADING"
	StateSynced  State = "SYNCED"
)

// User is a denormalized profile snapshot of a remote party. It is copied
// into a session when the session is opened and refreshed only on reopen.
type User struct {
	ID         string
	FullName   string
	Username   string
	PhotoURL   string
	IsOnline   bool
	JoinDate   string
	Label      string
	InviteLink string
}

// DisplayName returns the best human-readable name for the user.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.ID
}

// RawRecord is one element of a confirmed history response before
// classification.
type RawRecord struct {
	Sender    string
	Text      string
	Timestamp *time.Time
}

// Message is a classified, renderable message.
type Message struct {
	Sender Sender
	Kind   PayloadKind

	// Text carries the message body for KindText; for media kinds it is
	// empty and Ref carries the media reference instead.
	Text string
	Ref  string

	// IsAnimated is set for Image payloads tagged [gif] or with a .gif ref.
	IsAnimated bool
	// AudioHint distinguishes [voice] from [audio] payloads for rendering.
	AudioHint string
	// Resolvable is false when the media reference matched no known shape;
	// the renderer shows a "not available" placeholder instead of fetching.
	Resolvable bool

	// Timestamp is nil when the record carried none; date separators and
	// time labels are simply omitted then.
	Timestamp *time.Time

	// Pending marks a locally-inserted operator message awaiting server
	// confirmation. Pending messages only ever sit at the tail of a
	// session's message list.
	Pending bool
}
