package chat

import (
	"strings"

	"github.com/mushfiqur/botadmin/internal/media"
)

// Tag prefixes recognized in raw message text, checked in order; the first
// match wins and is stripped to obtain the media reference.
var tagOrder = []string{"[gif]", "[image]", "[video]", "[voice]", "[audio]", "[file]"}

var audioExtensions = map[string]bool{
	"m4a":  true,
	"mp3":  true,
	"wav":  true,
	"ogg":  true,
	"webm": true,
}

// MapSender converts a wire sender string to the Sender enum. The backend
// uses "admin" for operator replies and "system" for synthetic notices;
// everything else is the remote user.
func MapSender(s string) Sender {
	switch s {
	case "admin":
		return SenderOperator
	case "system":
		return SenderSystem
	default:
		return SenderRemote
	}
}

// Classify maps a raw record to a typed message. It is a pure function:
// no I/O, same input always yields the same output. Untagged text (empty
// included) passes through verbatim as KindText.
func Classify(raw RawRecord) Message {
	msg := Message{
		Sender:    MapSender(raw.Sender),
		Timestamp: raw.Timestamp,
	}

	for _, tag := range tagOrder {
		if !strings.HasPrefix(raw.Text, tag) {
			continue
		}
		ref := raw.Text[len(tag):]
		msg.Ref = ref
		msg.Resolvable = isResolvable(ref)
		switch tag {
		case "[gif]", "[image]":
			msg.Kind = KindImage
			msg.IsAnimated = tag == "[gif]" || media.IsGIF(ref)
		case "[video]":
			msg.Kind = KindVideo
		case "[voice]":
			msg.Kind = KindAudio
			msg.AudioHint = "voice"
		case "[audio]":
			msg.Kind = KindAudio
			msg.AudioHint = "audio"
		case "[file]":
			msg.Kind = KindFile
		}
		return msg
	}

	msg.Kind = KindText
	msg.Text = raw.Text
	return msg
}

// isResolvable reports whether a media reference has a shape we know how
// to fetch: absolute http(s), the backend media path, or a bare audio
// filename. Unresolvable refs still classify; they just render as
// "not available".
func isResolvable(ref string) bool {
	if media.IsAbsolute(ref) {
		return true
	}
	if strings.HasPrefix(ref, "/media/") {
		return true
	}
	return audioExtensions[media.FileExtension(ref)]
}
