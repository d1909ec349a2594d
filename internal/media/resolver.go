// Package media resolves message media references to fetchable URLs.
//
// References arrive either absolute ("https://...") or relative to the
// backend ("/media/abc.png"). Resolution is pure string work and never
// fails: a reference that cannot be turned into a URL is returned as-is so
// callers can still attempt a direct fetch.
package media

import (
	"net/url"
	"strings"
)

// Bases holds the environment-provided base URLs used for resolution.
type Bases struct {
	APIBaseURL   string
	MediaBaseURL string
}

// Resolve turns ref into an absolute fetchable URL. Absolute refs are
// returned unchanged, so Resolve is idempotent for them.
func Resolve(ref string, bases Bases) string {
	if IsAbsolute(ref) {
		return ref
	}
	base, err := url.Parse(bases.APIBaseURL)
	if err != nil || base.Scheme == "" {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}

// IsAbsolute reports whether ref carries an http(s) scheme.
func IsAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// FileExtension extracts the lowercase extension from a URL or path,
// ignoring query and fragment. Returns "" when there is none.
func FileExtension(ref string) string {
	if ref == "" {
		return ""
	}
	s := ref
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	i := strings.LastIndex(s, ".")
	if i < 0 || i == len(s)-1 {
		return ""
	}
	return strings.ToLower(s[i+1:])
}

// IsGIF reports whether the reference points at an animated GIF.
func IsGIF(ref string) bool {
	return FileExtension(ref) == "gif"
}
