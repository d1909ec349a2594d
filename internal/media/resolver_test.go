package media

import "testing"

var testBases = Bases{
	APIBaseURL:   "http://localhost:5001",
	MediaBaseURL: "http://localhost:5001/media",
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"absolute http", "http://cdn.example.com/a.png", "http://cdn.example.com/a.png"},
		{"absolute https", "https://cdn.example.com/a.png", "https://cdn.example.com/a.png"},
		{"relative media path", "/media/a.png", "http://localhost:5001/media/a.png"},
		{"bare filename", "voice.m4a", "http://localhost:5001/voice.m4a"},
		{"empty", "", "http://localhost:5001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.ref, testBases)
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

// Resolving an already-resolved URL must be a no-op.
func TestResolveIdempotent(t *testing.T) {
	once := Resolve("/media/x.ogg", testBases)
	twice := Resolve(once, testBases)
	if once != twice {
		t.Errorf("Resolve not idempotent: %q then %q", once, twice)
	}
}

func TestResolveMalformedBase(t *testing.T) {
	got := Resolve("/media/a.png", Bases{APIBaseURL: "::not a url"})
	if got != "/media/a.png" {
		t.Errorf("malformed base should return ref unchanged, got %q", got)
	}
}

func TestFileExtension(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"http://x/a.PNG", "png"},
		{"/media/clip.m4a", "m4a"},
		{"/media/clip.m4a?token=abc", "m4a"},
		{"http://x/a.gif#frag", "gif"},
		{"noext", ""},
		{"trailing.", ""},
		{"", ""},
		{"http://x/dir.v2/file", ""},
	}
	for _, tt := range tests {
		if got := FileExtension(tt.ref); got != tt.want {
			t.Errorf("FileExtension(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestIsGIF(t *testing.T) {
	if !IsGIF("/media/fun.gif") {
		t.Error("IsGIF(/media/fun.gif) = false, want true")
	}
	if IsGIF("/media/fun.png") {
		t.Error("IsGIF(/media/fun.png) = true, want false")
	}
}
