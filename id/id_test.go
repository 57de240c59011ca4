package id

import "testing"

func TestParseUserID(t *testing.T) {
	u, err := ParseUserID("@alice:example.org", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Localpart() != "alice" {
		t.Errorf("localpart = %q, want alice", u.Localpart())
	}
	if string(u.Domain()) != "example.org" {
		t.Errorf("domain = %q, want example.org", u.Domain())
	}
}

func TestIsValidUserID(t *testing.T) {
	cases := map[string]bool{
		"@alice:example.org": true,
		"not-a-user-id":      false,
		"":                   false,
	}
	for in, want := range cases {
		if got := IsValidUserID(in); got != want {
			t.Errorf("IsValidUserID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestContentURIRoundTrip(t *testing.T) {
	c, err := ParseContentURI("mxc://example.org/abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.String() != "mxc://example.org/abc123" {
		t.Errorf("String() = %q", c.String())
	}
	dl := c.DownloadURL("https://matrix.example.org")
	if dl != "https://matrix.example.org/_matrix/client/v1/media/download/example.org/abc123" {
		t.Errorf("unexpected download url: %s", dl)
	}
}

func TestNormalizeHomeserverURL(t *testing.T) {
	if got := NormalizeHomeserverURL("  https://matrix.org/  "); got != "https://matrix.org" {
		t.Errorf("got %q", got)
	}
}
