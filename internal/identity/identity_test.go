package identity

import "testing"

func TestTagRoundTrip(t *testing.T) {
	tag := Tag(123456789)
	if tag != "#ID123456789" {
		t.Fatalf("Tag() = %q", tag)
	}
	id, ok := ParseTag("💬 New message from Ann " + tag + "\nhello")
	if !ok || id != 123456789 {
		t.Fatalf("ParseTag() = %d, %v", id, ok)
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   int64
		wantOK bool
	}{
		{"no tag", "hello there", 0, false},
		{"empty", "", 0, false},
		{"lowercase not a tag", "#id42", 0, false},
		{"zero", "#ID0", 0, false},
		{"last wins", "re #ID1 forwarded from #ID77", 77, true},
		{"trailing punctuation", "user #ID42.", 42, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTag(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("ParseTag(%q) = %d, %v; want %d, %v", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := map[string]string{
		"abc123":        "abc123",
		"  batch77 ":    "batch77",
		"bad token":     "",
		"":              "",
		"../etc/passwd": "",
		"Ab_9-xY":       "Ab_9-xY",
	}
	for in, want := range tests {
		if got := SanitizeToken(in); got != want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}
