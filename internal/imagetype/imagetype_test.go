package imagetype

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func TestIsAllowedMIME(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"image/png", true},
		{"image/jpg", true},
		{"image/jpeg", true},
		{"image/webp", true},
		{"IMAGE/PNG", true},
		{"image/jpeg; charset=binary", true},
		{"image/gif", false},
		{"text/plain", false},
		{"application/octet-stream", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsAllowedMIME(tt.contentType); got != tt.want {
			t.Errorf("IsAllowedMIME(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "photo.png", "photo.png"},
		{"traversal", "../../evil.jpg", "evil.jpg"},
		{"windows traversal", `..\..\windows\evil.jpg`, "windows_evil.jpg"},
		{"absolute", "/etc/passwd", "etc_passwd"},
		{"spaces", "my  holiday photo.JPG", "my_holiday_photo.JPG"},
		{"unicode folded", "café.webp", "cafe.webp"},
		{"non latin dropped", "фото.png", "png"},
		{"unsafe characters", "a$b%c?.jpeg", "abc.jpeg"},
		{"only dots", "...", ""},
		{"device name", "con.png", "_con.png"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.want {
				t.Fatalf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStoredExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"a.png", ".png"},
		{"b.webp", ".webp"},
		{"c.JPEG", ".jpeg"},
		{"archive.tar.jpg", ".jpg"},
		{"noextension", ".jpg"},
		{"image.gif", ".jpg"},
		{"../../evil.jpg", ".jpg"},
		{"../../evil.png", ".png"},
		{"", ".jpg"},
	}

	for _, tt := range tests {
		if got := StoredExtension(tt.filename); got != tt.want {
			t.Errorf("StoredExtension(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestDetect(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	detected, ok := Detect(buf.Bytes())
	if !ok || detected != "image/png" {
		t.Fatalf("expected image/png to be accepted, got %q (%v)", detected, ok)
	}

	detected, ok = Detect([]byte("just some text"))
	if ok {
		t.Fatalf("expected text to be rejected, detected %q", detected)
	}
}
