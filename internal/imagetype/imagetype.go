// Package imagetype decides which uploaded images are acceptable and how
// their stored names are derived.
package imagetype

import (
	"mime"
	"regexp"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"
)

// DefaultExtension is used when the client filename carries no usable extension.
const DefaultExtension = ".jpg"

// SniffLength is the number of leading bytes needed by Detect.
const SniffLength = 3072

var allowedMIMETypes = map[string]struct{}{
	"image/png":  {},
	"image/jpg":  {},
	"image/jpeg": {},
	"image/webp": {},
}

var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"webp": {},
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

var windowsDeviceNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {},
}

// MediaType normalizes a Content-Type header value to its lower-cased media type.
func MediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// IsAllowedMIME reports whether the declared Content-Type is an accepted image type.
func IsAllowedMIME(contentType string) bool {
	_, ok := allowedMIMETypes[MediaType(contentType)]
	return ok
}

// SanitizeFilename reduces a client supplied filename to a flat, ASCII-only
// name that cannot escape its directory. The result may be empty.
func SanitizeFilename(filename string) string {
	filename = norm.NFKD.String(filename)
	filename = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, filename)

	filename = strings.NewReplacer("/", " ", `\`, " ").Replace(filename)
	filename = strings.Join(strings.Fields(filename), "_")
	filename = unsafeFilenameChars.ReplaceAllString(filename, "")
	filename = strings.Trim(filename, "._")

	if filename != "" {
		base := strings.ToUpper(strings.SplitN(filename, ".", 2)[0])
		if _, reserved := windowsDeviceNames[base]; reserved {
			filename = "_" + filename
		}
	}
	return filename
}

// Extension returns the lower-cased extension (with dot) of an already
// sanitized filename when it is an accepted image extension, else DefaultExtension.
func Extension(sanitized string) string {
	i := strings.LastIndexByte(sanitized, '.')
	if i < 0 {
		return DefaultExtension
	}
	ext := strings.ToLower(sanitized[i+1:])
	if _, ok := allowedExtensions[ext]; !ok {
		return DefaultExtension
	}
	return "." + ext
}

// StoredExtension sanitizes a client filename and resolves its extension.
func StoredExtension(filename string) string {
	return Extension(SanitizeFilename(filename))
}

// Detect inspects the leading bytes of a file and returns the detected media
// type and whether it belongs to the accepted set.
func Detect(head []byte) (string, bool) {
	detected := mimetype.Detect(head)
	for allowed := range allowedMIMETypes {
		if detected.Is(allowed) {
			return detected.String(), true
		}
	}
	return detected.String(), false
}
