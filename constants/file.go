package constants

import "strings"

// Media types accepted by the upload endpoint.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
	MediaTypeWebP = "image/webp"
)

// AllowedMediaTypes holds the media types the splitter understands.
var AllowedMediaTypes = map[string]struct{}{
	MediaTypePDF:  {},
	MediaTypePNG:  {},
	MediaTypeJPEG: {},
	MediaTypeWebP: {},
}

// IsAllowedMediaType reports whether mediaType is accepted for upload,
// ignoring any parameters such as charset.
func IsAllowedMediaType(mediaType string) bool {
	_, ok := AllowedMediaTypes[normalizeMediaType(mediaType)]
	return ok
}

// IsPDF reports whether mediaType denotes a paginated document.
func IsPDF(mediaType string) bool {
	return normalizeMediaType(mediaType) == MediaTypePDF
}

// IsImage reports whether mediaType denotes a single still image.
func IsImage(mediaType string) bool {
	return strings.HasPrefix(normalizeMediaType(mediaType), "image/")
}

func normalizeMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
