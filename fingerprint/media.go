package fingerprint

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"credify/models"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".jpe": true, ".jif": true, ".jfif": true, ".jfi": true,
	".png": true, ".gif": true, ".webp": true, ".tiff": true, ".tif": true, ".psd": true,
	".raw": true, ".arw": true, ".cr2": true, ".nrw": true, ".k25": true,
	".bmp": true, ".dib": true, ".heif": true, ".heic": true,
	".ind": true, ".indd": true, ".indt": true,
	".jp2": true, ".j2k": true, ".jpf": true, ".jpx": true, ".jpm": true, ".mj2": true,
	".svg": true, ".svgz": true, ".ai": true, ".eps": true, ".ico": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".m4p": true, ".avi": true, ".mov": true, ".qt": true,
	".wmv": true, ".flv": true, ".f4v": true, ".webm": true,
	".mpg": true, ".mp2": true, ".mpeg": true, ".mpe": true, ".mpv": true,
	".ogg": true, ".ogv": true, ".3gp": true, ".3g2": true, ".mkv": true, ".asf": true,
	".rm": true, ".rmvb": true, ".vob": true, ".ts": true, ".mts": true, ".m2ts": true,
}

// Extension returns the lower-cased extension of filename, dot included.
func Extension(filename string) string {
	return strings.ToLower(path.Ext(filename))
}

// Classify decides the media type from the declared content type, falling
// back to the filename extension.
func Classify(contentType, filename string) models.MediaType {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return models.MediaImage
	case strings.HasPrefix(ct, "video/"):
		return models.MediaVideo
	}
	ext := Extension(filename)
	switch {
	case imageExtensions[ext]:
		return models.MediaImage
	case videoExtensions[ext]:
		return models.MediaVideo
	}
	return models.MediaUnknown
}

// FilenameFromDisposition extracts the filename from a Content-Disposition
// header, or "unknown".
func FilenameFromDisposition(header string) string {
	if header == "" {
		return "unknown"
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		// filename* is decoded by ParseMediaType and stored as filename.
		if name := params["filename"]; name != "" {
			return name
		}
	}

	// Lenient fallback for headers ParseMediaType rejects.
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		key, value, ok := strings.Cut(part, "=")
		if !ok || !strings.HasPrefix(strings.ToLower(key), "filename") {
			continue
		}
		value = strings.Trim(value, `"'`)
		if i := strings.Index(value, "''"); i >= 0 {
			value = value[i+2:]
		}
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		if value != "" {
			return value
		}
	}
	return "unknown"
}
