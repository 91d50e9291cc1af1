package audio

import (
	"mime"
	"path/filepath"
	"strings"
)

var formatAliases = map[string]EncodingFormat{
	"mulaw":    EncodingMulaw,
	"ulaw":     EncodingMulaw,
	"basic":    EncodingMulaw,
	"alaw":     EncodingALaw,
	"linear16": EncodingLinear16,
	"pcm":      EncodingLinear16,
	"l16":      EncodingLinear16,
	"webm":     EncodingWebM,
	"mp3":      EncodingMP3,
	"mpeg":     EncodingMP3,
	"wav":      EncodingWAV,
	"wave":     EncodingWAV,
	"x-wav":    EncodingWAV,
	"ogg":      EncodingOgg,
	"opus":     EncodingOgg,
}

// ParseEncodingFormat accepts a format name, a MIME type or a file name.
func ParseEncodingFormat(s string) (EncodingFormat, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}

	if mediaType, _, err := mime.ParseMediaType(s); err == nil && strings.Contains(mediaType, "/") {
		s = mediaType[strings.Index(mediaType, "/")+1:]
	} else if ext := filepath.Ext(s); ext != "" {
		s = ext[1:]
	}

	format, ok := formatAliases[s]
	return format, ok
}
