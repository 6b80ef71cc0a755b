package chat

import (
	"path"
	"strings"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

var audioExtensions = map[string]bool{
	".opus": true, ".m4a": true, ".ogg": true, ".mp3": true, ".wav": true, ".aac": true,
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".opus": "audio/opus",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".3gp":  "video/3gpp",
	".vcf":  "text/vcard",
	".txt":  "text/plain; charset=utf-8",
}

// Ext returns the lower-cased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// ClassifyAttachment returns the message type for an attached file:
// image or audio by extension, attachment otherwise.
func ClassifyAttachment(name string) MessageType {
	ext := Ext(name)
	switch {
	case imageExtensions[ext]:
		return TypeImage
	case audioExtensions[ext]:
		return TypeAudio
	default:
		return TypeAttachment
	}
}

// ContentType returns the MIME type to serve name with.
func ContentType(name string) string {
	if ct, ok := contentTypes[Ext(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}
