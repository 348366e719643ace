package services

import (
	"regexp"
	"strings"
)

var youtubeURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.)?(youtube\.com|youtu\.be)/.+$`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/watch\?v=[\w-]+(&.*)?$`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/playlist\?list=[\w-]+(&.*)?$`),
	regexp.MustCompile(`^https?://youtu\.be/[\w-]+(\?.*)?$`),
}

// IsSupportedURL reports whether url has a recognised media-source
// shape. Reachability is not checked; yt-dlp is the final arbiter.
func IsSupportedURL(url string) bool {
	for _, pattern := range youtubeURLPatterns {
		if pattern.MatchString(url) {
			return true
		}
	}
	return false
}

// SanitizeURL strips whitespace and angle brackets before validation.
func SanitizeURL(url string) string {
	return strings.NewReplacer("<", "", ">", "").Replace(strings.TrimSpace(url))
}
