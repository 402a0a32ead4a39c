package youtube

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// IsYouTubeURL checks if a URL appears to be from YouTube
func IsYouTubeURL(urlStr string) bool {
	return strings.Contains(urlStr, "youtube.com") || strings.Contains(urlStr, "youtu.be")
}

// IsURL checks if a string appears to be a URL
func IsURL(str string) bool {
	return strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://") ||
		strings.HasPrefix(str, "www.") || IsYouTubeURL(str)
}

// ExtractVideoID returns the video id of a YouTube URL, or "" when there is none
func ExtractVideoID(youtubeURL string) string {
	raw := youtubeURL
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "music.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.SplitN(strings.TrimPrefix(parsed.Path, "/"), "/", 2)[0]
	case "youtube.com":
		if v := parsed.Query().Get("v"); v != "" {
			id = v
			break
		}
		// /embed/ID, /shorts/ID, /live/ID
		parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(parts) == 2 && (parts[0] == "embed" || parts[0] == "shorts" || parts[0] == "live") {
			id = parts[1]
		}
	}

	if !videoIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// WatchURL builds the canonical page URL for a video id
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ThumbnailURL generates a thumbnail URL from a video ID
func ThumbnailURL(videoID string) string {
	if videoID == "" {
		return ""
	}
	return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", videoID)
}

// parseSeconds reads yt-dlp's duration field, which is seconds or "NA"/"None"
func parseSeconds(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "NA" {
		return 0
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
