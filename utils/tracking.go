package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"reachloop/config"
)

// TrackingPixelURL returns the open-tracking pixel URL stamped into an
// outgoing email body for the given message ID.
func TrackingPixelURL(baseURL, messageID string) string {
	return fmt.Sprintf("%s/track/open/%s/%s", baseURL, messageID, trackingToken(messageID))
}

// ClickTrackURL wraps a link target so clicks bounce through the tracker
// before redirecting to the original URL.
func ClickTrackURL(baseURL, messageID, target string) string {
	return fmt.Sprintf("%s/track/click/%s/%s?url=%s", baseURL, messageID, trackingToken(messageID), url.QueryEscape(target))
}

// InjectTracking rewrites anchor hrefs through the click tracker and
// appends an invisible open pixel to the HTML body.
func InjectTracking(html, baseURL, messageID string) string {
	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`, TrackingPixelURL(baseURL, messageID))
	return rewriteLinks(html, baseURL, messageID) + pixel
}

func rewriteLinks(html, baseURL, messageID string) string {
	const startTag = `<a href="`
	var out strings.Builder
	for {
		start := strings.Index(html, startTag)
		if start == -1 {
			break
		}
		start += len(startTag)
		end := strings.Index(html[start:], `"`)
		if end == -1 {
			break
		}
		end += start

		target := html[start:end]
		out.WriteString(html[:start])
		// Relative and mailto links pass through untouched.
		if strings.HasPrefix(target, "http") {
			out.WriteString(ClickTrackURL(baseURL, messageID, target))
		} else {
			out.WriteString(target)
		}
		html = html[end:]
	}
	out.WriteString(html)
	return out.String()
}

// ValidTrackingToken checks that a tracking callback carries the token
// originally stamped for the message.
func ValidTrackingToken(messageID, token string) bool {
	return token != "" && token == trackingToken(messageID)
}

// Tokens are derived from the message ID and the server secret, so the
// tracker can validate callbacks without storing anything per message.
func trackingToken(messageID string) string {
	hash := sha256.Sum256([]byte(messageID + config.AppConfig.EncryptionKey))
	return base64.URLEncoding.EncodeToString(hash[:])[:20]
}
