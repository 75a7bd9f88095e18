package utils

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidTrackingToken_AcceptsOwnToken(t *testing.T) {
	pixel := TrackingPixelURL("https://app.example.com", "msg-123")

	// The token is the last path segment of the pixel URL.
	parts := strings.Split(pixel, "/")
	token := parts[len(parts)-1]

	assert.True(t, ValidTrackingToken("msg-123", token))
}

func TestValidTrackingToken_RejectsTamperedToken(t *testing.T) {
	pixel := TrackingPixelURL("https://app.example.com", "msg-123")
	parts := strings.Split(pixel, "/")
	token := parts[len(parts)-1]

	assert.False(t, ValidTrackingToken("msg-456", token))

	flipped := "x"
	if strings.HasSuffix(token, "x") {
		flipped = "y"
	}
	assert.False(t, ValidTrackingToken("msg-123", token[:len(token)-1]+flipped))
}

func TestValidTrackingToken_RejectsEmpty(t *testing.T) {
	assert.False(t, ValidTrackingToken("msg-123", ""))
}

func TestTrackingPixelURL_Shape(t *testing.T) {
	pixel := TrackingPixelURL("https://app.example.com", "msg-123")

	assert.True(t, strings.HasPrefix(pixel, "https://app.example.com/track/open/msg-123/"))

	u, err := url.Parse(pixel)
	require.NoError(t, err)
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	require.Len(t, segments, 4)
	assert.Len(t, segments[3], 20)
}

func TestClickTrackURL_EscapesTarget(t *testing.T) {
	link := ClickTrackURL("https://app.example.com", "msg-123", "https://globex.com/pricing?plan=pro&ref=a b")

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Path, "/track/click/msg-123/"))
	assert.Equal(t, "https://globex.com/pricing?plan=pro&ref=a b", u.Query().Get("url"))
}

func TestInjectTracking_RewritesAbsoluteLinks(t *testing.T) {
	html := `<p>Check <a href="https://globex.com/pricing">pricing</a> today.</p>`

	out := InjectTracking(html, "https://app.example.com", "msg-123")

	assert.NotContains(t, out, `href="https://globex.com/pricing"`)
	assert.Contains(t, out, `https://app.example.com/track/click/msg-123/`)
	assert.Contains(t, out, url.QueryEscape("https://globex.com/pricing"))
}

func TestInjectTracking_LeavesMailtoAndRelativeLinks(t *testing.T) {
	html := `<a href="mailto:sales@globex.com">mail</a> <a href="/unsubscribe">bye</a>`

	out := InjectTracking(html, "https://app.example.com", "msg-123")

	assert.Contains(t, out, `href="mailto:sales@globex.com"`)
	assert.Contains(t, out, `href="/unsubscribe"`)
	assert.NotContains(t, out, "track/click/msg-123/?url=mailto")
}

func TestInjectTracking_AppendsOpenPixel(t *testing.T) {
	out := InjectTracking("<p>hello</p>", "https://app.example.com", "msg-123")

	assert.Contains(t, out, `<img src="https://app.example.com/track/open/msg-123/`)
	assert.Contains(t, out, `width="1" height="1"`)
	assert.True(t, strings.HasSuffix(out, `style="display:none">`))
}

func TestInjectTracking_RewritesEveryLink(t *testing.T) {
	html := `<a href="https://a.example.com">a</a><a href="https://b.example.com">b</a>`

	out := InjectTracking(html, "https://app.example.com", "msg-123")

	assert.Equal(t, 2, strings.Count(out, "/track/click/msg-123/"))
	assert.Contains(t, out, url.QueryEscape("https://a.example.com"))
	assert.Contains(t, out, url.QueryEscape("https://b.example.com"))
}
