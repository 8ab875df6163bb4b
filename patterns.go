package imagemerge

import (
	"net/url"
	"path"
	"strings"
)

// chromeMarkers are file-name fragments of site furniture that galleries
// embed next to the photos.
var chromeMarkers = []string{
	"favicon", "logo", "icon", "banner", "sprite", "badge",
	"button", "widget", "avatar", "spacer", "placeholder",
}

// IsPageChrome reports whether rawURL names site furniture rather than a
// gallery photo. Only the file name is inspected: a host or directory called
// "logos" does not hide the photos under it.
func IsPageChrome(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	name := strings.ToLower(path.Base(p))
	for _, m := range chromeMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
