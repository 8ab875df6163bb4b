package imagemerge

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// coverMetaSelectors name a page's preview image tags, most specific first.
var coverMetaSelectors = []string{
	`meta[property="og:image:secure_url"]`,
	`meta[property="og:image"]`,
	`meta[name="twitter:image"]`,
}

// coverImageURL returns the preview image a page advertises for sharing. It
// stands in for the gallery when a page has no usable <img> elements.
func coverImageURL(doc *goquery.Document) string {
	for _, sel := range coverMetaSelectors {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

// isImageURL reports whether the URL path ends in a recognized image extension.
func isImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return IsImageFile(u.Path)
}

// parseSrcset picks the widest candidate of a srcset attribute. Entries
// without a width descriptor count as zero; among equals the last one wins.
func parseSrcset(srcset string) string {
	type cand struct {
		url   string
		width int
	}
	var cands []cand
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		c := cand{url: fields[0]}
		if len(fields) > 1 && strings.HasSuffix(fields[1], "w") {
			if w, err := strconv.Atoi(strings.TrimSuffix(fields[1], "w")); err == nil {
				c.width = w
			}
		}
		cands = append(cands, c)
	}
	if len(cands) == 0 {
		return ""
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].width < cands[j].width })
	return cands[len(cands)-1].url
}
