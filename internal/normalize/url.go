package normalize

import "strings"

const replyMarker = "#reply"

// URL returns the article identity used for dedup: everything before the
// first "#reply" marker. Links without the marker come back unchanged.
func URL(link string) string {
	before, _, _ := strings.Cut(link, replyMarker)
	return before
}
