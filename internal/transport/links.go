package transport

import (
	"regexp"
	"strings"
)

// Links holds the page_info cursors of a paginated REST response.
type Links struct {
	Prev string
	Next string
}

var (
	pageInfoPattern = regexp.MustCompile(`page_info=([A-Za-z0-9]+)`)
	relPattern      = regexp.MustCompile(`rel="?(next|previous)"?`)
)

// ParseLinks extracts the cursors from a Link header such as
//
//	<https://x/admin/api/2024-10/orders.json?limit=50&page_info=abc>; rel="next"
func ParseLinks(header string) Links {
	var l Links
	for _, part := range strings.Split(header, ",") {
		info := pageInfoPattern.FindStringSubmatch(part)
		rel := relPattern.FindStringSubmatch(part)
		if info == nil || rel == nil {
			continue
		}
		if rel[1] == "next" {
			l.Next = info[1]
		} else {
			l.Prev = info[1]
		}
	}
	return l
}
