package tgui

import (
	"fmt"
	"strings"
)

// Pages groups rendered blocks into messages of at most perPage blocks,
// starting a new message early when the next block would exceed maxLen
// runes. Blocks are joined with sep.
func Pages(blocks []H, perPage, maxLen int, sep string) []H {
	if perPage <= 0 {
		perPage = 1
	}
	if maxLen <= 0 {
		maxLen = MaxMessageLen
	}
	var (
		out []H
		cur []string
		n   int
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, H(strings.Join(cur, sep)))
			cur, n = nil, 0
		}
	}
	for _, b := range blocks {
		s := b.String()
		size := len([]rune(s))
		if len(cur) > 0 && (len(cur) >= perPage || n+len([]rune(sep))+size > maxLen) {
			flush()
		}
		if len(cur) > 0 {
			n += len([]rune(sep))
		}
		cur = append(cur, s)
		n += size
	}
	flush()
	return out
}

// PageLabel returns "Página i/n" for the 0-based page of pages.
func PageLabel(page, pages int) string {
	if pages <= 0 {
		pages = 1
	}
	page = min(max(page, 0), pages-1)
	return fmt.Sprintf("Página %d/%d", page+1, pages)
}
