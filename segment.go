package cite

import (
	"regexp"
	"strconv"
)

var markerRE = regexp.MustCompile(`\[(\d+)\]`)

// Segment is a run of answer content: either plain text or an inline
// citation marker resolved against the message's citations.
type Segment struct {
	Text     string    // literal text, including the marker itself for citations
	Citation *Citation // non-nil when the segment is a resolved [n] marker
}

// Segments splits m.Content into text and citation segments. Markers whose
// id has no matching citation (yet) stay in the surrounding text.
func Segments(m Message) []Segment {
	if m.Content == "" {
		return nil
	}
	byID := make(map[int]*Citation, len(m.Citations))
	for i := range m.Citations {
		byID[m.Citations[i].ID] = &m.Citations[i]
	}

	var segs []Segment
	last := 0
	flushText := func(end int) {
		if end <= last {
			return
		}
		if n := len(segs); n > 0 && segs[n-1].Citation == nil {
			segs[n-1].Text += m.Content[last:end]
		} else {
			segs = append(segs, Segment{Text: m.Content[last:end]})
		}
		last = end
	}
	for _, loc := range markerRE.FindAllStringSubmatchIndex(m.Content, -1) {
		id, err := strconv.Atoi(m.Content[loc[2]:loc[3]])
		c, ok := byID[id]
		if err != nil || !ok {
			continue
		}
		flushText(loc[0])
		segs = append(segs, Segment{Text: m.Content[loc[0]:loc[1]], Citation: c})
		last = loc[1]
	}
	flushText(len(m.Content))
	return segs
}

// CitationMarkers returns the distinct marker ids found in content, in order
// of first appearance.
func CitationMarkers(content string) []int {
	var ids []int
	seen := make(map[int]bool)
	for _, sm := range markerRE.FindAllStringSubmatch(content, -1) {
		id, err := strconv.Atoi(sm[1])
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
