package transform

import (
	"strings"
	"time"
)

// splitPath splits a dotted path such as "items[].date" into segments,
// turning each "[]" suffix into its own "[]" segment: ["items", "[]", "date"].
func splitPath(path string) []string {
	if path == "" {
		return nil
	}

	var segments []string
	for _, part := range strings.Split(path, ".") {
		for {
			if strings.HasSuffix(part, "[]") {
				base := strings.TrimSuffix(part, "[]")
				if base != "" {
					segments = append(segments, base)
				}
				segments = append(segments, "[]")
				part = ""
				break
			}
			break
		}
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseISO8601(raw string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
