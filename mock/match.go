package mock

import "strings"

// Match reports whether topic matches the subscription filter, which may
// contain the wildcards + and #.
func Match(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		switch {
		case f == "#":
			return i == len(fs)-1
		case i >= len(ts):
			return false
		case f == "+":
		case f != ts[i]:
			return false
		}
	}
	return len(fs) == len(ts)
}
