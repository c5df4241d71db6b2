package eventbus

import "strings"

// matchPattern reports whether name matches pattern, where pattern is
// a colon-separated sequence of segments. A segment of "*" matches
// exactly one segment of name; a segment of "**" matches zero or more
// segments. All other segments must match literally.
func matchPattern(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, ":"), strings.Split(name, ":"))
}

func matchSegments(pattern, name []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}

	head := pattern[0]
	rest := pattern[1:]

	if head == "**" {
		if matchSegments(rest, name) {
			return true
		}
		if len(name) == 0 {
			return false
		}
		return matchSegments(pattern, name[1:])
	}

	if len(name) == 0 {
		return false
	}
	if head != "*" && head != name[0] {
		return false
	}
	return matchSegments(rest, name[1:])
}
