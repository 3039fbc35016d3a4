package parse

import "strings"

const fence = "```"

// StripFence removes a markdown code fence wrapped around a model response.
// An opening fence may carry a language tag (```python, ```html, ...); its
// whole line is dropped. The closing fence is optional. A closing fence
// without an opening one is removed as well.
func StripFence(text string) string {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, fence) {
		rest := s[len(fence):]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			if isFenceTag(strings.TrimSpace(rest[:nl])) {
				s = rest[nl+1:]
			} else {
				s = rest
			}
		} else {
			s = rest
			if end := strings.Index(s, fence); end >= 0 {
				s = s[:end]
			} else if isFenceTag(strings.TrimSpace(s)) {
				s = ""
			}
		}
		s = strings.TrimSpace(s)
	}

	if strings.HasSuffix(s, fence) {
		s = strings.TrimSpace(strings.TrimSuffix(s, fence))
	}
	return s
}

// isFenceTag reports whether s looks like a code-fence info string such as
// "python", "json", "html" or "c++".
func isFenceTag(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '+', r == '-', r == '#', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
