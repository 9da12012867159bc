package core

import (
	"strconv"
	"strings"
)

// Between returns part of s after sub1 and before sub2, empty if not found
func Between(s, sub1, sub2 string) string {
	i := strings.Index(s, sub1)
	if i < 0 {
		return ""
	}
	s = s[i+len(sub1):]
	i = strings.Index(s, sub2)
	if i < 0 {
		return ""
	}
	return s[:i]
}

// Atoi - skip error
func Atoi(s string) (i int) {
	i, _ = strconv.Atoi(s)
	return
}
