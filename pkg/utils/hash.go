package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// NormalizeQuery lower-cases the text and collapses every run of whitespace
// into a single space so that formatting differences hash identically.
func NormalizeQuery(input string) string {
	return strings.Join(strings.Fields(strings.ToLower(input)), " ")
}
