package service

import (
	"fmt"
	"net/url"
	"strings"
)

// placeholderTextLimit bounds how much of the prompt ends up in the image.
const placeholderTextLimit = 60

// PlaceholderImageURL builds a deterministic, side-effect-free placeholder
// image reference from the prompt text and the requested dimensions. It is
// the terminal fallback of the image pipeline and cannot fail.
func PlaceholderImageURL(baseURL, text string, width, height int) string {
	trimmed := strings.TrimSpace(text)
	if runes := []rune(trimmed); len(runes) > placeholderTextLimit {
		trimmed = string(runes[:placeholderTextLimit])
	}
	if trimmed == "" {
		trimmed = "storybook"
	}
	return fmt.Sprintf("%s/%dx%d?text=%s",
		strings.TrimRight(baseURL, "/"), width, height, url.QueryEscape(trimmed))
}
