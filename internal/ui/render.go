// ABOUTME: Box drawing helpers shared by the TUI views
// ABOUTME: Fixed-width frame with padded, truncated lines
package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// innerWidth is the text width between the box borders
const innerWidth = 52

func top(title string) string {
	head := "┌─ " + title + " "
	fill := innerWidth + 3 - utf8.RuneCountInString(head)
	if fill < 0 {
		fill = 0
	}
	return head + strings.Repeat("─", fill) + "┐\n"
}

func divider() string {
	return "├" + strings.Repeat("─", innerWidth+2) + "┤\n"
}

func bottom() string {
	return "└" + strings.Repeat("─", innerWidth+2) + "┘\n"
}

func line(format string, args ...any) string {
	return fmt.Sprintf("│ %-*s │\n", innerWidth, truncate(fmt.Sprintf(format, args...), innerWidth))
}

func truncate(s string, length int) string {
	if utf8.RuneCountInString(s) <= length {
		return s
	}
	runes := []rune(s)
	return string(runes[:length-3]) + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}
