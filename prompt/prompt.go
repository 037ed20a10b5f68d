// Package prompt holds the assistant persona and conversation formatting shared
// by the intervention composer and the command dispatcher.
package prompt

import (
	"fmt"
	"strings"
)

const (
	Assistant = "You are Harmon, an AI assistant designed to help mediate and improve conversations."
	Mediator  = "You are Harmon, a conversation assistant designed to improve communication."
)

// Conversation renders turns as alternating speakers.
func Conversation(history []string) string {
	var b strings.Builder
	for i, msg := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Person %d: %s", i%2+1, msg)
	}
	return b.String()
}

// Recent returns the last n turns; n <= 0 keeps everything.
func Recent(history []string, n int) []string {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
