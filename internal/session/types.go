package session

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TitleMaxLength caps session titles derived from the first question.
const TitleMaxLength = 80

// Session is one persisted conversation.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TitleFromQuestion derives a session title from the first user question.
// Whitespace is collapsed and the result is truncated on a rune boundary.
func TitleFromQuestion(question string) string {
	title := strings.Join(strings.Fields(question), " ")
	if title == "" {
		return "New session"
	}
	if utf8.RuneCountInString(title) <= TitleMaxLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:TitleMaxLength-1]) + "…"
}
