package session

import (
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
)

func TestTitleFromQuestion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"plain", "How do agents work?", "How do agents work?"},
		{"collapses whitespace", "  How  do\nagents   work?  ", "How do agents work?"},
		{"empty", "   ", "New session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TitleFromQuestion(tt.question); got != tt.want {
				t.Errorf("TitleFromQuestion(%q) = %q, want %q", tt.question, got, tt.want)
			}
		})
	}
}

func TestTitleFromQuestionTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 40)
	got := TitleFromQuestion(long)
	if n := len([]rune(got)); n != TitleMaxLength {
		t.Errorf("truncated title has %d runes, want %d", n, TitleMaxLength)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated title %q should end with ellipsis", got)
	}
}

func TestMessageCodecRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *ai.Message
	}{
		{"user text", ai.NewUserMessage(ai.NewTextPart("hello"))},
		{"model text", ai.NewModelMessage(ai.NewTextPart("answer"))},
		{
			"tool response",
			&ai.Message{
				Role: ai.RoleTool,
				Content: []*ai.Part{
					ai.NewToolResponsePart(&ai.ToolResponse{
						Name:   "get_page_content",
						Output: "# Page\n\nBody",
					}),
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := encodeMessage(tt.msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := decodeMessage(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Role != tt.msg.Role {
				t.Errorf("role = %q, want %q", got.Role, tt.msg.Role)
			}
			if got.Text() != tt.msg.Text() {
				t.Errorf("text = %q, want %q", got.Text(), tt.msg.Text())
			}
		})
	}
}
