package corpus

import (
	"testing"

	"github.com/koopa0/docent/internal/log"
)

func TestNewStore(t *testing.T) {
	t.Parallel()

	if _, err := NewStore(nil, "docs", log.NewNop()); err == nil {
		t.Error("NewStore(nil db) should fail")
	}
}

func TestWithLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero passes through", 0, 0},
		{"negative uses default", -3, DefaultLimit},
		{"in range", 7, 7},
		{"clamped to max", 500, MaxLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o := searchOptions{limit: DefaultLimit}
			WithLimit(tt.in)(&o)
			if o.limit != tt.want {
				t.Errorf("WithLimit(%d) => limit %d, want %d", tt.in, o.limit, tt.want)
			}
		})
	}
}
