package protocol

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"feedprobe/internal/feed"
)

func TestFilterBuilders(t *testing.T) {
	id := feed.Identity{ID: "O'Brien", Version: "1.0.0"}

	if got, want := SimpleFilter(id), "Id eq 'O''Brien' and Version eq '1.0.0'"; got != want {
		t.Errorf("SimpleFilter() = %q, want %q", got, want)
	}
	if got, want := CustomFilter(id), "Id eq 'O''Brien' and Version eq '1.0.0' and not startswith(Id, '!IMPOSSIBLE!')"; got != want {
		t.Errorf("CustomFilter() = %q, want %q", got, want)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Clause
		wantErr bool
	}{
		{name: "empty", input: "  "},
		{
			name:  "simple",
			input: SimpleFilter(feed.Identity{ID: "Foo", Version: "1.0.0"}),
			want: []Clause{
				{Field: "Id", Op: "eq", Value: "Foo"},
				{Field: "Version", Op: "eq", Value: "1.0.0"},
			},
		},
		{
			name:  "custom",
			input: CustomFilter(feed.Identity{ID: "Foo", Version: "1.0.0"}),
			want: []Clause{
				{Field: "Id", Op: "eq", Value: "Foo"},
				{Field: "Version", Op: "eq", Value: "1.0.0"},
				{Field: "Id", Op: "startswith", Negate: true, Value: "!IMPOSSIBLE!"},
			},
		},
		{
			name:  "escaped quote and case",
			input: "id EQ 'O''Brien'",
			want:  []Clause{{Field: "Id", Op: "eq", Value: "O'Brien"}},
		},
		{name: "unknown field", input: "Tags eq 'x'", wantErr: true},
		{name: "unterminated", input: "Id eq 'Foo", wantErr: true},
		{name: "or unsupported", input: "Id eq 'a' or Id eq 'b'", wantErr: true},
		{name: "missing paren", input: "startswith(Id, 'a'", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseFilter() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
