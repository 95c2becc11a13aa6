package backlog

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "plain list",
			content: "a.mp4\nb.mp4\nc.mp4\n",
			want:    []string{"a.mp4", "b.mp4", "c.mp4"},
		},
		{
			name:    "blank lines and comments skipped",
			content: "a.mp4\n\n# rear camera batch\nb.mp4\n",
			want:    []string{"a.mp4", "b.mp4"},
		},
		{
			name:    "duplicates keep first position",
			content: "b.mp4\na.mp4\nb.mp4\n",
			want:    []string{"b.mp4", "a.mp4"},
		},
		{
			name:    "whitespace trimmed",
			content: "  a.mp4  \n\tb.mp4\n",
			want:    []string{"a.mp4", "b.mp4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "backlog.txt")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing backlog file")
	}
}
