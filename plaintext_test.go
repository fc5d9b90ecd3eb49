package analyzer

import "testing"

func TestMarkdownToPlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text untouched",
			input: "Just a plain sentence.",
			want:  "Just a plain sentence.",
		},
		{
			name:  "headings and emphasis flattened",
			input: "# A Title\n\nSome **bold** and *italic* prose.",
			want:  "A Title Some bold and italic prose.",
		},
		{
			name:  "markdown link keeps anchor text",
			input: "Read [the announcement](https://example.com/post) today.",
			want:  "Read the announcement today.",
		},
		{
			name:  "bare url dropped",
			input: "Details at https://example.com/details for everyone.",
			want:  "Details at for everyone.",
		},
		{
			name:  "whitespace collapsed",
			input: "too   many\n\n\nspaces\there",
			want:  "too many spaces here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := markdownToPlainText(tt.input); got != tt.want {
				t.Errorf("markdownToPlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStripLinks(t *testing.T) {
	got := stripLinks("see [docs](https://docs.example.com) and www.example.org now")
	want := "see docs and  now"
	if got != want {
		t.Errorf("stripLinks = %q, want %q", got, want)
	}
}
