package styles

import (
	"strings"
	"testing"
)

func TestMarkdownRendererNoColor(t *testing.T) {
	r, err := MarkdownRenderer(80, false)
	if err != nil {
		t.Fatalf("MarkdownRenderer() error = %v", err)
	}
	out, err := r.Render("# main\n\n```nasm\nret\n```\n")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "main") || !strings.Contains(out, "ret") {
		t.Errorf("Render() lost content: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("notty output contains escape sequences: %q", out)
	}
}

func TestMarkdownStyleCodeTheme(t *testing.T) {
	if got := MarkdownStyle().CodeBlock.Theme; got != CodeTheme {
		t.Errorf("CodeBlock.Theme = %q, want %q", got, CodeTheme)
	}
}
