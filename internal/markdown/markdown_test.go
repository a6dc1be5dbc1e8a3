package markdown

import (
	"strings"
	"testing"
)

func newTestConverter() *Converter {
	return NewConverter(Options{
		HighlightStyle: "github",
		HardWraps:      true,
		Sanitize:       true,
	})
}

func TestRenderBasicMarkdown(t *testing.T) {
	out, err := newTestConverter().Render("# Title\n\nsome **bold** text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "<h1") || !strings.Contains(out, "<strong>bold</strong>") {
		t.Errorf("basic markdown not rendered: %q", out)
	}
}

func TestRenderHeadingAnchors(t *testing.T) {
	out, err := newTestConverter().Render("## Section Name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `id="section-name"`) {
		t.Errorf("auto heading id missing or stripped: %q", out)
	}
}

func TestRenderCodeBlockHighlighted(t *testing.T) {
	out, err := newTestConverter().Render("```go\nfmt.Println(1)\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "<pre") || !strings.Contains(out, "class=") {
		t.Errorf("code block not highlighted with classes: %q", out)
	}
}

func TestRenderMermaidContainer(t *testing.T) {
	out, err := newTestConverter().Render("```mermaid\ngraph TD;\nA-->B;\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `class="mermaid"`) {
		t.Errorf("mermaid fence not rendered as container: %q", out)
	}
	if strings.Contains(out, "<script") {
		t.Errorf("mermaid script injected despite NoScript: %q", out)
	}
}

func TestRenderSanitizesScript(t *testing.T) {
	out, err := newTestConverter().Render("hello <script>alert(1)</script> world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "<script") {
		t.Errorf("script tag survived sanitization: %q", out)
	}
}

func TestRenderKeepsTextFragmentLinks(t *testing.T) {
	out, err := newTestConverter().Render("[1](#:~:text=some%20quote)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `href="#:~:text=some%20quote"`) {
		t.Errorf("text-fragment href stripped by policy: %q", out)
	}
}

func TestRenderHardWraps(t *testing.T) {
	out, err := newTestConverter().Render("line one\nline two")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "<br") {
		t.Errorf("single newline not rendered as <br>: %q", out)
	}

	noWraps := NewConverter(Options{HighlightStyle: "github", Sanitize: true})
	out, err = noWraps.Render("line one\nline two")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "<br") {
		t.Errorf("hard wraps applied despite being disabled: %q", out)
	}
}

func TestRenderGFMTable(t *testing.T) {
	out, err := newTestConverter().Render("| a | b |\n|---|---|\n| 1 | 2 |")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "<table>") {
		t.Errorf("GFM table not rendered: %q", out)
	}
}

func TestRenderListItemsCloseWithNewline(t *testing.T) {
	out, err := newTestConverter().Render("- first\n- second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "</li>\n") {
		t.Errorf("list items not newline-terminated: %q", out)
	}
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("list item content lost: %q", out)
	}
}

func TestRenderPlaceholderTokensPassThrough(t *testing.T) {
	out, err := newTestConverter().Render("before %%MATH_0%% after")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "%%MATH_0%%") {
		t.Errorf("placeholder token mangled by renderer: %q", out)
	}
}
