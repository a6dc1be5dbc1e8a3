// Package markdown converts pipeline-prepared text to sanitized HTML.
//
// The converter is the pipeline's external renderer: it sees text whose math
// spans and image tags are already replaced by inert tokens, so it only has
// to handle genuine Markdown. Code fences are highlighted server-side with
// chroma classes, ```mermaid fences become client-rendered containers, and
// the output passes through a bluemonday policy before it reaches any
// display surface.
package markdown

import (
	"bytes"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/mermaid"

	"chat-renderer/internal/logger"
	"chat-renderer/internal/types"
)

// Options configures a Converter.
type Options struct {
	// HighlightStyle is the chroma style name for code blocks.
	HighlightStyle string
	// HardWraps renders single newlines as <br>.
	HardWraps bool
	// Sanitize runs the output through the bluemonday policy.
	Sanitize bool
}

// Converter renders Markdown to HTML. Safe for concurrent use.
type Converter struct {
	md        goldmark.Markdown
	sanitizer *bluemonday.Policy
	sanitize  bool
}

// NewConverter builds a Converter. Style names unknown to chroma fall back
// inside the highlighter, never here.
func NewConverter(opts Options) *Converter {
	rendererOptions := []renderer.Option{
		html.WithXHTML(),
		renderer.WithNodeRenderers(
			util.Prioritized(&listItemRenderer{}, 100),
		),
	}
	if opts.HardWraps {
		rendererOptions = append(rendererOptions, html.WithHardWraps())
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(opts.HighlightStyle),
				// Unknown language hints fall back to content sniffing
				// instead of rendering a plain block.
				highlighting.WithGuessLanguage(true),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
			// ```mermaid fences become client-rendered containers and never
			// reach the highlighter.
			&mermaid.Extender{
				RenderMode: mermaid.RenderModeClient,
				NoScript:   true, // frontend loads Mermaid.js itself
			},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(rendererOptions...),
	)

	logger.Info("markdown converter initialized",
		logger.String("highlightStyle", opts.HighlightStyle),
		logger.Bool("hardWraps", opts.HardWraps),
		logger.Bool("sanitize", opts.Sanitize))

	return &Converter{
		md:        md,
		sanitizer: newPolicy(),
		sanitize:  opts.Sanitize,
	}
}

// newPolicy builds the bluemonday policy for rendered chat messages.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()

	// chroma emits class-based highlighting; mermaid containers carry a
	// class the frontend hydrates.
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span", "div")

	// Heading anchors from parser.WithAutoHeadingID.
	p.AllowAttrs("id").Matching(bluemonday.Paragraph).OnElements("h1", "h2", "h3", "h4", "h5", "h6")

	// Citation markers link to in-page text fragments (#:~:text=...), which
	// are relative URLs the default policy would strip.
	p.AllowRelativeURLs(true)

	return p
}

// Render converts text to HTML and sanitizes it when enabled.
func (c *Converter) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(text), &buf); err != nil {
		logger.Error("markdown conversion failed", err)
		return "", types.NewAppError(types.ErrRender, "markdown conversion failed", err)
	}

	out := buf.String()
	if c.sanitize {
		out = c.sanitizer.Sanitize(out)
	}
	return out, nil
}

// listItemRenderer overrides the default <li> rendering: the item's inner
// markup is rendered verbatim by its children and the closing tag always
// gets its own trailing newline, keeping list output stable for the
// restoration passes that run over the HTML afterwards.
type listItemRenderer struct{}

func (r *listItemRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindListItem, r.renderListItem)
}

func (r *listItemRenderer) renderListItem(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<li>")
	} else {
		_, _ = w.WriteString("</li>\n")
	}
	return ast.WalkContinue, nil
}
