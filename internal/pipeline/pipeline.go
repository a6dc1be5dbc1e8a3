// Package pipeline sequences the text-protection and restoration stages that
// turn a raw chat message into safe HTML.
//
// The hard problem is ordering and containment: code, math, links and
// citation markers all use delimiters that overlap syntactically. Each
// extraction stage replaces a region class with inert placeholder tokens so
// no later stage can see or mutate its contents; restoration reverses the
// extractions in reverse-of-risk order around the Markdown render call.
// Every stage is a pure string transform and a stage that finds nothing to
// do is a no-op, never an error.
package pipeline

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"chat-renderer/internal/citation"
	"chat-renderer/internal/formula"
	"chat-renderer/internal/logger"
	"chat-renderer/internal/placeholder"
	"chat-renderer/internal/types"
)

// Renderer converts Markdown text to HTML. It is the pipeline's only
// external collaborator; code-fence highlighting and sanitization happen
// behind this interface.
type Renderer interface {
	Render(text string) (string, error)
}

// Pipeline renders chat messages. It is safe for concurrent use: all
// per-message state lives in a run, created fresh per call.
type Pipeline struct {
	renderer Renderer
	stages   []stage
}

// run holds the working text and the protected-region stores for one
// message. Stores are owned by exactly this run.
type run struct {
	text       string
	codeBlocks placeholder.Store
	inlineCode placeholder.Store
	links      placeholder.Store
	images     placeholder.Store
	math       placeholder.Store
	citations  int
}

// stage is one named step of the fixed pipeline order.
type stage struct {
	name string
	fn   func(p *Pipeline, r *run) error
}

var (
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`[^`\n]+`")
	imageTagRe   = regexp.MustCompile(`<img[^>]*>`)
	// linkRe also matches Markdown image syntax (leading !); both are
	// restored before rendering so the renderer sees them verbatim.
	linkRe = regexp.MustCompile(`!?\[[^\]\n]*\]\([^)\n]*\)`)

	hrLineRe = regexp.MustCompile(`(?m)^[ \t]*(?:-{3,}|\*{3,}|_{3,})[ \t]*$\n?`)
	// A % preceded by another % is the tail of a placeholder token; the
	// cleanup runs while extracted tokens are in the text and must not
	// touch them.
	strayPercentRe = regexp.MustCompile(`(?m)(^|[^%])%[ \t]*\n`)

	// <p> wrappers the renderer places directly around a display-math
	// container; the container is already a block element.
	mathParagraphRe = regexp.MustCompile(
		`<p>\s*(` + regexp.QuoteMeta(formula.DisplayOpen) + `[\s\S]*?` +
			regexp.QuoteMeta(formula.DisplayClose) + `)\s*</p>`)

	// imgPolicy scrubs raw image tags at extraction time. Stored tags are
	// restored after the renderer's sanitize step and re-enter the final
	// HTML verbatim, so they must already be safe when stored.
	imgPolicy = func() *bluemonday.Policy {
		p := bluemonday.NewPolicy()
		p.AllowAttrs("src", "alt", "title").OnElements("img")
		p.AllowAttrs("width", "height").Matching(bluemonday.NumberOrPercent).OnElements("img")
		p.RequireParseableURLs(true)
		p.AllowRelativeURLs(true)
		p.AllowURLSchemes("http", "https")
		return p
	}()
)

// New creates a Pipeline around the given renderer.
func New(renderer Renderer) *Pipeline {
	return &Pipeline{
		renderer: renderer,
		stages: []stage{
			{"extract code blocks", (*Pipeline).extractCodeBlocks},
			{"extract inline code", (*Pipeline).extractInlineCode},
			{"extract image tags", (*Pipeline).extractImages},
			{"extract links", (*Pipeline).extractLinks},
			{"unescape brackets", (*Pipeline).unescapeBrackets},
			{"normalize math environments", (*Pipeline).normalizeMathEnvironments},
			{"remove horizontal rules", (*Pipeline).removeHorizontalRules},
			{"transform think blocks", (*Pipeline).transformThink},
			{"cleanup stray characters", (*Pipeline).cleanupStray},
			{"extract math spans", (*Pipeline).extractMath},
			{"fix bold format", (*Pipeline).fixBold},
			{"normalize citations", (*Pipeline).normalizeCitations},
			{"restore pre-render", (*Pipeline).restorePreRender},
			{"render markdown", (*Pipeline).renderMarkdown},
			{"restore post-render", (*Pipeline).restorePostRender},
			{"strip math paragraph wrappers", (*Pipeline).stripMathParagraphs},
		},
	}
}

// Run processes one chat message through every stage and returns the final
// HTML plus extraction statistics. Malformed input degrades to literal text
// for the affected span; only the renderer itself can fail the run.
func (p *Pipeline) Run(text string) (*types.RenderResult, error) {
	r := &run{text: text}

	for _, s := range p.stages {
		if err := s.fn(p, r); err != nil {
			logger.Error("pipeline stage failed", err, logger.String("stage", s.name))
			return nil, types.NewAppErrorWithDetails(types.ErrRender, "render pipeline failed", s.name, err)
		}
	}

	result := &types.RenderResult{
		HTML:        r.text,
		CodeBlocks:  len(r.codeBlocks),
		MathSpans:   len(r.math),
		Citations:   r.citations,
		HasDiagrams: strings.Contains(r.text, `class="mermaid"`),
	}
	logger.Debug("message rendered",
		logger.Int("codeBlocks", result.CodeBlocks),
		logger.Int("mathSpans", result.MathSpans),
		logger.Int("citations", result.Citations),
		logger.Bool("hasDiagrams", result.HasDiagrams))
	return result, nil
}

// Code fences first: their contents conflict with every later stage.
func (p *Pipeline) extractCodeBlocks(r *run) error {
	r.text = placeholder.Extract(r.text, codeBlockRe, placeholder.CodeBlock, &r.codeBlocks)
	return nil
}

func (p *Pipeline) extractInlineCode(r *run) error {
	r.text = placeholder.Extract(r.text, inlineCodeRe, placeholder.InlineCode, &r.inlineCode)
	return nil
}

// Image tags are protected so $ inside alt text or attributes is never
// misread as a math delimiter. Each tag is sanitized before it is stored;
// a tag the policy rejects entirely restores to nothing.
func (p *Pipeline) extractImages(r *run) error {
	r.text = placeholder.ExtractFunc(r.text, imageTagRe, placeholder.Image, &r.images, imgPolicy.Sanitize)
	return nil
}

// Links are protected except citation markers, which stay in the text for
// the CitationNormalizer to handle later.
func (p *Pipeline) extractLinks(r *run) error {
	r.text = linkRe.ReplaceAllStringFunc(r.text, func(m string) string {
		if strings.Contains(m, "]("+citation.Scheme) {
			return m
		}
		r.links = append(r.links, m)
		return placeholder.Token(placeholder.Link, len(r.links)-1)
	})
	return nil
}

// Some models emit \\[ and \\] for display math; collapse the doubled
// escape so the math extractor sees the real delimiter.
func (p *Pipeline) unescapeBrackets(r *run) error {
	r.text = strings.ReplaceAll(r.text, `\\[`, `\[`)
	r.text = strings.ReplaceAll(r.text, `\\]`, `\]`)
	return nil
}

func (p *Pipeline) normalizeMathEnvironments(r *run) error {
	r.text = formula.NormalizeEnvironments(r.text)
	return nil
}

func (p *Pipeline) removeHorizontalRules(r *run) error {
	r.text = hrLineRe.ReplaceAllString(r.text, "")
	return nil
}

func (p *Pipeline) transformThink(r *run) error {
	r.text = transformThinkBlocks(r.text)
	return nil
}

// cleanupStray removes percent-plus-newline artifacts and repairs the one
// known full-width-paren/math-delimiter adjacency that breaks extraction.
func (p *Pipeline) cleanupStray(r *run) error {
	r.text = strayPercentRe.ReplaceAllString(r.text, "${1}\n")
	r.text = strings.ReplaceAll(r.text, `（\(`, `（ \(`)
	r.text = strings.ReplaceAll(r.text, `\)）`, `\) ）`)
	return nil
}

func (p *Pipeline) extractMath(r *run) error {
	r.text = formula.ExtractSpans(r.text, &r.math)
	return nil
}

func (p *Pipeline) fixBold(r *run) error {
	r.text = fixBoldFormat(r.text)
	return nil
}

func (p *Pipeline) normalizeCitations(r *run) error {
	text, n := citation.Normalize(r.text)
	r.text = citation.GroupConsecutive(text)
	r.citations = n
	return nil
}

// Links, inline code and code blocks go back before rendering, in that
// order, so the renderer sees genuine fence and link syntax.
func (p *Pipeline) restorePreRender(r *run) error {
	r.text = placeholder.Restore(r.text, placeholder.Link, r.links)
	r.text = placeholder.Restore(r.text, placeholder.InlineCode, r.inlineCode)
	r.text = placeholder.Restore(r.text, placeholder.CodeBlock, r.codeBlocks)
	return nil
}

func (p *Pipeline) renderMarkdown(r *run) error {
	html, err := p.renderer.Render(r.text)
	if err != nil {
		return err
	}
	r.text = html
	return nil
}

// Math and images go back only after rendering so the renderer never sees
// their delimiters.
func (p *Pipeline) restorePostRender(r *run) error {
	r.text = placeholder.Restore(r.text, placeholder.Math, r.math)
	r.text = placeholder.Restore(r.text, placeholder.Image, r.images)
	return nil
}

func (p *Pipeline) stripMathParagraphs(r *run) error {
	r.text = mathParagraphRe.ReplaceAllString(r.text, "$1")
	return nil
}
