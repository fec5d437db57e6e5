// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package markterm

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Palette is the color set used for rendered output. All colors are
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Palette struct {
	Text    lipgloss.Color // Body text.
	Faint   lipgloss.Color // Code spans, URLs, plain code blocks.
	Heading lipgloss.Color // H1/H2 and table header foreground.
	Border  lipgloss.Color // Rules, table separators, blockquote bars.
}

// DefaultPalette is the built-in dark-terminal color scheme.
var DefaultPalette = Palette{
	Text:    lipgloss.Color("252"),
	Faint:   lipgloss.Color("245"),
	Heading: lipgloss.Color("255"),
	Border:  lipgloss.Color("240"),
}

// parser is initialized once and reused. The configuration never
// changes and the goldmark Parser is safe to share — parsing creates
// per-call state via Parse(reader).
var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func parser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return parserInstance
}

// Render parses markdown and renders it as styled terminal output at
// the given width. Soft line breaks (single newlines within
// paragraphs) become spaces so hard-wrapped source reflows correctly.
// Code blocks, lists, and tables preserve their structure.
func Render(input string, palette Palette, width int) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	document := parser().Parser().Parse(text.NewReader(source))

	// Force the ANSI256 color profile: output is destined for a
	// terminal, and auto-detection would produce uncolored output in
	// test environments with no TTY. SetColorProfile is required
	// because lipgloss.Renderer re-detects from the environment
	// unless an explicit profile is set.
	lipRenderer := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	lipRenderer.SetColorProfile(termenv.ANSI256)

	state := &renderState{
		source:      source,
		palette:     palette,
		width:       width,
		lipRenderer: lipRenderer,
	}
	ast.Walk(document, state.walk)

	return strings.TrimRight(state.output.String(), "\n")
}

// renderState carries the walk's accumulated output and inline
// formatting context.
type renderState struct {
	source  []byte
	palette Palette
	width   int

	// Final rendered output.
	output strings.Builder

	// Inline accumulator: collects styled text fragments within a
	// paragraph, heading, or other inline-containing block. Flushed
	// with word-wrap when the containing block closes.
	inline strings.Builder

	// Prefix stack for nested block containers (blockquotes, lists).
	prefixStack     []prefixLevel
	linePrefix      string // Concatenation of all prefix texts.
	linePrefixWidth int    // Sum of all visible prefix widths.

	// Pending bullet: replaces linePrefix for the very next emitted
	// line, then clears. Used for list item bullets/numbers.
	pendingBullet string

	// Inline style counters: incremented by Emphasis/Strikethrough
	// entering, decremented on leaving. Counters (not booleans)
	// handle nesting correctly.
	boldCount          int
	italicCount        int
	strikethroughCount int

	// List nesting state.
	listStack []listState

	// lipgloss renderer with forced color profile.
	lipRenderer *lipgloss.Renderer

	// Trailing newlines at end of output, for blank line management.
	trailingNewlines int
}

type prefixLevel struct {
	text  string
	width int
}

type listState struct {
	ordered bool
	counter int
	tight   bool
}

func (state *renderState) newStyle() lipgloss.Style {
	return state.lipRenderer.NewStyle()
}

// currentWidth returns the available content width after nesting
// prefixes. Clamped to a minimum of 10 to prevent degenerate wrapping.
func (state *renderState) currentWidth() int {
	width := state.width - state.linePrefixWidth
	if width < 10 {
		width = 10
	}
	return width
}

func (state *renderState) pushPrefix(prefixText string, visibleWidth int) {
	state.prefixStack = append(state.prefixStack, prefixLevel{
		text:  prefixText,
		width: visibleWidth,
	})
	state.linePrefix += prefixText
	state.linePrefixWidth += visibleWidth
}

func (state *renderState) popPrefix() {
	if len(state.prefixStack) == 0 {
		return
	}
	top := state.prefixStack[len(state.prefixStack)-1]
	state.prefixStack = state.prefixStack[:len(state.prefixStack)-1]
	state.linePrefix = state.linePrefix[:len(state.linePrefix)-len(top.text)]
	state.linePrefixWidth -= top.width
}

func (state *renderState) inTightList() bool {
	if len(state.listStack) == 0 {
		return false
	}
	return state.listStack[len(state.listStack)-1].tight
}

// writeOutput appends text to the output buffer, tracking trailing
// newlines for blank line management.
func (state *renderState) writeOutput(s string) {
	if s == "" {
		return
	}
	state.output.WriteString(s)

	newTrailing := 0
	entirelyNewlines := true
	for index := len(s) - 1; index >= 0; index-- {
		if s[index] == '\n' {
			newTrailing++
		} else {
			entirelyNewlines = false
			break
		}
	}

	// A string that is entirely newlines extends the existing count;
	// any non-newline character resets it.
	if entirelyNewlines {
		state.trailingNewlines += newTrailing
	} else {
		state.trailingNewlines = newTrailing
	}
}

func (state *renderState) ensureNewline() {
	if state.trailingNewlines < 1 {
		state.writeOutput("\n")
	}
}

func (state *renderState) ensureBlankLine() {
	for state.trailingNewlines < 2 {
		state.writeOutput("\n")
	}
}

// consumeLinePrefix returns the prefix for the current line. A pending
// bullet (first line of a list item) wins once, then clears.
func (state *renderState) consumeLinePrefix() string {
	if state.pendingBullet != "" {
		bullet := state.pendingBullet
		state.pendingBullet = ""
		return bullet
	}
	return state.linePrefix
}

// applyPrefixes prepends the line prefix to each line of text. The
// first line uses the pending bullet if one is set.
func (state *renderState) applyPrefixes(content string) string {
	lines := strings.Split(content, "\n")
	var result strings.Builder
	for index, line := range lines {
		if index == 0 {
			result.WriteString(state.consumeLinePrefix())
		} else {
			result.WriteString(state.linePrefix)
		}
		result.WriteString(line)
		if index < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}

// flushInline word-wraps the accumulated inline content to the
// current width, applies line prefixes, and resets the buffer.
func (state *renderState) flushInline() string {
	content := state.inline.String()
	state.inline.Reset()
	if content == "" {
		return ""
	}

	content = ansi.Wrap(content, state.currentWidth(), " ,.;-+|")
	return state.applyPrefixes(content)
}

// styledText applies the current inline style counters to a string.
func (state *renderState) styledText(content string) string {
	style := state.newStyle().Foreground(state.palette.Text)
	if state.boldCount > 0 {
		style = style.Bold(true)
	}
	if state.italicCount > 0 {
		style = style.Italic(true)
	}
	if state.strikethroughCount > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

// renderInlineContent walks a node's children to collect inline
// content into a string. Saves and restores the inline buffer and
// style counters so the caller's context is unaffected.
func (state *renderState) renderInlineContent(node ast.Node) string {
	savedInline := state.inline.String()
	savedBold := state.boldCount
	savedItalic := state.italicCount
	savedStrikethrough := state.strikethroughCount

	state.inline.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, state.walk)
	}
	result := state.inline.String()

	state.inline.Reset()
	state.inline.WriteString(savedInline)
	state.boldCount = savedBold
	state.italicCount = savedItalic
	state.strikethroughCount = savedStrikethrough

	return result
}

// highlightCode syntax-highlights code with chroma. Falls back to
// Faint-styled plain text on unknown language or chroma error.
func (state *renderState) highlightCode(code, language string) string {
	if language == "" {
		return state.newStyle().Foreground(state.palette.Faint).Render(code)
	}
	var buffer strings.Builder
	err := quick.Highlight(&buffer, code, language, "terminal256", "monokai")
	if err != nil {
		return state.newStyle().Foreground(state.palette.Faint).Render(code)
	}
	return buffer.String()
}

func (state *renderState) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {

	// Block nodes.
	case ast.KindDocument:
		// Nothing on entering or leaving.

	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			state.inline.Reset()
		} else {
			flushed := state.flushInline()
			if flushed != "" {
				state.writeOutput(flushed)
				state.ensureNewline()
				if !state.inTightList() {
					state.ensureBlankLine()
				}
			}
		}

	case ast.KindHeading:
		if entering {
			state.inline.Reset()
		} else {
			state.leaveHeading(node.(*ast.Heading))
		}

	case ast.KindFencedCodeBlock:
		if entering {
			state.renderFencedCodeBlock(node.(*ast.FencedCodeBlock))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			state.renderIndentedCodeBlock(node.(*ast.CodeBlock))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			state.pushPrefix("│ ", 2)
		} else {
			state.popPrefix()
			state.ensureBlankLine()
		}

	case ast.KindList:
		if entering {
			state.enterList(node.(*ast.List))
		} else {
			state.leaveList()
		}

	case ast.KindListItem:
		if entering {
			state.enterListItem()
		} else {
			state.leaveListItem()
		}

	case ast.KindThematicBreak:
		if entering {
			state.renderThematicBreak()
		}

	case ast.KindHTMLBlock:
		// HTML never appears in generated reports; drop it rather
		// than leak tags into terminal output.
		if entering {
			return ast.WalkSkipChildren, nil
		}

	// Inline nodes.
	case ast.KindText:
		if entering {
			state.handleText(node.(*ast.Text))
		}

	case ast.KindString:
		if entering {
			str := node.(*ast.String)
			state.inline.WriteString(state.styledText(string(str.Value)))
		}

	case ast.KindEmphasis:
		state.handleEmphasis(node.(*ast.Emphasis), entering)

	case ast.KindCodeSpan:
		if entering {
			state.renderCodeSpan(node)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if entering {
			state.renderLink(node.(*ast.Link))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindAutoLink:
		if entering {
			autoLink := node.(*ast.AutoLink)
			url := string(autoLink.URL(state.source))
			state.inline.WriteString(
				state.newStyle().Foreground(state.palette.Faint).Render(url))
		}

	case ast.KindImage:
		if entering {
			return ast.WalkSkipChildren, nil
		}

	case ast.KindRawHTML:
		if entering {
			return ast.WalkSkipChildren, nil
		}

	// GFM extension nodes.
	case extast.KindStrikethrough:
		if entering {
			state.strikethroughCount++
		} else {
			state.strikethroughCount--
		}

	case extast.KindTable:
		if entering {
			state.renderTable(node)
			return ast.WalkSkipChildren, nil
		}
	}

	return ast.WalkContinue, nil
}

// --- Block handlers ---

func (state *renderState) leaveHeading(heading *ast.Heading) {
	// Strip inline styling collected so far — the heading has its own
	// style that replaces the default Text foreground.
	content := ansi.Strip(state.inline.String())
	state.inline.Reset()
	if content == "" {
		return
	}

	style := state.newStyle().Bold(true)
	if heading.Level <= 2 {
		style = style.Foreground(state.palette.Heading)
	} else {
		style = style.Foreground(state.palette.Text)
	}

	wrapped := ansi.Wrap(style.Render(content), state.currentWidth(), " ,.;-+|")
	flushed := state.applyPrefixes(wrapped)
	state.ensureBlankLine()
	state.writeOutput(flushed)
	state.ensureNewline()
	state.ensureBlankLine()
}

func (state *renderState) renderFencedCodeBlock(node *ast.FencedCodeBlock) {
	language := string(node.Language(state.source))
	var code strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		code.Write(segment.Value(state.source))
	}

	highlighted := state.highlightCode(code.String(), language)
	state.ensureBlankLine()
	for _, line := range strings.Split(strings.TrimRight(highlighted, "\n"), "\n") {
		state.writeOutput(state.consumeLinePrefix() + line)
		state.ensureNewline()
	}
	state.ensureBlankLine()
}

func (state *renderState) renderIndentedCodeBlock(node *ast.CodeBlock) {
	var code strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		code.Write(segment.Value(state.source))
	}

	faint := state.newStyle().Foreground(state.palette.Faint)
	state.ensureBlankLine()
	for _, line := range strings.Split(strings.TrimRight(code.String(), "\n"), "\n") {
		state.writeOutput(state.consumeLinePrefix() + faint.Render(line))
		state.ensureNewline()
	}
	state.ensureBlankLine()
}

func (state *renderState) enterList(list *ast.List) {
	startNumber := 0
	if list.IsOrdered() {
		startNumber = list.Start
	}
	state.listStack = append(state.listStack, listState{
		ordered: list.IsOrdered(),
		counter: startNumber,
		tight:   list.IsTight,
	})
}

func (state *renderState) leaveList() {
	if len(state.listStack) > 0 {
		state.listStack = state.listStack[:len(state.listStack)-1]
	}
	if !state.inTightList() {
		state.ensureBlankLine()
	}
}

func (state *renderState) enterListItem() {
	if len(state.listStack) == 0 {
		return
	}
	top := &state.listStack[len(state.listStack)-1]

	var bullet string
	if top.ordered {
		bullet = fmt.Sprintf("%d. ", top.counter)
		top.counter++
	} else {
		bullet = "- "
	}

	bulletWidth := len(bullet) // ASCII-only, so byte length == visual width.
	continuation := strings.Repeat(" ", bulletWidth)

	// The pending bullet includes the current linePrefix so it
	// replaces the entire prefix for the first line of this item.
	state.pendingBullet = state.linePrefix + bullet
	state.pushPrefix(continuation, bulletWidth)
}

func (state *renderState) leaveListItem() {
	state.popPrefix()
	if !state.inTightList() {
		state.ensureBlankLine()
	} else {
		state.ensureNewline()
	}
}

func (state *renderState) renderThematicBreak() {
	rule := strings.Repeat("─", state.currentWidth())
	ruleStyle := state.newStyle().Foreground(state.palette.Border)
	state.ensureBlankLine()
	state.writeOutput(state.applyPrefixes(ruleStyle.Render(rule)))
	state.ensureNewline()
	state.ensureBlankLine()
}

// --- Inline handlers ---

func (state *renderState) handleText(node *ast.Text) {
	segment := node.Segment
	state.inline.WriteString(state.styledText(string(segment.Value(state.source))))

	if node.SoftLineBreak() {
		// Soft line breaks become spaces so hard-wrapped source text
		// reflows at any terminal width.
		state.inline.WriteString(" ")
	}
	if node.HardLineBreak() {
		state.inline.WriteString("\n")
	}
}

func (state *renderState) handleEmphasis(node *ast.Emphasis, entering bool) {
	if node.Level >= 2 {
		if entering {
			state.boldCount++
		} else {
			state.boldCount--
		}
	} else {
		if entering {
			state.italicCount++
		} else {
			state.italicCount--
		}
	}
}

func (state *renderState) renderCodeSpan(node ast.Node) {
	var code strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if textNode, ok := child.(*ast.Text); ok {
			segment := textNode.Segment
			code.Write(segment.Value(state.source))
		} else if strNode, ok := child.(*ast.String); ok {
			code.Write(strNode.Value)
		}
	}
	codeStyle := state.newStyle().Foreground(state.palette.Faint)
	state.inline.WriteString(codeStyle.Render(code.String()))
}

func (state *renderState) renderLink(node *ast.Link) {
	// renderInlineContent already applies inline styling to the link
	// text, so write it directly without double-styling.
	displayText := state.renderInlineContent(node)
	url := string(node.Destination)

	state.inline.WriteString(displayText)
	if url != "" {
		urlStyle := state.newStyle().Foreground(state.palette.Faint)
		state.inline.WriteString(" " + urlStyle.Render("("+url+")"))
	}
}
