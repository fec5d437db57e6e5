// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package markterm renders Markdown as ANSI-styled terminal text.
//
// It parses with goldmark (GFM extensions: tables, strikethrough,
// autolinks) and walks the AST directly rather than going through
// goldmark's renderer interface, because terminal output needs
// accumulate-then-wrap semantics: paragraph inline content collects
// in a buffer and gets word-wrapped as a unit when the paragraph
// closes. Soft line breaks become spaces so hard-wrapped source
// reflows at any terminal width. Fenced code blocks are syntax
// highlighted with chroma.
//
// The feature set is scoped to what pulse run reports contain:
// headings, paragraphs, emphasis, code spans and blocks, lists,
// blockquotes, tables, links, and thematic breaks. HTML and images
// are dropped from the output.
package markterm
