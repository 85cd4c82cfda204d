// Package parser extracts (path, content) file blocks from marker-delimited
// generation output.
package parser

import (
	"regexp"
	"strings"
)

// FileBlock is a single file extracted from generation output.
type FileBlock struct {
	Path    string
	Content string
}

// markerRe matches ---FILE: <path>--- lines. The first path byte must not be
// a dash or whitespace so runs of separator dashes never match.
var markerRe = regexp.MustCompile(`---FILE:\s*([^\s-][^\n]*?)---`)

// ParseFileBlocks parses text into an ordered list of file blocks. Each
// block's content is everything between its marker and the next marker (or
// end of text), trimmed. No markers yields an empty slice, never an error;
// per-phase fallback policy is the caller's concern.
func ParseFileBlocks(text string) []FileBlock {
	matches := markerRe.FindAllStringSubmatchIndex(text, -1)
	blocks := make([]FileBlock, 0, len(matches))
	for i, m := range matches {
		path := strings.TrimSpace(text[m[2]:m[3]])
		start := m[1]
		end := len(text)
		if i < len(matches)-1 {
			end = matches[i+1][0]
		}
		content := strings.TrimSpace(text[start:end])
		content = stripFence(content)
		blocks = append(blocks, FileBlock{Path: path, Content: content})
	}
	return blocks
}

// stripFence unwraps a fenced code block: if the content begins with a fence
// delimiter and a second one occurs later, the first line (fence + language
// tag) is dropped and the content truncates at the closing fence. Fence
// markers must not leak into written files.
func stripFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	closing := strings.Index(content[3:], "```")
	if closing < 0 {
		return content
	}
	closing += 3
	nl := strings.IndexByte(content, '\n')
	if nl < 0 || nl > closing {
		return content
	}
	return strings.TrimSpace(content[nl+1 : closing])
}

// LegacyBackendMarker is the single marker older backend outputs used to
// split a package manifest from the entry-point source file.
const LegacyBackendMarker = "---FILE: src/index.js---"

// SplitLegacy handles the legacy single-marker backend format: everything
// before the marker is package.json, everything after is src/index.js.
// Returns nil if the marker is absent.
func SplitLegacy(text string) []FileBlock {
	idx := strings.Index(text, LegacyBackendMarker)
	if idx < 0 {
		return nil
	}
	var blocks []FileBlock
	if pkg := strings.TrimSpace(text[:idx]); pkg != "" {
		blocks = append(blocks, FileBlock{Path: "package.json", Content: pkg})
	}
	if index := strings.TrimSpace(text[idx+len(LegacyBackendMarker):]); index != "" {
		blocks = append(blocks, FileBlock{Path: "src/index.js", Content: index})
	}
	return blocks
}

// NormalizePrefix rebases path under prefix (e.g. "backend"), stripping a
// redundant leading prefix the model may already have included so it is
// never doubled.
func NormalizePrefix(path, prefix string) string {
	trimmed := strings.TrimSpace(strings.TrimPrefix(path, prefix+"/"))
	if trimmed == path {
		trimmed = strings.TrimSpace(strings.TrimPrefix(path, prefix))
	}
	if trimmed == "" {
		trimmed = path
	}
	return prefix + "/" + trimmed
}
