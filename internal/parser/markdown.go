package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/chunkhound-go/chunkhound/internal/domain"
)

// headerPattern matches ATX headers: "# Title", "## Title", etc.
var headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

var headerChunkTypes = map[int]domain.ChunkType{
	1: domain.ChunkTypeHeader1,
	2: domain.ChunkTypeHeader2,
	3: domain.ChunkTypeHeader3,
	4: domain.ChunkTypeHeader4,
	5: domain.ChunkTypeHeader5,
	6: domain.ChunkTypeHeader6,
}

// MarkdownParser splits a document into header chunks (one per section
// title, running up to the next header of any level) and paragraph
// chunks for the remaining body text, grounded on a regex-based
// markdown chunker.
type MarkdownParser struct{}

// NewMarkdownParser creates a stateless markdown parser.
func NewMarkdownParser() *MarkdownParser { return &MarkdownParser{} }

// SupportedExtensions implements Parser.
func (p *MarkdownParser) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// Parse implements Parser.
func (p *MarkdownParser) Parse(ctx context.Context, path string, content []byte) ([]Descriptor, error) {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	matches := headerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return p.paragraphDescriptors(text, "", 1), nil
	}

	var out []Descriptor
	lineOf := newLineIndex(text)

	for i, m := range matches {
		level := m[3] - m[2]
		title := strings.TrimSpace(text[m[4]:m[5]])
		startByte := m[0]
		endByte := len(text)
		if i+1 < len(matches) {
			endByte = matches[i+1][0]
		}
		startLine := lineOf(startByte)
		endLine := lineOf(endByte - 1)
		section := text[startByte:endByte]

		out = append(out, Descriptor{
			Symbol:    title,
			ChunkType: headerChunkTypes[clamp(level, 1, 6)],
			StartLine: startLine,
			EndLine:   endLine,
			StartByte: startByte,
			EndByte:   endByte,
			Code:      strings.TrimRight(section, "\n"),
		})

		// Body paragraphs under this header, excluding the header line itself.
		headerLineEnd := strings.IndexByte(section, '\n')
		if headerLineEnd == -1 {
			continue
		}
		body := section[headerLineEnd+1:]
		bodyStartLine := startLine + 1
		out = append(out, p.paragraphDescriptors(body, title, bodyStartLine)...)
	}

	return out, nil
}

func (p *MarkdownParser) paragraphDescriptors(text, parentHeader string, firstLine int) []Descriptor {
	var out []Descriptor
	paras := strings.Split(text, "\n\n")
	line := firstLine
	for _, para := range paras {
		lines := strings.Count(para, "\n") + 1
		trimmed := strings.TrimSpace(para)
		if trimmed != "" {
			out = append(out, Descriptor{
				ChunkType:    domain.ChunkTypeParagraph,
				StartLine:    line,
				EndLine:      line + lines - 1,
				Code:         trimmed,
				ParentHeader: parentHeader,
			})
		}
		line += lines + 1 // +1 for the blank line consumed by Split
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// newLineIndex returns a function mapping a byte offset to its 1-indexed line.
func newLineIndex(text string) func(byteOffset int) int {
	// Precompute line-start byte offsets.
	starts := []int{0}
	for i, r := range text {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return func(byteOffset int) int {
		// Binary search for the last line start <= byteOffset.
		lo, hi := 0, len(starts)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if starts[mid] <= byteOffset {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		return lo + 1
	}
}
