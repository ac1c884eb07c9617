package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/parser"
)

func TestNormalizeDropsBelowMinimumLineCount(t *testing.T) {
	c := New(Options{})
	descriptors := []parser.Descriptor{
		{Symbol: "f", ChunkType: domain.ChunkTypeFunction, StartLine: 1, EndLine: 2, Code: "func f() {}\n"},
	}
	chunks := c.Normalize("file1", "go", descriptors)
	assert.Empty(t, chunks, "a 1-line code chunk is below the default minimum of 3")
}

func TestNormalizeDropsAboveMaximumLineCount(t *testing.T) {
	c := New(Options{MaxLines: 5})
	code := "line1\nline2\nline3\nline4\nline5\nline6\n"
	descriptors := []parser.Descriptor{
		{Symbol: "f", ChunkType: domain.ChunkTypeFunction, StartLine: 1, EndLine: 6, Code: code},
	}
	chunks := c.Normalize("file1", "go", descriptors)
	assert.Empty(t, chunks)
}

func TestNormalizeStripsTrailingWhitespaceAndBlankLines(t *testing.T) {
	c := New(Options{})
	code := "\n\nfunc f() {  \n\treturn 1   \n}\n\n\n"
	descriptors := []parser.Descriptor{
		{Symbol: "f", ChunkType: domain.ChunkTypeFunction, StartLine: 10, EndLine: 16, Code: code},
	}
	chunks := c.Normalize("file1", "go", descriptors)
	require.Len(t, chunks, 1)
	assert.Equal(t, "func f() {\n\treturn 1\n}", chunks[0].Code)
	assert.Equal(t, 12, chunks[0].StartLine, "leading blank lines shift start_line")
}

func TestNormalizeDropsGeneratedMarkers(t *testing.T) {
	c := New(Options{})
	descriptors := []parser.Descriptor{
		{Symbol: "f", ChunkType: domain.ChunkTypeFunction, StartLine: 1, EndLine: 4,
			Code: "// Code generated by protoc-gen-go. DO NOT EDIT.\nfunc f() {\n\treturn 1\n}"},
	}
	chunks := c.Normalize("file1", "go", descriptors)
	assert.Empty(t, chunks)
}

func TestNormalizeDedupesBySymbolAndCodeHash(t *testing.T) {
	c := New(Options{})
	code := "func f() {\n\treturn 1\n}"
	descriptors := []parser.Descriptor{
		{Symbol: "f", ChunkType: domain.ChunkTypeFunction, StartLine: 1, EndLine: 3, Code: code},
		{Symbol: "f", ChunkType: domain.ChunkTypeFunction, StartLine: 50, EndLine: 52, Code: code},
	}
	chunks := c.Normalize("file1", "go", descriptors)
	require.Len(t, chunks, 1, "second identical descriptor is a duplicate")
	assert.Equal(t, 1, chunks[0].StartLine, "keeps the first occurrence")
}

func TestNormalizeUsesDocumentationMinimumForHeaders(t *testing.T) {
	c := New(Options{})
	descriptors := []parser.Descriptor{
		{Symbol: "Intro", ChunkType: domain.ChunkTypeHeader1, StartLine: 1, EndLine: 1, Code: "# Intro"},
	}
	chunks := c.Normalize("file1", "markdown", descriptors)
	require.Len(t, chunks, 1, "single-line headers satisfy the documentation minimum of 1")
}
