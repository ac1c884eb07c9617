package parser

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/chunkhound-go/chunkhound/internal/domain"
)

// TreeSitterParser implements Parser for a single tree-sitter grammar,
// walking the parse tree for nodes whose type is in the LanguageConfig's
// NodeTypes map and emitting one Descriptor per match.
type TreeSitterParser struct {
	cfg *LanguageConfig
}

// NewTreeSitterParser creates a parser bound to one language configuration.
func NewTreeSitterParser(cfg *LanguageConfig) *TreeSitterParser {
	return &TreeSitterParser{cfg: cfg}
}

// SupportedExtensions implements Parser.
func (p *TreeSitterParser) SupportedExtensions() []string {
	return p.cfg.Extensions
}

// Parse implements Parser. An unparseable source yields an empty
// descriptor list rather than an error.
func (p *TreeSitterParser) Parse(ctx context.Context, path string, content []byte) ([]Descriptor, error) {
	if len(content) == 0 {
		return nil, nil
	}

	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(p.cfg.TSLanguage)

	tree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil || tree == nil {
		return []Descriptor{}, nil
	}
	defer tree.Close()

	var out []Descriptor
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if chunkType, ok := p.cfg.NodeTypes[n.Type()]; ok {
			out = append(out, p.describeNode(n, chunkType, content))
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())

	return out, nil
}

func (p *TreeSitterParser) describeNode(n *sitter.Node, chunkType domain.ChunkType, content []byte) Descriptor {
	name := n.ChildByFieldName(p.cfg.NameField)
	symbol := ""
	if name != nil {
		symbol = string(content[name.StartByte():name.EndByte()])
	}
	return Descriptor{
		Symbol:    symbol,
		ChunkType: chunkType,
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
		Code:      string(content[n.StartByte():n.EndByte()]),
	}
}
