package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/chunkhound-go/chunkhound/internal/domain"
)

// LanguageConfig describes how to recognize symbol-defining nodes for one
// tree-sitter grammar.
type LanguageConfig struct {
	Name       string
	Extensions []string
	TSLanguage *sitter.Language

	// NodeTypes maps a tree-sitter node type to the domain.ChunkType it
	// produces. Every node of these types becomes a chunk, at any depth
	// of the tree.
	NodeTypes map[string]domain.ChunkType

	// NameField is the tree-sitter field name used to extract an
	// identifier's text from a symbol-defining node.
	NameField string
}

func defaultLanguageConfigs() map[string]*LanguageConfig {
	return map[string]*LanguageConfig{
		"go": {
			Name:       "go",
			Extensions: []string{".go"},
			TSLanguage: golang.GetLanguage(),
			NodeTypes: map[string]domain.ChunkType{
				"function_declaration": domain.ChunkTypeFunction,
				"method_declaration":   domain.ChunkTypeMethod,
				"type_declaration":     domain.ChunkTypeType,
				"const_declaration":    domain.ChunkTypeConstant,
				"var_declaration":      domain.ChunkTypeVariable,
			},
			NameField: "name",
		},
		"python": {
			Name:       "python",
			Extensions: []string{".py", ".pyi"},
			TSLanguage: python.GetLanguage(),
			NodeTypes: map[string]domain.ChunkType{
				"function_definition": domain.ChunkTypeFunction,
				"class_definition":    domain.ChunkTypeClass,
			},
			NameField: "name",
		},
		"javascript": {
			Name:       "javascript",
			Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
			TSLanguage: javascript.GetLanguage(),
			NodeTypes: map[string]domain.ChunkType{
				"function_declaration": domain.ChunkTypeFunction,
				"class_declaration":    domain.ChunkTypeClass,
				"method_definition":    domain.ChunkTypeMethod,
			},
			NameField: "name",
		},
		"typescript": {
			Name:       "typescript",
			Extensions: []string{".ts"},
			TSLanguage: typescript.GetLanguage(),
			NodeTypes: map[string]domain.ChunkType{
				"function_declaration":   domain.ChunkTypeFunction,
				"class_declaration":      domain.ChunkTypeClass,
				"method_definition":      domain.ChunkTypeMethod,
				"interface_declaration":  domain.ChunkTypeInterface,
				"type_alias_declaration": domain.ChunkTypeType,
			},
			NameField: "name",
		},
		"tsx": {
			Name:       "tsx",
			Extensions: []string{".tsx"},
			TSLanguage: tsx.GetLanguage(),
			NodeTypes: map[string]domain.ChunkType{
				"function_declaration":  domain.ChunkTypeFunction,
				"class_declaration":     domain.ChunkTypeClass,
				"method_definition":     domain.ChunkTypeMethod,
				"interface_declaration": domain.ChunkTypeInterface,
			},
			NameField: "name",
		},
	}
}
