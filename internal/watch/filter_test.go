package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chunkhound-go/chunkhound/internal/parser"
)

func TestRegistrySupported_MatchesRegisteredExtension(t *testing.T) {
	supported := RegistrySupported(parser.DefaultRegistry())
	assert.True(t, supported("/repo/main.go"))
	assert.False(t, supported("/repo/image.png"))
}

func TestRegistrySupported_DeletedPathIsFilenameOnlyCheck(t *testing.T) {
	supported := RegistrySupported(parser.DefaultRegistry())
	assert.True(t, supported("/repo/no-longer-exists.py"))
}
