package coordination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_SameDBPathProducesSameDir(t *testing.T) {
	a, err := Dir("/tmp/example.db")
	require.NoError(t, err)
	b, err := Dir("/tmp/example.db")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDir_DifferentDBPathsProduceDifferentDirs(t *testing.T) {
	a, err := Dir("/tmp/one.db")
	require.NoError(t, err)
	b, err := Dir("/tmp/two.db")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
