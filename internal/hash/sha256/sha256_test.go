package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsStable(t *testing.T) {
	t.Parallel()

	h := New()
	first := h.Hash([]byte("<html>page</html>"))
	second := h.Hash([]byte("<html>page</html>"))
	require.Equal(t, first, second)
	require.Len(t, first, 64)
	require.NotEqual(t, first, h.Hash([]byte("<html>other</html>")))
}
