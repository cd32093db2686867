package refunds

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestTruncateKeepsRunesWhole(t *testing.T) {
	require.Equal(t, "short", truncate("short", 500))
	require.Equal(t, "abc", truncate("abcdef", 3))

	reason := strings.Repeat("a", 499) + "é: card declined"
	got := truncate(reason, 500)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, strings.Repeat("a", 499), got)

	got = truncate(strings.Repeat("€", 200), 500)
	require.True(t, utf8.ValidString(got))
	require.Len(t, got, 498)
}
