package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffMime(t *testing.T) {
	assert.Equal(t, "image/jpeg", SniffMime([]byte{0xFF, 0xD8, 0xFF}))
	assert.Equal(t, "image/png", SniffMime([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0}))
	assert.Equal(t, "application/pdf", SniffMime([]byte("%PDF-1.7\n")))
	assert.Equal(t, "text/plain", SniffMime([]byte("Q1: What is 2+2?")))
	assert.Equal(t, "application/octet-stream", SniffMime(nil))
}

func TestPickMIME(t *testing.T) {
	assert.Equal(t, "text/plain", PickMIME("text/plain; charset=utf-8", nil))
	assert.Equal(t, "application/pdf", PickMIME("application/octet-stream", []byte("%PDF-1.4")))
	assert.Equal(t, "image/gif", PickMIME("IMAGE/GIF", nil))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, "# Solution\n2+2=4", StripCodeFences("```markdown\n# Solution\n2+2=4\n```"))
	assert.Equal(t, "# Solution", StripCodeFences("  # Solution \n"))

	inner := "Intro\n```python\nprint(1)\n```\nDone"
	assert.Equal(t, inner, StripCodeFences(inner))

	two := "```\na\n```\ntext\n```\nb\n```"
	assert.Equal(t, two, StripCodeFences(two))
}

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	assert.Equal(t, "abcd\n\txy", SanitizeText("ab\x00cd\x01\x02\n\txy"))
}

func TestSplitRunes(t *testing.T) {
	s := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	parts := SplitRunes(s, 10)
	require.Len(t, parts, 2)
	assert.Equal(t, strings.Repeat("a", 8)+"\n", parts[0])
	assert.Equal(t, strings.Repeat("b", 8), parts[1])
	assert.Equal(t, s, strings.Join(parts, ""))

	assert.Equal(t, []string{"short"}, SplitRunes("short", 10))

	long := strings.Repeat("я", 25)
	parts = SplitRunes(long, 10)
	require.Len(t, parts, 3)
	assert.Equal(t, long, strings.Join(parts, ""))
}
