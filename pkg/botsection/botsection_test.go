package botsection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceScenarioB1(t *testing.T) {
	in := "<!-- BEGIN BOT SECTION --><!-- update #1 -->\nA\n<!-- END BOT SECTION -->"
	out, ok := Replace(in, "B", UpdateCounter)
	require.True(t, ok)
	assert.Equal(t, "<!-- BEGIN BOT SECTION --><!-- update #2 -->\nB\n<!-- END BOT SECTION -->", out)
}

func TestReplaceScenarioB2NoOp(t *testing.T) {
	in := "<!-- BEGIN BOT SECTION --><!-- update #1 -->\nA\n<!-- END BOT SECTION -->"
	out, ok := Replace(in, "A", UpdateCounter)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestReplaceScenarioB3CreatesMarkers(t *testing.T) {
	in := "No bot section here"
	out, ok := Replace(in, "X", 0)
	require.True(t, ok)
	assert.Equal(t, "No bot section here\n<!-- BEGIN BOT SECTION -->\nX\n<!-- END BOT SECTION -->", out)
}

func TestReplaceScenarioB4MustExistFails(t *testing.T) {
	in := "No bot section here"
	out, ok := Replace(in, "X", MustExist)
	assert.False(t, ok)
	assert.Equal(t, in, out)
}

func TestReplaceIdempotent(t *testing.T) {
	inputs := []string{
		"no section yet",
		"<!-- BEGIN BOT SECTION -->\nold\n<!-- END BOT SECTION -->",
		"prefix text\n<!-- BEGIN BOT SECTION -->old<!-- END BOT SECTION -->\nsuffix text",
	}
	for _, in := range inputs {
		once, ok := Replace(in, "new body", 0)
		require.True(t, ok)
		twice, ok := Replace(once, "new body", 0)
		require.True(t, ok)
		assert.Equal(t, once, twice)
	}
}

func TestReplaceBodyExtractionLaw(t *testing.T) {
	inputs := []string{"", "hello", "<!-- BEGIN BOT SECTION -->stale<!-- END BOT SECTION -->"}
	for _, in := range inputs {
		out, ok := Replace(in, "payload", 0)
		require.True(t, ok)
		parsed := Parse(out)
		body := parsed.Body
		if len(body) > 0 && body[0] == '\n' {
			body = body[1:]
		}
		assert.Equal(t, "payload", body)
	}
}

func TestReplaceCounterMonotone(t *testing.T) {
	in := "<!-- BEGIN BOT SECTION --><!-- update #41 -->\nold\n<!-- END BOT SECTION -->"
	out, ok := Replace(in, "new", UpdateCounter)
	require.True(t, ok)
	assert.Equal(t, uint64(42), Parse(out).UpdateCounter)
}

func TestReplaceCounterOutOfRangeResetsToOne(t *testing.T) {
	// A counter value outside [0, 2^63) is treated as absent (0), so the
	// next value is 1.
	huge := "18446744073709551615" // 2^64-1, well outside range
	in := "<!-- BEGIN BOT SECTION --><!-- update #" + huge + " -->\nold\n<!-- END BOT SECTION -->"
	out, ok := Replace(in, "new", UpdateCounter)
	require.True(t, ok)
	assert.Equal(t, uint64(1), Parse(out).UpdateCounter)
}

func TestParseNoMarkers(t *testing.T) {
	r := Parse("plain text")
	assert.False(t, r.HasBeginMarker)
	assert.Equal(t, "plain text", r.Prefix)
	assert.Empty(t, r.Body)
}

func TestParseOpenOnly(t *testing.T) {
	r := Parse("<!-- BEGIN BOT SECTION -->\nrest of page")
	assert.True(t, r.HasBeginMarker)
	assert.False(t, r.HasEndMarker)
	assert.Equal(t, "\nrest of page", r.Body)
}
