package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogCursorRoundTrip(t *testing.T) {
	cursor := &LogCursor{
		StartedAt: time.Date(2026, time.March, 4, 10, 30, 0, 0, time.UTC),
		EntryID:   42,
	}

	token := EncodeLogCursor(cursor)
	require.NotEmpty(t, token)

	decoded, err := DecodeLogCursor(token)
	require.NoError(t, err)
	require.Equal(t, cursor.EntryID, decoded.EntryID)
	require.True(t, cursor.StartedAt.Equal(decoded.StartedAt))
}

func TestEmptyCursor(t *testing.T) {
	require.Empty(t, EncodeLogCursor(nil))

	decoded, err := DecodeLogCursor("")
	require.NoError(t, err)
	require.Nil(t, decoded)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, token := range []string{"!!", "bm90LWEtY3Vyc29y", "MTIzNDU="} {
		_, err := DecodeLogCursor(token)
		require.Error(t, err, "token %q", token)
	}
}
