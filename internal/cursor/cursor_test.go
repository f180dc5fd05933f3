// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cursor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/cursor"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := cursor.Cursor{
		{EntityName: "Note", FieldName: "createdAt", FieldValue: "2026-01-01T00:00:00Z", Direction: cursor.Desc},
		{EntityName: "Note", FieldName: "id", FieldValue: float64(42), Direction: cursor.Asc},
	}

	encoded, err := c.Encode()
	require.NoError(t, err)
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")

	decoded, err := cursor.Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "createdAt", decoded[0].FieldName)
	assert.Equal(t, cursor.Desc, decoded[0].Direction)
}

func TestDecode_MalformedInput(t *testing.T) {
	_, err := cursor.Decode("not-valid-base64!!!")
	require.Error(t, err)
}

func TestForEntity_RejectsMismatchedEntity(t *testing.T) {
	c := cursor.Cursor{{EntityName: "Note", FieldName: "id", FieldValue: 1, Direction: cursor.Asc}}
	encoded, err := c.Encode()
	require.NoError(t, err)

	_, err = cursor.ForEntity(encoded, "Comment")
	assert.Error(t, err)

	decoded, err := cursor.ForEntity(encoded, "Note")
	require.NoError(t, err)
	assert.Len(t, decoded, 1)
}
