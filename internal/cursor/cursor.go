// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package cursor implements the Pagination Cursor Codec (spec.md §4.6): an
ordered list of {EntityName, FieldName, FieldValue, Direction} tuples,
serialized as JSON and encoded to URL-safe Base64 without padding.
*/
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/taibuivan/dataapi/internal/platform/apperr"
)

// Direction mirrors queryir.Direction on the wire as the integers spec.md
// §6 fixes: 0 = ASC, 1 = DESC.
type Direction int

const (
	Asc  Direction = 0
	Desc Direction = 1
)

// Element is one entry of a pagination cursor.
type Element struct {
	EntityName string      `json:"EntityName"`
	FieldName  string      `json:"FieldName"`
	FieldValue interface{} `json:"FieldValue"`
	Direction  Direction   `json:"Direction"`
}

// Cursor is the ordered tuple list minted on a Find response and decoded
// back on the next request's $after parameter.
type Cursor []Element

// Encode serializes c as URL-safe, unpadded Base64 of its UTF-8 JSON form.
func (c Cursor) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("cursor: failed to marshal: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses a Base64url cursor string minted by [Cursor.Encode].
// Malformed input fails with [apperr.BadRequest], per spec.md §4.6.
func Decode(encoded string) (Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperr.BadRequest("Malformed pagination cursor")
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, apperr.BadRequest("Malformed pagination cursor")
	}
	return c, nil
}

// ForEntity decodes encoded and verifies every element names entityName, so
// a cursor minted by one endpoint cannot be replayed against another.
func ForEntity(encoded, entityName string) (Cursor, error) {
	c, err := Decode(encoded)
	if err != nil {
		return nil, err
	}
	for _, elem := range c {
		if elem.EntityName != entityName {
			return nil, apperr.BadRequest("Pagination cursor does not belong to entity " + entityName)
		}
	}
	return c, nil
}
