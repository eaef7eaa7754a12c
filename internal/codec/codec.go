// Package codec converts cached records to and from their stored byte form.
//
// Two shapes are supported: an album list (search results) and a string list
// (search history). Both are JSON arrays. Decoding is strict: malformed,
// truncated or mismatched input is a *DecodeError, never an empty value, so
// callers can tell an empty result from a corrupted entry.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/mmcdole/albumcache/internal/domain"
)

// Shape names the record type being decoded
type Shape string

const (
	ShapeAlbums  Shape = "albums"
	ShapeStrings Shape = "strings"
)

// DecodeError reports bytes that could not be decoded into the expected shape.
type DecodeError struct {
	Shape Shape
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Shape, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrInvalidUTF8 is returned when encoding a string that JSON would rewrite
var ErrInvalidUTF8 = errors.New("string is not valid UTF-8")

var (
	errEmptyInput    = errors.New("empty input")
	errNotArray      = errors.New("top-level value is not an array")
	errTrailingBytes = errors.New("trailing data after array")
)

// EncodeAlbums serializes an album list. A nil list encodes as an empty array.
func EncodeAlbums(albums []domain.Album) ([]byte, error) {
	if albums == nil {
		albums = []domain.Album{}
	}
	return json.Marshal(albums)
}

// DecodeAlbums parses bytes produced by EncodeAlbums.
func DecodeAlbums(data []byte) ([]domain.Album, error) {
	albums := []domain.Album{}
	if err := decodeArray(data, &albums); err != nil {
		return nil, &DecodeError{Shape: ShapeAlbums, Err: err}
	}
	return albums, nil
}

// EncodeStrings serializes a string list. A nil list encodes as an empty array.
// Invalid UTF-8 is rejected: JSON would replace it with U+FFFD and the decoded
// value would no longer equal the encoded one.
func EncodeStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	for i, v := range values {
		if !utf8.ValidString(v) {
			return nil, fmt.Errorf("encode strings: value %d: %w", i, ErrInvalidUTF8)
		}
	}
	return json.Marshal(values)
}

// DecodeStrings parses bytes produced by EncodeStrings.
func DecodeStrings(data []byte) ([]string, error) {
	values := []string{}
	if err := decodeArray(data, &values); err != nil {
		return nil, &DecodeError{Shape: ShapeStrings, Err: err}
	}
	return values, nil
}

func decodeArray(data []byte, dest interface{}) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errEmptyInput
	}
	if trimmed[0] != '[' {
		return errNotArray
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errTrailingBytes
	}
	return nil
}
