package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"reflect"
)

// Codec converts documents to and from their stored byte form.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default Codec. Output is indented for operator-friendly
// files; map keys are emitted in sorted order.
type JSONCodec struct{}

// Marshal encodes v as indented JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// Unmarshal decodes JSON data into v. Numbers decode as json.Number so
// integers beyond 2^53 keep every digit.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	return decodeJSON(data, v)
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after top-level JSON value")
	}
	return nil
}

// Equal reports whether two documents are semantically equal. Map ordering
// is irrelevant and numbers compare by exact value, so 1, 1.0 and
// json.Number("1") are equal while 9007199254740993 and 9007199254740992
// are not.
func Equal(a, b Document) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return EqualValues(a, b)
}

// EqualValues compares any two JSON-encodable values the way Equal compares
// documents.
func EqualValues(a, b any) bool {
	ca, err := canonical(a)
	if err != nil {
		return false
	}
	cb, err := canonical(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(ca, cb)
}

// canonical reduces v to plain JSON values with every number replaced by
// its exact rational form.
func canonical(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := decodeJSON(data, &out); err != nil {
		return nil, err
	}
	return normalizeNumbers(out)
}

func normalizeNumbers(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			n, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case []any:
		for i, e := range t {
			n, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	case json.Number:
		r, ok := new(big.Rat).SetString(t.String())
		if !ok {
			return nil, fmt.Errorf("invalid number %q", t)
		}
		return numberValue{r.RatString()}, nil
	default:
		return v, nil
	}
}

// numberValue keeps normalized numbers distinct from strings with the same
// text.
type numberValue struct{ rat string }

// Clone returns a deep copy of doc made through a JSON round trip, so the
// copy shares no nested maps or slices with the original. Numbers in the
// copy are json.Number.
func Clone(doc Document) (Document, error) {
	if doc == nil {
		return nil, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var out Document
	if err := decodeJSON(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}

func encodeDocument(c Codec, op, key string, doc Document) ([]byte, error) {
	data, err := c.Marshal(doc)
	if err != nil {
		return nil, newError(KindInvalidArgument, op, key, fmt.Errorf("document is not encodable: %w", err))
	}
	return data, nil
}

func decodeDocument(c Codec, op, key string, version int, data []byte) (Document, error) {
	var doc Document
	if err := c.Unmarshal(data, &doc); err != nil {
		return nil, versionError(KindCorruptData, op, key, version, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}
