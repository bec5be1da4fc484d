package persistence

import "encoding/json"

// EncodeValue serializes an arbitrary Go value to a JSON document for
// storage in a BLOB column.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// DecodeValue deserializes a JSON document produced by EncodeValue into T.
// An empty payload decodes to the zero value of T.
func DecodeValue[T any](data []byte) (T, error) {
	var zero T
	if len(data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
