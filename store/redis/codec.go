package redis

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/gabteles/qu-mongoid/store"
)

func encode(doc store.Document) ([]byte, error) {
	b, err := msgpack.Marshal(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("qu/redis: encode: %w", err)
	}
	return b, nil
}

// decode reads a document with integers widened to int64 and floats to
// float64.
func decode(data []byte) (store.Document, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("qu/redis: decode: %w", err)
	}
	return store.Document(m), nil
}
