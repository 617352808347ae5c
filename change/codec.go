// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package change

import (
	"bytes"
	"fmt"
	"io"

	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vmihailenco/msgpack/v4"
	"golang.org/x/crypto/sha3"
)

// Hash is the Keccak-256 digest of an encoded list of change records.
type Hash common.Hash

// String renders the hash as 0x prefixed hex.
func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// ParseHash parses the hex form produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	data, err := hexutil.Decode(s)
	if err != nil {
		return Hash{}, err
	}
	if len(data) != common.HashLength {
		return Hash{}, fmt.Errorf("invalid hash length %d", len(data))
	}
	return Hash(common.BytesToHash(data)), nil
}

type wireRecord struct {
	Type       Type           `msgpack:"t"`
	Model      string         `msgpack:"m"`
	PrimaryKey map[string]any `msgpack:"k"`
	DBVersion  int64          `msgpack:"v"`
	Changes    []wireChange   `msgpack:"c"`
}

type wireChange struct {
	Name     string `msgpack:"n"`
	Original any    `msgpack:"o"`
	Current  any    `msgpack:"c"`
}

// Encode produces the canonical binary form of a list of change records.
// Equal lists always have equal encodings.
func Encode(records []Record) ([]byte, error) {
	var buffer bytes.Buffer
	if err := encodeTo(&buffer, records); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func encodeTo(out io.Writer, records []Record) error {
	wire := make([]wireRecord, 0, len(records))
	for _, record := range records {
		cur := wireRecord{
			Type:       record.Type,
			Model:      record.Model,
			PrimaryKey: make(map[string]any, len(record.PrimaryKey)),
			DBVersion:  record.DBVersion,
			Changes:    make([]wireChange, 0, len(record.PropertyChanges)),
		}
		for name, value := range record.PrimaryKey {
			cur.PrimaryKey[name] = toWire(value)
		}
		for _, change := range record.PropertyChanges {
			cur.Changes = append(cur.Changes, wireChange{
				Name:     change.Name,
				Original: toWire(change.Original),
				Current:  toWire(change.Current),
			})
		}
		wire = append(wire, cur)
	}
	if err := msgpack.NewEncoder(out).SortMapKeys(true).Encode(wire); err != nil {
		return fmt.Errorf("failed to encode change records: %w", err)
	}
	return nil
}

// Decode parses records produced by Encode. Values are restored to their
// canonical types using the schemas of the given registry.
func Decode(data []byte, registry *model.Registry) ([]Record, error) {
	var wire []wireRecord
	decoder := msgpack.NewDecoder(bytes.NewReader(data)).UseDecodeInterfaceLoose(true)
	if err := decoder.Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode change records: %w", err)
	}
	res := make([]Record, 0, len(wire))
	for _, cur := range wire {
		schema, err := registry.Get(cur.Model)
		if err != nil {
			return nil, err
		}
		key, err := schema.CoerceKey(cur.PrimaryKey)
		if err != nil {
			return nil, err
		}
		record := Record{
			Type:            cur.Type,
			Model:           cur.Model,
			PrimaryKey:      key,
			DBVersion:       cur.DBVersion,
			PropertyChanges: make([]PropertyChange, 0, len(cur.Changes)),
		}
		for _, change := range cur.Changes {
			original, err := schema.Coerce(change.Name, change.Original)
			if err != nil {
				return nil, err
			}
			current, err := schema.Coerce(change.Name, change.Current)
			if err != nil {
				return nil, err
			}
			record.PropertyChanges = append(record.PropertyChanges, PropertyChange{
				Name:     change.Name,
				Original: original,
				Current:  current,
			})
		}
		res = append(res, record)
	}
	return res, nil
}

// Digest computes the Keccak-256 hash of the canonical encoding of records.
// The encoding is hashed while it is produced.
func Digest(records []Record) (Hash, error) {
	hasher := sha3.NewLegacyKeccak256()
	if err := encodeTo(hasher, records); err != nil {
		return Hash{}, err
	}
	var res Hash
	hasher.Sum(res[:0])
	return res, nil
}

// DigestOf hashes an already encoded list of change records.
func DigestOf(data []byte) Hash {
	return Hash(crypto.Keccak256Hash(data))
}

func toWire(value any) any {
	if a, ok := value.(amount.Amount); ok {
		return a.String()
	}
	return value
}
