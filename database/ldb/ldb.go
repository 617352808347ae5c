// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ldb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/0xsoniclabs/smartdb/change"
	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/0xsoniclabs/tracy"
	"github.com/golang/snappy"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v4"
)

// Key layout:
//
//	e/<kind>/<primary key> -> entity
//	h/<height>             -> history row
//	m/last                 -> height of the last persisted block
var (
	entityPrefix  = []byte("e/")
	historyPrefix = []byte("h/")
	lastHeightKey = []byte("m/last")
)

// levelDbGateway is a gateway storing entities and history in LevelDB. Values
// are msgpack encoded and snappy compressed.
type levelDbGateway struct {
	db       *leveldb.DB
	registry *model.Registry
}

var _ gateway.Gateway = (*levelDbGateway)(nil)

var options = &opt.Options{
	// values are compressed individually
	Compression: opt.NoCompression,
}

// Open opens or creates a LevelDB gateway in the given directory.
func Open(path string, registry *model.Registry) (gateway.Gateway, error) {
	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return &levelDbGateway{db: db, registry: registry}, nil
}

// NewMemory creates a LevelDB gateway keeping all data in memory.
func NewMemory(registry *model.Registry) (gateway.Gateway, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), options)
	if err != nil {
		return nil, err
	}
	return &levelDbGateway{db: db, registry: registry}, nil
}

func (g *levelDbGateway) Close() error {
	return g.db.Close()
}

// --- History ---

type historyRow struct {
	Digest  []byte `msgpack:"d"`
	Changes []byte `msgpack:"c"`
}

func historyKey(height int64) []byte {
	res := make([]byte, len(historyPrefix)+8)
	copy(res, historyPrefix)
	binary.BigEndian.PutUint64(res[len(historyPrefix):], uint64(height))
	return res
}

func (g *levelDbGateway) LastHeight(ctx context.Context) (int64, error) {
	data, err := g.db.Get(lastHeightKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid encoding of last height: %x", data)
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

func (g *levelDbGateway) History(ctx context.Context, from, to int64) ([]gateway.HistoryEntry, error) {
	if to < from || to < 0 {
		return nil, nil
	}
	iter := g.db.NewIterator(&util.Range{Start: historyKey(max(from, 0)), Limit: historyKey(to + 1)}, nil)
	defer iter.Release()
	var res []gateway.HistoryEntry
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		height := int64(binary.BigEndian.Uint64(iter.Key()[len(historyPrefix):]))
		var row historyRow
		if err := g.decode(iter.Value(), &row); err != nil {
			return nil, fmt.Errorf("invalid history of height %d: %w", height, err)
		}
		changes, err := change.Decode(row.Changes, g.registry)
		if err != nil {
			return nil, fmt.Errorf("invalid history of height %d: %w", height, err)
		}
		entry := gateway.HistoryEntry{Height: height, Changes: changes}
		copy(entry.Digest[:], row.Digest)
		res = append(res, entry)
	}
	return res, iter.Error()
}

func (g *levelDbGateway) LoadHistory(ctx context.Context, from, to int64) (map[int64][]change.Record, error) {
	entries, err := g.History(ctx, from, to)
	if err != nil {
		return nil, err
	}
	res := make(map[int64][]change.Record, len(entries))
	for _, entry := range entries {
		res[entry.Height] = entry.Changes
	}
	return res, nil
}

// --- Writes ---

func (g *levelDbGateway) Persist(ctx context.Context, height int64, block model.Entity, changes []change.Record) error {
	zone := tracy.ZoneBegin("ldb::persist")
	defer zone.End()
	last, err := g.LastHeight(ctx)
	if err != nil {
		return err
	}
	if height != last+1 {
		return fmt.Errorf("%w: persisting height %d after %d", gateway.ErrInvalidHeight, height, last)
	}

	w := g.newWriter()
	for _, record := range changes {
		if err := w.apply(record); err != nil {
			return err
		}
	}
	if block != nil {
		schema, err := g.registry.Get(model.BlockKind)
		if err != nil {
			return err
		}
		if err := w.put(schema, block); err != nil {
			return err
		}
	}

	data, err := change.Encode(changes)
	if err != nil {
		return err
	}
	digest := change.DigestOf(data)
	row, err := g.encode(historyRow{Digest: digest[:], Changes: data})
	if err != nil {
		return err
	}
	w.batch.Put(historyKey(height), row)
	w.batch.Put(lastHeightKey, binary.BigEndian.AppendUint64(nil, uint64(height)))
	return w.commit()
}

func (g *levelDbGateway) RevertTo(ctx context.Context, height int64) error {
	zone := tracy.ZoneBegin("ldb::revert_to")
	defer zone.End()
	if height < -1 {
		return fmt.Errorf("%w: %d", gateway.ErrInvalidHeight, height)
	}
	last, err := g.LastHeight(ctx)
	if err != nil {
		return err
	}
	if height >= last {
		return nil
	}
	entries, err := g.History(ctx, height+1, last)
	if err != nil {
		return err
	}
	w := g.newWriter()
	for i := len(entries) - 1; i >= 0; i-- {
		changes := entries[i].Changes
		for j := len(changes) - 1; j >= 0; j-- {
			if err := w.apply(changes[j].Inverse()); err != nil {
				return err
			}
		}
	}
	for cur := height + 1; cur <= last; cur++ {
		w.batch.Delete(historyKey(cur))
		w.delete(model.BlockKind, model.Key{"height": cur})
	}
	if height < 0 {
		w.batch.Delete(lastHeightKey)
	} else {
		w.batch.Put(lastHeightKey, binary.BigEndian.AppendUint64(nil, uint64(height)))
	}
	return w.commit()
}

// writer collects the updates of a single batch. Entities written by the
// batch are visible to later reads of the same writer.
type writer struct {
	gateway *levelDbGateway
	batch   *leveldb.Batch
	pending map[string]model.Entity // < nil for deleted entities
}

func (g *levelDbGateway) newWriter() *writer {
	return &writer{
		gateway: g,
		batch:   new(leveldb.Batch),
		pending: map[string]model.Entity{},
	}
}

func (w *writer) apply(record change.Record) error {
	schema, err := w.gateway.registry.Get(record.Model)
	if err != nil {
		return err
	}
	switch record.Type {
	case change.New:
		return w.put(schema, record.Current())
	case change.Modify:
		entity, found, err := w.get(schema, record.PrimaryKey)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("unable to modify missing entity %s(%v)", record.Model, record.PrimaryKey)
		}
		for name, value := range record.Current() {
			if value == nil {
				delete(entity, name)
			} else {
				entity[name] = value
			}
		}
		return w.put(schema, entity)
	case change.Delete:
		w.delete(record.Model, record.PrimaryKey)
		return nil
	}
	return fmt.Errorf("unsupported change type %v", record.Type)
}

func (w *writer) get(schema *model.Schema, key model.Key) (model.Entity, bool, error) {
	id := entityKey(schema.Name, key)
	if entity, found := w.pending[string(id)]; found {
		return entity.Clone(), entity != nil, nil
	}
	return w.gateway.getEntity(schema, id)
}

func (w *writer) put(schema *model.Schema, entity model.Entity) error {
	key, err := schema.PrimaryKeyOf(entity)
	if err != nil {
		return err
	}
	data, err := w.gateway.encode(toWire(entity))
	if err != nil {
		return err
	}
	id := entityKey(schema.Name, key)
	w.batch.Put(id, data)
	w.pending[string(id)] = entity.Clone()
	return nil
}

func (w *writer) delete(kind string, key model.Key) {
	id := entityKey(kind, key)
	w.batch.Delete(id)
	w.pending[string(id)] = nil
}

func (w *writer) commit() error {
	return w.gateway.db.Write(w.batch, &opt.WriteOptions{Sync: true})
}

// --- Queries ---

func entityKey(kind string, key model.Key) []byte {
	var buffer bytes.Buffer
	buffer.Write(entityPrefix)
	buffer.WriteString(kind)
	buffer.WriteByte('/')
	buffer.WriteString(key.String())
	return buffer.Bytes()
}

func (g *levelDbGateway) getEntity(schema *model.Schema, id []byte) (model.Entity, bool, error) {
	data, err := g.db.Get(id, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	entity, err := g.decodeEntity(schema, data)
	if err != nil {
		return nil, false, err
	}
	return entity, true, nil
}

func (g *levelDbGateway) FindOne(ctx context.Context, kind string, where model.Key) (model.Entity, bool, error) {
	schema, err := g.registry.Get(kind)
	if err != nil {
		return nil, false, err
	}
	query, err := gateway.Query{Where: where, Limit: 1}.Validate(schema)
	if err != nil {
		return nil, false, err
	}
	if key, err := schema.PrimaryKeyOf(model.Entity(query.Where)); err == nil {
		entity, found, err := g.getEntity(schema, entityKey(kind, key))
		if err != nil || !found || !query.Matches(entity) {
			return nil, false, err
		}
		return entity, true, nil
	}
	res, err := g.scan(ctx, schema, query)
	if err != nil || len(res) == 0 {
		return nil, false, err
	}
	return res[0], true, nil
}

func (g *levelDbGateway) FindAll(ctx context.Context, kind string, query gateway.Query) ([]model.Entity, error) {
	schema, err := g.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	query, err = query.Validate(schema)
	if err != nil {
		return nil, err
	}
	return g.scan(ctx, schema, query)
}

func (g *levelDbGateway) Count(ctx context.Context, kind string, where model.Key) (int64, error) {
	res, err := g.FindAll(ctx, kind, gateway.Query{Where: where})
	if err != nil {
		return 0, err
	}
	return int64(len(res)), nil
}

func (g *levelDbGateway) scan(ctx context.Context, schema *model.Schema, query gateway.Query) ([]model.Entity, error) {
	prefix := append(append([]byte{}, entityPrefix...), schema.Name+"/"...)
	iter := g.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var entities []model.Entity
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entity, err := g.decodeEntity(schema, iter.Value())
		if err != nil {
			return nil, err
		}
		if query.Matches(entity) {
			entities = append(entities, entity)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return query.Apply(entities), nil
}

// --- Encoding ---

func (g *levelDbGateway) encode(value any) ([]byte, error) {
	var buffer bytes.Buffer
	if err := msgpack.NewEncoder(&buffer).SortMapKeys(true).Encode(value); err != nil {
		return nil, err
	}
	return snappy.Encode(nil, buffer.Bytes()), nil
}

func (g *levelDbGateway) decode(data []byte, value any) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return err
	}
	return msgpack.NewDecoder(bytes.NewReader(raw)).UseDecodeInterfaceLoose(true).Decode(value)
}

func (g *levelDbGateway) decodeEntity(schema *model.Schema, data []byte) (model.Entity, error) {
	var values map[string]any
	if err := g.decode(data, &values); err != nil {
		return nil, fmt.Errorf("invalid encoding of %s entity: %w", schema.Name, err)
	}
	return schema.CoerceEntity(values)
}

func toWire(entity model.Entity) map[string]any {
	res := make(map[string]any, len(entity))
	for name, value := range entity {
		if value == nil {
			continue
		}
		if a, ok := value.(amount.Amount); ok {
			res[name] = a.String()
		} else {
			res[name] = value
		}
	}
	return res
}
