// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package tracker

//go:generate mockgen -source tracker.go -destination tracker_mocks.go -package tracker

import (
	"context"
	"fmt"
	"slices"

	"github.com/0xsoniclabs/smartdb/change"
	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/common/logging"
	"github.com/0xsoniclabs/smartdb/database/cache"
	"github.com/0xsoniclabs/smartdb/metrics"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/0xsoniclabs/tracy"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
)

// DefaultMaxHistoryVersionsHold is the number of block heights whose changes
// are kept in memory unless configured otherwise.
const DefaultMaxHistoryVersionsHold = 10

// HistoryLoader provides the change history of heights no longer held in
// memory.
type HistoryLoader interface {
	// LoadHistory returns the changes filed for each height in [from, to].
	// Heights without a stored change set are absent from the result.
	LoadHistory(ctx context.Context, from, to int64) (map[int64][]change.Record, error)
}

type Options struct {
	MaxHistoryVersionsHold int
	Logger                 zerolog.Logger
	Metrics                metrics.Collector
}

// Tracker registers every mutation of cached entities as a change record,
// groups changes into contract and block scopes and keeps the changes of
// recent blocks to be able to undo them.
//
// Two buffers collect changes: while a contract scope is open (see
// BeginConfirm) changes go to the unconfirmed buffer, otherwise directly to
// the confirmed buffer of the current block. AcceptChanges files the confirmed
// buffer as the history of a block height.
//
// A Tracker is not safe for concurrent use.
type Tracker struct {
	log      zerolog.Logger
	cache    *cache.Cache
	registry *model.Registry
	loader   HistoryLoader
	metrics  metrics.Collector

	confirming  bool
	unconfirmed []change.Record
	confirmed   []change.Record
	deleted     map[string]int // < entity token -> deletions in the buffers

	history        map[int64][]change.Record
	minVersion     int64
	currentVersion int64
	maxHold        int64
}

// valueComparer compares canonical property values.
var valueComparer = cmp.Options{
	cmp.Comparer(func(a, b amount.Amount) bool { return a.Equal(b) }),
}

func New(entities *cache.Cache, registry *model.Registry, loader HistoryLoader, options Options) *Tracker {
	if options.MaxHistoryVersionsHold <= 0 {
		options.MaxHistoryVersionsHold = DefaultMaxHistoryVersionsHold
	}
	if options.Metrics == nil {
		options.Metrics = metrics.NewNoopCollector()
	}
	return &Tracker{
		log:            logging.Component(options.Logger, "tracker"),
		cache:          entities,
		registry:       registry,
		loader:         loader,
		metrics:        options.Metrics,
		deleted:        map[string]int{},
		history:        map[int64][]change.Record{},
		minVersion:     -1,
		currentVersion: -1,
		maxHold:        int64(options.MaxHistoryVersionsHold),
	}
}

// InitVersion attaches the history of the given, last persisted height. It
// has no effect once a version is known.
func (t *Tracker) InitVersion(ctx context.Context, version int64) error {
	if t.currentVersion != -1 || version < 0 {
		return nil
	}
	history, err := t.loadHistory(ctx, version, version)
	if err != nil {
		return err
	}
	t.attachHistory(history)
	return nil
}

// --- Tracking ---

// TrackNew starts tracking a newly created entity. The entity is copied,
// completed with the schema's default values and gets version 1. The result
// is a copy of the tracked entity.
func (t *Tracker) TrackNew(schema *model.Schema, entity model.Entity) (model.Entity, error) {
	key, err := schema.PrimaryKeyOf(entity)
	if err != nil {
		return nil, err
	}
	if err := t.ensureNotTracking(schema, key); err != nil {
		return nil, err
	}
	tracked := entity.Clone()
	schema.SetDefaultValues(tracked)
	tracked[model.VersionProperty] = int64(1)
	if err := t.cache.Put(schema.Name, key, tracked); err != nil {
		return nil, err
	}

	record := change.Record{
		Type:       change.New,
		Model:      schema.Name,
		PrimaryKey: key.Clone(),
		DBVersion:  1,
	}
	for _, name := range schema.PropertyNames() {
		if value, found := tracked[name]; found {
			record.PropertyChanges = append(record.PropertyChanges, change.PropertyChange{
				Name:    name,
				Current: model.CloneValue(value),
			})
		}
	}
	t.push(record)
	return tracked.Clone(), nil
}

// TrackPersistent starts tracking an entity loaded from durable storage. No
// change is recorded.
func (t *Tracker) TrackPersistent(schema *model.Schema, entity model.Entity) (model.Entity, error) {
	key, err := schema.PrimaryKeyOf(entity)
	if err != nil {
		return nil, err
	}
	if err := t.ensureNotTracking(schema, key); err != nil {
		return nil, err
	}
	tracked := entity.Clone()
	if err := t.cache.Put(schema.Name, key, tracked); err != nil {
		return nil, err
	}
	return tracked.Clone(), nil
}

// TrackModify applies a delta to a tracked entity. Properties not declared by
// the schema, the version property and values equal to the current ones are
// ignored; if nothing remains the call has no effect. Otherwise the version
// of the entity is incremented. Primary key properties can not be changed.
func (t *Tracker) TrackModify(schema *model.Schema, key model.Key, delta model.Delta) error {
	tracked, err := t.tracked(schema, key)
	if err != nil {
		return err
	}
	primaryKey, err := schema.PrimaryKeyOf(tracked)
	if err != nil {
		return err
	}

	changes := make([]change.PropertyChange, 0, len(delta)+1)
	for _, value := range delta {
		if value.Name == model.VersionProperty || !schema.IsValidProperty(value.Name) {
			continue
		}
		if cmp.Equal(tracked[value.Name], value.Value, valueComparer) {
			continue
		}
		if slices.Contains(schema.PrimaryKey, value.Name) {
			return &PrimaryKeyChangeError{Kind: schema.Name, Key: primaryKey, Property: value.Name}
		}
		changes = append(changes, change.PropertyChange{
			Name:     value.Name,
			Original: model.CloneValue(tracked[value.Name]),
			Current:  model.CloneValue(value.Value),
		})
	}
	if len(changes) == 0 {
		return nil
	}

	version := tracked.Version() + 1
	changes = append(changes, change.PropertyChange{
		Name:     model.VersionProperty,
		Original: version - 1,
		Current:  version,
	})
	t.push(change.Record{
		Type:            change.Modify,
		Model:           schema.Name,
		PrimaryKey:      primaryKey.Clone(),
		DBVersion:       version,
		PropertyChanges: changes,
	})

	update := make(model.Entity, len(changes))
	for _, cur := range changes {
		update[cur.Name] = model.CloneValue(cur.Current)
	}
	t.cache.Refresh(schema.Name, primaryKey, update)
	return nil
}

// TrackDelete records the deletion of a tracked entity and removes it from
// the cache.
func (t *Tracker) TrackDelete(schema *model.Schema, key model.Key) error {
	tracked, err := t.tracked(schema, key)
	if err != nil {
		return err
	}
	primaryKey, err := schema.PrimaryKeyOf(tracked)
	if err != nil {
		return err
	}
	record := change.Record{
		Type:       change.Delete,
		Model:      schema.Name,
		PrimaryKey: primaryKey.Clone(),
		DBVersion:  tracked.Version(),
	}
	for _, name := range schema.PropertyNames() {
		if value, found := tracked[name]; found {
			record.PropertyChanges = append(record.PropertyChanges, change.PropertyChange{
				Name:     name,
				Original: model.CloneValue(value),
			})
		}
	}
	t.push(record)
	t.cache.Evict(schema.Name, primaryKey)
	return nil
}

// IsDeleted reports whether the entity with the given primary key was deleted
// by a change that is not yet accepted. Durable storage still holds such an
// entity until the changes are persisted.
func (t *Tracker) IsDeleted(schema *model.Schema, primaryKey model.Key) bool {
	return t.deleted[entityToken(schema.Name, primaryKey)] > 0
}

func entityToken(kind string, key model.Key) string {
	return kind + "/" + key.String()
}

// GetTrackingEntity looks up a tracked entity by its primary key or by one of
// its unique keys and returns a copy of it. Keys matching neither shape are
// rejected with an IncompleteKeyError.
func (t *Tracker) GetTrackingEntity(schema *model.Schema, key model.Key) (model.Entity, bool, error) {
	entity, found, err := t.lookup(schema, key)
	if err != nil || !found {
		return nil, false, err
	}
	return entity.Clone(), true, nil
}

func (t *Tracker) lookup(schema *model.Schema, key model.Key) (model.Entity, bool, error) {
	resolved, err := schema.ResolveKey(key)
	if err != nil {
		return nil, false, err
	}
	var entity model.Entity
	var found bool
	if resolved.IsPrimary {
		entity, found = t.cache.Get(schema.Name, resolved.Key)
	} else {
		entity, found = t.cache.GetByUnique(schema.Name, resolved.Unique, resolved.Key)
	}
	return entity, found, nil
}

func (t *Tracker) tracked(schema *model.Schema, key model.Key) (model.Entity, error) {
	entity, found, err := t.lookup(schema, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotTrackingError{Kind: schema.Name, Key: key}
	}
	return entity, nil
}

func (t *Tracker) ensureNotTracking(schema *model.Schema, key model.Key) error {
	_, found, err := t.lookup(schema, key)
	if err != nil {
		return err
	}
	if found {
		return &AlreadyTrackingError{Kind: schema.Name, Key: key}
	}
	return nil
}

func (t *Tracker) push(record change.Record) {
	if record.Type == change.Delete {
		t.deleted[entityToken(record.Model, record.PrimaryKey)]++
	}
	if t.confirming {
		t.unconfirmed = append(t.unconfirmed, record)
	} else {
		t.confirmed = append(t.confirmed, record)
	}
}

// --- Scopes ---

// BeginConfirm opens a contract scope. Changes left in the unconfirmed buffer
// by a scope that was neither confirmed nor canceled are dropped.
func (t *Tracker) BeginConfirm() {
	t.confirming = true
	if len(t.unconfirmed) > 0 {
		t.log.Warn().Int("changes", len(t.unconfirmed)).
			Msg("unconfirmed changes detected, contract scopes should be confirmed or canceled")
	}
	t.unconfirmed = nil
	t.recountDeletions()
	t.log.Trace().Msg("begin confirm")
}

// Confirm moves the changes of the current contract scope to the confirmed
// buffer of the block.
func (t *Tracker) Confirm() {
	t.confirmed = append(t.confirmed, t.unconfirmed...)
	t.unconfirmed = nil
	t.confirming = false
	t.log.Trace().Int("confirmed", len(t.confirmed)).Msg("confirmed changes")
}

// CancelConfirm undoes the changes of the current contract scope.
func (t *Tracker) CancelConfirm() {
	t.undoChanges(t.unconfirmed)
	t.unconfirmed = nil
	t.confirming = false
	t.log.Trace().Msg("canceled changes")
}

// AcceptChanges files the confirmed buffer as the history of the given
// height and makes it the current version. The filed changes are returned.
func (t *Tracker) AcceptChanges(height int64) []change.Record {
	accepted := t.confirmed
	if accepted == nil {
		accepted = []change.Record{}
	}
	t.history[height] = accepted
	t.confirmed = nil
	t.recountDeletions()
	if t.minVersion == -1 {
		t.minVersion = height
	}
	t.currentVersion = height
	t.removeExpiredHistory()
	t.metrics.HistoryHeights(len(t.history))
	t.log.Trace().Int64("height", height).Int("changes", len(accepted)).Msg("accepted changes")
	return change.CloneAll(accepted)
}

// RejectChanges undoes the changes of the open contract scope and of the
// current block.
func (t *Tracker) RejectChanges() {
	t.CancelConfirm()
	t.undoChanges(t.confirmed)
	t.confirmed = nil
	t.recountDeletions()
}

// RollbackChanges undoes the changes of all heights from the current version
// down to and including toHeight. Changes of heights no longer held in memory
// are loaded first. Heights above the current version are ignored.
func (t *Tracker) RollbackChanges(ctx context.Context, toHeight int64) error {
	if toHeight > t.currentVersion {
		return nil
	}
	zone := tracy.ZoneBegin("tracker::rollback_changes")
	defer zone.End()
	from := t.currentVersion
	if err := t.loadHistoryUntil(ctx, toHeight); err != nil {
		return err
	}
	for ; t.currentVersion >= toHeight; t.currentVersion-- {
		changes, found := t.history[t.currentVersion]
		if !found {
			t.log.Warn().Int64("height", t.currentVersion).Msg("no changes known for height")
		}
		t.undoChanges(changes)
		delete(t.history, t.currentVersion)
	}
	t.minVersion = min(t.minVersion, t.currentVersion)
	if len(t.history) == 0 && t.currentVersion < 0 {
		t.minVersion = -1
	}
	t.recountDeletions()
	t.metrics.HistoryHeights(len(t.history))
	t.log.Debug().Int64("from", from).Int64("to", t.currentVersion).Msg("rolled back changes")
	return nil
}

// ChangesUntil returns the changes of all heights from the given height up
// to the current version.
func (t *Tracker) ChangesUntil(ctx context.Context, height int64) ([]change.Record, error) {
	if err := t.loadHistoryUntil(ctx, height); err != nil {
		return nil, err
	}
	res := []change.Record{}
	for cur := height; cur <= t.currentVersion; cur++ {
		res = append(res, change.CloneAll(t.history[cur])...)
	}
	return res, nil
}

// --- Undo ---

func (t *Tracker) undoChanges(records []change.Record) {
	for i := len(records) - 1; i >= 0; i-- {
		t.undo(records[i])
	}
}

func (t *Tracker) undo(record change.Record) {
	switch record.Type {
	case change.New:
		t.cache.Evict(record.Model, record.PrimaryKey)
	case change.Modify:
		if !t.cache.Refresh(record.Model, record.PrimaryKey, record.Original()) {
			t.log.Warn().Str("model", record.Model).Stringer("key", record.PrimaryKey).
				Msg("unable to undo modification of entity not in cache")
		}
	case change.Delete:
		token := entityToken(record.Model, record.PrimaryKey)
		if t.deleted[token] > 1 {
			t.deleted[token]--
		} else {
			delete(t.deleted, token)
		}
		if err := t.cache.Put(record.Model, record.PrimaryKey.Clone(), record.Original()); err != nil {
			t.log.Error().Err(err).Str("model", record.Model).Msg("unable to restore deleted entity")
		}
	default:
		t.log.Error().Stringer("type", record.Type).Msg("unknown change type")
	}
}

// recountDeletions derives the pending deletions from the buffers.
func (t *Tracker) recountDeletions() {
	clear(t.deleted)
	for _, records := range [][]change.Record{t.confirmed, t.unconfirmed} {
		for _, record := range records {
			if record.Type == change.Delete {
				t.deleted[entityToken(record.Model, record.PrimaryKey)]++
			}
		}
	}
}

// --- History ---

func (t *Tracker) loadHistory(ctx context.Context, from, to int64) (map[int64][]change.Record, error) {
	if t.loader == nil || to < from {
		return nil, nil
	}
	history, err := t.loader.LoadHistory(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of heights [%d, %d]: %w", from, to, err)
	}
	return history, nil
}

func (t *Tracker) loadHistoryUntil(ctx context.Context, height int64) error {
	if height >= t.minVersion {
		return nil
	}
	history, err := t.loadHistory(ctx, max(height, 0), t.minVersion-1)
	if err != nil {
		return err
	}
	t.attachHistory(history)
	return nil
}

func (t *Tracker) attachHistory(history map[int64][]change.Record) {
	for height, changes := range history {
		if changes == nil {
			changes = []change.Record{}
		}
		t.history[height] = changes
		if t.minVersion < 0 {
			t.minVersion = height
		} else {
			t.minVersion = min(t.minVersion, height)
		}
		t.currentVersion = max(t.currentVersion, height)
	}
	t.metrics.HistoryHeights(len(t.history))
	t.log.Debug().Int("heights", len(history)).Int64("min", t.minVersion).Int64("max", t.currentVersion).
		Msg("attached history")
}

func (t *Tracker) removeExpiredHistory() {
	if t.currentVersion-t.minVersion >= t.maxHold {
		t.clearHistoryBefore(t.currentVersion - t.maxHold + 1)
	}
}

func (t *Tracker) clearHistoryBefore(height int64) {
	if t.minVersion >= height || t.currentVersion < height {
		return
	}
	for cur := t.minVersion; cur < height; cur++ {
		delete(t.history, cur)
	}
	t.minVersion = height
}

// --- Introspection ---

// HistoryVersion returns the range of heights covered by the history.
func (t *Tracker) HistoryVersion() (minVersion, currentVersion int64) {
	return t.minVersion, t.currentVersion
}

// HistoryHeights lists the heights whose changes are held in memory.
func (t *Tracker) HistoryHeights() []int64 {
	res := maps.Keys(t.history)
	slices.Sort(res)
	return res
}

func (t *Tracker) UnconfirmedChanges() []change.Record {
	return change.CloneAll(t.unconfirmed)
}

func (t *Tracker) ConfirmedChanges() []change.Record {
	return change.CloneAll(t.confirmed)
}

func (t *Tracker) IsConfirming() bool {
	return t.confirming
}
