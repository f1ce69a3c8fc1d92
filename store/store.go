package store

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"mockbase/models"
	"mockbase/utils"
)

// Store is an in-memory, collection-oriented data store. Collections are
// created lazily on first write. Every read hands out deep copies, so a
// caller mutating a returned record never affects stored state.
//
// A single RWMutex makes each exported method atomic. Multi-call sequences
// (read-then-write across two calls) are not atomic; callers that need
// stronger guarantees must serialize themselves.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]models.Record
}

// New creates an empty store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]models.Record)}
}

// Seed replaces the store contents with the given collections. Records are
// deep-copied in and any embedded _id property is dropped in favour of the
// map key.
func (s *Store) Seed(data map[string]map[string]models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections = make(map[string]map[string]models.Record, len(data))
	for name, records := range data {
		collection := make(map[string]models.Record, len(records))
		for id, record := range records {
			stored := record.Copy()
			delete(stored, models.FieldID)
			collection[id] = stored
		}
		s.collections[name] = collection
	}
}

// Collections returns the sorted list of collection names.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAll returns deep copies of every record in the collection with _id
// injected. The order is unspecified; callers sort as needed.
func (s *Store) GetAll(collection string) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.collections[collection]
	if !ok {
		return nil, utils.NewNotFound("Collection does not exist: " + collection)
	}
	result := make([]models.Record, 0, len(target))
	for id, record := range target {
		out := record.Copy()
		out[models.FieldID] = id
		result = append(result, out)
	}
	return result, nil
}

// Get returns a deep copy of one record with _id injected.
func (s *Store) Get(collection, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.collections[collection]
	if !ok {
		return nil, utils.NewNotFound("Collection does not exist: " + collection)
	}
	record, ok := target[id]
	if !ok {
		return nil, utils.NewNotFound("Entry does not exist: " + id)
	}
	out := record.Copy()
	out[models.FieldID] = id
	return out, nil
}

// Add stores a new record under a generated id, creating the collection if
// needed. Client-sent system fields are stripped, except _ownerId which the
// caller controls by stamping it on data beforehand. _createdOn is set to
// the current server time.
func (s *Store) Add(collection string, data models.Record) models.Record {
	record := models.Record{}
	if owner := data.OwnerID(); owner != "" {
		record[models.FieldOwnerID] = owner
	}
	record.WithoutSystem(data)
	record[models.FieldCreatedOn] = now()

	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.collections[collection]
	if !ok {
		target = make(map[string]models.Record)
		s.collections[collection] = target
	}

	id := utils.GenerateDashlessUUID()
	for _, exists := target[id]; exists; _, exists = target[id] {
		id = utils.GenerateDashlessUUID()
	}

	target[id] = record
	out := record.Copy()
	out[models.FieldID] = id
	return out
}

// Place stores a record under a caller-chosen id, creating the collection
// if needed. Existing data under that id is replaced. Meant for seeding
// fixed demo records; request handlers go through Add.
func (s *Store) Place(collection, id string, data models.Record) models.Record {
	record := models.Record{}
	if owner := data.OwnerID(); owner != "" {
		record[models.FieldOwnerID] = owner
	}
	record.WithoutSystem(data)
	record[models.FieldCreatedOn] = now()

	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.collections[collection]
	if !ok {
		target = make(map[string]models.Record)
		s.collections[collection] = target
	}
	target[id] = record

	out := record.Copy()
	out[models.FieldID] = id
	return out
}

// Set fully replaces a record. The existing record's system fields win over
// anything in data; _updatedOn is refreshed.
func (s *Store) Set(collection, id string, data models.Record) (models.Record, error) {
	return s.update(collection, id, func(existing models.Record) models.Record {
		record := data.Copy()
		if record == nil {
			record = models.Record{}
		}
		record.CarrySystem(existing)
		return record
	})
}

// Merge shallow-merges data over the existing record. System fields from
// the stored record win; _updatedOn is refreshed.
func (s *Store) Merge(collection, id string, data models.Record) (models.Record, error) {
	return s.update(collection, id, func(existing models.Record) models.Record {
		record := existing.Copy()
		record.WithoutSystem(data)
		return record
	})
}

func (s *Store) update(collection, id string, apply func(models.Record) models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.collections[collection]
	if !ok {
		return nil, utils.NewNotFound("Collection does not exist: " + collection)
	}
	existing, ok := target[id]
	if !ok {
		return nil, utils.NewNotFound("Entry does not exist: " + id)
	}

	record := apply(existing)
	delete(record, models.FieldID)
	record[models.FieldUpdatedOn] = now()
	target[id] = record

	out := record.Copy()
	out[models.FieldID] = id
	return out, nil
}

// Delete removes a record and returns a deletion timestamp marker.
// Deleting the same id twice fails.
func (s *Store) Delete(collection, id string) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.collections[collection]
	if !ok {
		return nil, utils.NewNotFound("Collection does not exist: " + collection)
	}
	if _, ok := target[id]; !ok {
		return nil, utils.NewNotFound("Entry does not exist: " + id)
	}
	delete(target, id)
	return models.Record{models.FieldDeletedOn: now()}, nil
}

// Query returns deep copies of every record whose properties equal the
// match object's. String pairs compare case-insensitively; everything else
// compares by value. A record missing a matched property does not match.
func (s *Store) Query(collection string, match models.Record) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.collections[collection]
	if !ok {
		return nil, utils.NewNotFound("Collection does not exist: " + collection)
	}

	result := []models.Record{}
	for id, record := range target {
		if matches(record, id, match) {
			out := record.Copy()
			out[models.FieldID] = id
			result = append(result, out)
		}
	}
	return result, nil
}

func matches(record models.Record, id string, match models.Record) bool {
	for prop, want := range match {
		var have any
		if prop == models.FieldID {
			have = id
		} else {
			var ok bool
			have, ok = record[prop]
			if !ok {
				return false
			}
		}
		if !valuesEqual(have, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.EqualFold(as, bs)
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// now returns the server timestamp stamped on records, in unix
// milliseconds to match the wire format of the persisted seed data.
func now() float64 {
	return float64(time.Now().UnixMilli())
}
