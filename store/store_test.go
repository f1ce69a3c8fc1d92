package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockbase/models"
	"mockbase/utils"
)

func seededStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.Seed(map[string]map[string]models.Record{
		"books": {
			"b1": {"title": "Go in Action", "pages": float64(300)},
			"b2": {"title": "The Go Programming Language", "pages": float64(380)},
		},
		"empty": {},
	})
	return s
}

func TestAddAndGetRoundTrip(t *testing.T) {
	s := New()

	created := s.Add("notes", models.Record{"text": "hello"})
	require.NotEmpty(t, created.ID())
	assert.NotContains(t, created.ID(), "-")
	assert.NotNil(t, created[models.FieldCreatedOn])

	got, err := s.Get("notes", created.ID())
	require.NoError(t, err)
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, created.ID(), got.ID())
}

func TestAddStripsSystemFieldsButKeepsOwner(t *testing.T) {
	s := New()

	created := s.Add("notes", models.Record{
		"text":                "hello",
		models.FieldID:        "forged",
		models.FieldCreatedOn: float64(1),
		models.FieldUpdatedOn: float64(2),
		models.FieldOwnerID:   "owner-1",
	})

	assert.NotEqual(t, "forged", created.ID())
	assert.NotEqual(t, float64(1), created[models.FieldCreatedOn])
	assert.NotContains(t, created, models.FieldUpdatedOn)
	assert.Equal(t, "owner-1", created.OwnerID())
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	s := New()
	created := s.Add("notes", models.Record{"tags": []any{"a", "b"}})

	first, err := s.Get("notes", created.ID())
	require.NoError(t, err)
	first["tags"].([]any)[0] = "mutated"
	first["extra"] = true

	second, err := s.Get("notes", created.ID())
	require.NoError(t, err)
	assert.Equal(t, "a", second["tags"].([]any)[0])
	assert.NotContains(t, second, "extra")
}

func TestGetMissing(t *testing.T) {
	s := seededStore(t)

	_, err := s.Get("nope", "b1")
	se, ok := utils.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, 404, se.Status)

	_, err = s.Get("books", "nope")
	se, ok = utils.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, 404, se.Status)
}

func TestSetReplacesButCarriesSystemFields(t *testing.T) {
	s := New()
	created := s.Add("notes", models.Record{
		"text":              "old",
		"mood":              "fine",
		models.FieldOwnerID: "owner-1",
	})

	updated, err := s.Set("notes", created.ID(), models.Record{
		"text":              "new",
		models.FieldOwnerID: "forged",
		models.FieldID:      "forged",
	})
	require.NoError(t, err)

	assert.Equal(t, "new", updated["text"])
	assert.NotContains(t, updated, "mood")
	assert.Equal(t, "owner-1", updated.OwnerID())
	assert.Equal(t, created.ID(), updated.ID())
	assert.Equal(t, created[models.FieldCreatedOn], updated[models.FieldCreatedOn])
	assert.NotNil(t, updated[models.FieldUpdatedOn])
}

func TestSetWithNilData(t *testing.T) {
	s := New()
	created := s.Add("notes", models.Record{
		"text":              "old",
		models.FieldOwnerID: "owner-1",
	})

	// a nil replacement empties the record but keeps the system fields
	updated, err := s.Set("notes", created.ID(), nil)
	require.NoError(t, err)

	assert.NotContains(t, updated, "text")
	assert.Equal(t, "owner-1", updated.OwnerID())
	assert.Equal(t, created.ID(), updated.ID())
	assert.Equal(t, created[models.FieldCreatedOn], updated[models.FieldCreatedOn])
	assert.NotNil(t, updated[models.FieldUpdatedOn])
}

func TestMergeWithNilData(t *testing.T) {
	s := New()
	created := s.Add("notes", models.Record{"text": "old"})

	updated, err := s.Merge("notes", created.ID(), nil)
	require.NoError(t, err)
	assert.Equal(t, "old", updated["text"])
}

func TestMergeKeepsUnmentionedProps(t *testing.T) {
	s := New()
	created := s.Add("notes", models.Record{"text": "old", "mood": "fine"})

	updated, err := s.Merge("notes", created.ID(), models.Record{
		"text":         "new",
		models.FieldID: "forged",
	})
	require.NoError(t, err)

	assert.Equal(t, "new", updated["text"])
	assert.Equal(t, "fine", updated["mood"])
	assert.Equal(t, created.ID(), updated.ID())
}

func TestDelete(t *testing.T) {
	s := seededStore(t)

	marker, err := s.Delete("books", "b1")
	require.NoError(t, err)
	assert.Contains(t, marker, models.FieldDeletedOn)

	_, err = s.Get("books", "b1")
	assert.Error(t, err)

	_, err = s.Delete("books", "b1")
	se, ok := utils.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, 404, se.Status)
}

func TestGetAll(t *testing.T) {
	s := seededStore(t)

	all, err := s.GetAll("books")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, record := range all {
		assert.NotEmpty(t, record.ID())
	}

	none, err := s.GetAll("empty")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.GetAll("nope")
	assert.Error(t, err)
}

func TestCollectionsSorted(t *testing.T) {
	s := seededStore(t)
	s.Add("albums", models.Record{"name": "x"})

	assert.Equal(t, []string{"albums", "books", "empty"}, s.Collections())
}

func TestQueryCaseInsensitiveStrings(t *testing.T) {
	s := New()
	s.Add("users", models.Record{"email": "Peter@abv.bg"})
	s.Add("users", models.Record{"email": "john@abv.bg"})

	found, err := s.Query("users", models.Record{"email": "peter@ABV.bg"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Peter@abv.bg", found[0]["email"])
}

func TestQueryMissingPropDoesNotMatch(t *testing.T) {
	s := New()
	s.Add("users", models.Record{"name": "anonymous"})

	found, err := s.Query("users", models.Record{"email": "x@y.z"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestQueryByID(t *testing.T) {
	s := seededStore(t)

	found, err := s.Query("books", models.Record{models.FieldID: "b2"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "The Go Programming Language", found[0]["title"])
}

func TestQueryNumericEquality(t *testing.T) {
	s := seededStore(t)

	found, err := s.Query("books", models.Record{"pages": float64(380)})
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestSeedIsolatesInput(t *testing.T) {
	seed := map[string]map[string]models.Record{
		"books": {"b1": {"title": "original"}},
	}
	s := New()
	s.Seed(seed)

	seed["books"]["b1"]["title"] = "mutated"

	got, err := s.Get("books", "b1")
	require.NoError(t, err)
	assert.Equal(t, "original", got["title"])
}
