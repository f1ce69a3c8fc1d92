package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockbase/auth"
	"mockbase/models"
	"mockbase/rules"
	"mockbase/store"
)

const testRules = `{
	"books": {
		".read": true,
		".create": ["User"],
		".update": ["Owner"],
		".delete": ["Owner"]
	}
}`

// setupTestServer wires a full dispatcher behind a gin engine the way main
// does, with one seeded book and an empty protected store.
func setupTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	storage := store.New()
	storage.Seed(map[string]map[string]models.Record{
		"books": {
			"book-1": {
				"_ownerId": "seed-owner",
				"title":    "A Game of Thrones",
				"genre":    "Epic Fantasy",
				"pages":    694.0,
			},
		},
	})

	protected := store.New()
	// minimum bcrypt cost for faster tests
	provider := auth.NewProvider(protected, "email", "test-secret", 4)

	engine, err := rules.Compile([]byte(testRules))
	require.NoError(t, err, "Failed to compile test rule set")

	flags := NewFlags()
	dispatcher := NewDispatcher(
		[]Plugin{
			StoragePlugin(storage, protected),
			AuthPlugin(provider),
			UtilPlugin(flags),
			RulesPlugin(engine),
		},
		map[string]*Service{
			"jsonstore": NewJSONStoreService(),
			"users":     NewUserService(),
			"data":      NewDataService(),
			"util":      NewUtilService(),
		},
		flags,
	)

	router := gin.New()
	router.NoRoute(dispatcher.Handle)
	return router
}

// performRequest executes a request against the test router, marshalling
// body to JSON when present and setting X-Authorization when token is
// non-empty.
func performRequest(t *testing.T, router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Authorization", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeRecord(t *testing.T, w *httptest.ResponseRecorder) models.Record {
	t.Helper()
	var record models.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record), "Body was: %s", w.Body.String())
	return record
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []models.Record {
	t.Helper()
	var list []models.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list), "Body was: %s", w.Body.String())
	return list
}

// registerUser creates an account and returns its access token and id.
func registerUser(t *testing.T, router *gin.Engine, email string) (string, string) {
	t.Helper()
	w := performRequest(t, router, "POST", "/users/register",
		models.Record{"email": email, "password": "123456"}, "")
	require.Equal(t, http.StatusOK, w.Code, "Body was: %s", w.Body.String())
	user := decodeRecord(t, w)
	token, _ := user["accessToken"].(string)
	require.NotEmpty(t, token)
	return token, user.ID()
}

func TestDispatcherUnknownService(t *testing.T) {
	router := setupTestServer(t)

	w := performRequest(t, router, "GET", "/nope/whatever", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeRecord(t, w)
	assert.Equal(t, float64(http.StatusBadRequest), body["code"])
	assert.Equal(t, `Service "nope" is not supported`, body["message"])
}

func TestDispatcherPreflight(t *testing.T) {
	router := setupTestServer(t)

	w := performRequest(t, router, "OPTIONS", "/data/books", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Authorization")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestDispatcherAdminRedirect(t *testing.T) {
	router := setupTestServer(t)

	w := performRequest(t, router, "GET", "/admin", nil, "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/", w.Header().Get("Location"))

	w = performRequest(t, router, "GET", "/admin/", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

func TestDispatcherEmptyResponse(t *testing.T) {
	router := setupTestServer(t)

	// undefined flags and unmatched routes both produce an empty 204
	// without a Content-Type, distinguishable from JSON null
	w := performRequest(t, router, "GET", "/util/undefined", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Content-Type"))
	assert.Empty(t, w.Body.String())
}

func TestDispatcherErrorEnvelope(t *testing.T) {
	router := setupTestServer(t)

	w := performRequest(t, router, "GET", "/data/books/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := decodeRecord(t, w)
	assert.Equal(t, float64(http.StatusNotFound), body["code"])
	assert.Equal(t, "Entry does not exist: missing", body["message"])
}

func TestDataCollectionNames(t *testing.T) {
	router := setupTestServer(t)

	w := performRequest(t, router, "GET", "/data", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var names []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &names))
	assert.Equal(t, []string{"books"}, names)
}

func TestUtilFlags(t *testing.T) {
	router := setupTestServer(t)

	w := performRequest(t, router, "GET", "/util/throttle", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "false", w.Body.String())

	// use a fresh flag so the throttle sleep never kicks in during tests
	w = performRequest(t, router, "POST", "/util", models.Record{"verbose": true}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(t, router, "GET", "/util/verbose", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Body.String())
}

func TestGuestCannotCreate(t *testing.T) {
	router := setupTestServer(t)

	w := performRequest(t, router, "POST", "/data/books",
		models.Record{"title": "Anonymous"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInvalidTokenFailsRequest(t *testing.T) {
	router := setupTestServer(t)

	w := performRequest(t, router, "GET", "/data/books", nil, "bogus-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	body := decodeRecord(t, w)
	assert.Equal(t, "Invalid access token", body["message"])
}

func TestDataWorkflow(t *testing.T) {
	router := setupTestServer(t)
	token, userID := registerUser(t, router, "peter@example.com")

	// authenticated create stamps ownership
	w := performRequest(t, router, "POST", "/data/books",
		models.Record{"title": "Fire & Blood", "genre": "Fantasy History", "pages": 736}, token)
	require.Equal(t, http.StatusOK, w.Code, "Body was: %s", w.Body.String())
	created := decodeRecord(t, w)
	assert.Equal(t, userID, created.OwnerID())
	require.NotEmpty(t, created.ID())

	// filtered read sees both the seeded and the new book
	query := url.Values{"where": {`pages>=500 AND genre like "Fantasy"`}}
	w = performRequest(t, router, "GET", "/data/books?"+query.Encode(), nil, "")
	require.Equal(t, http.StatusOK, w.Code, "Body was: %s", w.Body.String())
	assert.Len(t, decodeList(t, w), 2)

	// owner updates their record
	w = performRequest(t, router, "PATCH", "/data/books/"+created.ID(),
		models.Record{"pages": 737}, token)
	require.Equal(t, http.StatusOK, w.Code, "Body was: %s", w.Body.String())
	assert.Equal(t, 737.0, decodeRecord(t, w)["pages"])
}

func TestOwnershipRules(t *testing.T) {
	router := setupTestServer(t)
	ownerToken, _ := registerUser(t, router, "owner@example.com")
	strangerToken, _ := registerUser(t, router, "stranger@example.com")

	w := performRequest(t, router, "POST", "/data/books",
		models.Record{"title": "Mine"}, ownerToken)
	require.Equal(t, http.StatusOK, w.Code)
	id := decodeRecord(t, w).ID()

	// a different user may not delete it
	w = performRequest(t, router, "DELETE", "/data/books/"+id, nil, strangerToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// the privileged override header suppresses the denial
	req, err := http.NewRequest("DELETE", "/data/books/"+id, nil)
	require.NoError(t, err)
	req.Header.Set("X-Authorization", strangerToken)
	req.Header.Set("X-Admin", "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	router := setupTestServer(t)
	token, _ := registerUser(t, router, "leaver@example.com")

	w := performRequest(t, router, "GET", "/users/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decodeRecord(t, w)
	assert.Equal(t, "leaver@example.com", profile["email"])
	assert.NotContains(t, profile, "hashedPassword")

	w = performRequest(t, router, "GET", "/users/logout", nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = performRequest(t, router, "GET", "/users/me", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateWithoutBody(t *testing.T) {
	router := setupTestServer(t)

	// an absent or non-object body is a request error, never a 500
	w := performRequest(t, router, "PUT", "/data/books/book-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(t, router, "PATCH", "/data/books/book-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(t, router, "PUT", "/data/books/book-1", []int{1, 2}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	created := performRequest(t, router, "POST", "/jsonstore/notes",
		models.Record{"text": "keep me"}, "")
	require.Equal(t, http.StatusOK, created.Code)
	id := decodeRecord(t, created).ID()

	w = performRequest(t, router, "PUT", "/jsonstore/notes/"+id, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(t, router, "PATCH", "/jsonstore/notes/"+id, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(t, router, "GET", "/jsonstore/notes/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "keep me", decodeRecord(t, w)["text"])
}

func TestLoadJoinSanitizesUsers(t *testing.T) {
	router := setupTestServer(t)
	token, userID := registerUser(t, router, "author@example.com")

	w := performRequest(t, router, "POST", "/data/books",
		models.Record{"title": "Joined"}, token)
	require.Equal(t, http.StatusOK, w.Code, "Body was: %s", w.Body.String())
	id := decodeRecord(t, w).ID()

	query := url.Values{"load": {"author=_ownerId:users"}}
	w = performRequest(t, router, "GET", "/data/books/"+id+"?"+query.Encode(), nil, "")
	require.Equal(t, http.StatusOK, w.Code, "Body was: %s", w.Body.String())

	record := decodeRecord(t, w)
	author, ok := record["author"].(map[string]any)
	require.True(t, ok, "author relation missing: %v", record)
	assert.Equal(t, userID, author["_id"])
	assert.Equal(t, "author@example.com", author["email"])
	assert.NotContains(t, author, "hashedPassword")
	assert.NotContains(t, author, "password")
}

func TestJSONStoreRoundTrip(t *testing.T) {
	router := setupTestServer(t)

	w := performRequest(t, router, "POST", "/jsonstore/notes",
		models.Record{"text": "remember the milk"}, "")
	require.Equal(t, http.StatusOK, w.Code, "Body was: %s", w.Body.String())
	created := decodeRecord(t, w)
	require.NotEmpty(t, created.ID())

	w = performRequest(t, router, "GET", "/jsonstore/notes/"+created.ID(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "remember the milk", decodeRecord(t, w)["text"])

	w = performRequest(t, router, "DELETE", "/jsonstore/notes/"+created.ID(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeRecord(t, w), "_deletedOn")

	w = performRequest(t, router, "GET", fmt.Sprintf("/jsonstore/notes/%s", created.ID()), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
