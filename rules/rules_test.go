package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockbase/models"
	"mockbase/utils"
)

var (
	owner    = models.Record{"_id": "u1", "email": "peter@abv.bg"}
	stranger = models.Record{"_id": "u2", "email": "john@abv.bg"}
	record   = func() models.Record {
		return models.Record{"_id": "r1", "_ownerId": "u1", "title": "mine"}
	}
)

func TestDefaultRules(t *testing.T) {
	engine := Default()

	// anyone may read
	err := engine.Authorize(Access{Action: ActionRead, Collection: "books", Record: record()})
	assert.NoError(t, err)

	// guests may not create
	err = engine.Authorize(Access{Action: ActionCreate, Collection: "books"})
	se, ok := utils.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, 401, se.Status)

	// authenticated users may create
	err = engine.Authorize(Access{Action: ActionCreate, Collection: "books", User: stranger})
	assert.NoError(t, err)

	// only the owner may delete
	err = engine.Authorize(Access{Action: ActionDelete, Collection: "books", User: stranger, Record: record()})
	se, ok = utils.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, 403, se.Status)

	err = engine.Authorize(Access{Action: ActionDelete, Collection: "books", User: owner, Record: record()})
	assert.NoError(t, err)
}

func TestCollectionRuleOverridesDefault(t *testing.T) {
	engine, err := Compile([]byte(`{
		"books": {".create": false, ".read": true}
	}`))
	require.NoError(t, err)

	err = engine.Authorize(Access{Action: ActionCreate, Collection: "books", User: owner})
	se, ok := utils.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, 403, se.Status)

	// other collections keep the default
	err = engine.Authorize(Access{Action: ActionCreate, Collection: "albums", User: owner})
	assert.NoError(t, err)
}

func TestAdminOverrideSuppressesDenial(t *testing.T) {
	engine, err := Compile([]byte(`{"books": {".delete": false}}`))
	require.NoError(t, err)

	err = engine.Authorize(Access{Action: ActionDelete, Collection: "books", Record: record(), Admin: true})
	assert.NoError(t, err)
}

func TestExpressionRules(t *testing.T) {
	engine, err := Compile([]byte(`{
		"books": {".update": "isOwner(user, data) || user.role == \"moderator\""}
	}`))
	require.NoError(t, err)

	err = engine.Authorize(Access{Action: ActionUpdate, Collection: "books", User: owner, Record: record()})
	assert.NoError(t, err)

	moderator := models.Record{"_id": "u3", "role": "moderator"}
	err = engine.Authorize(Access{Action: ActionUpdate, Collection: "books", User: moderator, Record: record()})
	assert.NoError(t, err)

	err = engine.Authorize(Access{Action: ActionUpdate, Collection: "books", User: stranger, Record: record()})
	se, ok := utils.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, 403, se.Status)
}

func TestExpressionCompileFailsAtBoot(t *testing.T) {
	_, err := Compile([]byte(`{"books": {".update": "user.id =="}}`))
	assert.Error(t, err)

	_, err = Compile([]byte(`{"books": {".update": ["Wizard"]}}`))
	assert.Error(t, err)
}

func TestPropRuleRedactsRead(t *testing.T) {
	engine, err := Compile([]byte(`{
		"books": {"*": {"secret": {".read": "isOwner(user, data)"}}}
	}`))
	require.NoError(t, err)

	r := record()
	r["secret"] = "hidden"
	err = engine.Authorize(Access{Action: ActionRead, Collection: "books", User: stranger, Record: r})
	require.NoError(t, err)
	assert.NotContains(t, r, "secret")
	assert.Contains(t, r, "title")

	r = record()
	r["secret"] = "hidden"
	err = engine.Authorize(Access{Action: ActionRead, Collection: "books", User: owner, Record: r})
	require.NoError(t, err)
	assert.Contains(t, r, "secret")
}

func TestPropRuleStripsPayload(t *testing.T) {
	engine, err := Compile([]byte(`{
		"books": {"*": {"rating": {".update": false}}}
	}`))
	require.NoError(t, err)

	payload := models.Record{"title": "edit", "rating": float64(5)}
	err = engine.Authorize(Access{Action: ActionUpdate, Collection: "books", User: owner, Record: record(), Payload: payload})
	require.NoError(t, err)
	assert.NotContains(t, payload, "rating")
	assert.Contains(t, payload, "title")
}

func TestRecordRuleBeatsCollectionRule(t *testing.T) {
	engine, err := Compile([]byte(`{
		"books": {
			".delete": true,
			"r1": {".delete": false}
		}
	}`))
	require.NoError(t, err)

	err = engine.Authorize(Access{Action: ActionDelete, Collection: "books", User: stranger, Record: record()})
	se, ok := utils.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, 403, se.Status)

	other := models.Record{"_id": "r2", "_ownerId": "u1"}
	err = engine.Authorize(Access{Action: ActionDelete, Collection: "books", User: stranger, Record: other})
	assert.NoError(t, err)
}

func TestRedactList(t *testing.T) {
	engine, err := Compile([]byte(`{
		"books": {"*": {"secret": {".read": false}}}
	}`))
	require.NoError(t, err)

	records := []models.Record{
		{"_id": "r1", "title": "a", "secret": "x"},
		{"_id": "r2", "title": "b", "secret": "y"},
	}
	engine.RedactList("books", nil, records, false)
	for _, r := range records {
		assert.NotContains(t, r, "secret")
		assert.Contains(t, r, "title")
	}
}

func TestEmptyRoleListFallsThrough(t *testing.T) {
	engine, err := Compile([]byte(`{"books": {".create": []}}`))
	require.NoError(t, err)

	// falls back to the global default of ["User"]
	err = engine.Authorize(Access{Action: ActionCreate, Collection: "books", User: owner})
	assert.NoError(t, err)

	err = engine.Authorize(Access{Action: ActionCreate, Collection: "books"})
	assert.Error(t, err)
}

func TestCompileExprGrammar(t *testing.T) {
	user := models.Record{"_id": "u1", "age": float64(21), "profile": map[string]any{"plan": "pro"}}
	data := models.Record{"_ownerId": "u1", "published": true}

	cases := []struct {
		src  string
		want bool
	}{
		{`user.age >= 18`, true},
		{`user.age < 18`, false},
		{`user.profile.plan == "pro"`, true},
		{`data.published`, true},
		{`!data.published`, false},
		{`isOwner(user, data)`, true},
		{`isOwner(user, data) && user.age >= 30`, false},
		{`user.age >= 30 || data.published`, true},
		{`(user.age >= 30 || user.age <= 25) && data.published`, true},
		{`user.missing == null`, true},
	}
	for _, tc := range cases {
		expr, err := CompileExpr(tc.src)
		require.NoError(t, err, tc.src)
		assert.Equal(t, tc.want, Eval(expr, user, data), tc.src)
	}
}

func TestCompileExprRejectsGarbage(t *testing.T) {
	for _, src := range []string{
		`user`,
		`user.id ==`,
		`launchMissiles()`,
		`user.id == "a" &&`,
		`(user.id == "a"`,
	} {
		_, err := CompileExpr(src)
		assert.Error(t, err, src)
	}
}
