// Package query implements the read-side query DSL: where filtering,
// sorting, paging, distinct, count, projection and relation loading,
// applied to result sets produced by the collection store.
package query

import (
	"fmt"
	"log"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"mockbase/models"
	"mockbase/utils"
)

const whereSyntaxError = "Could not parse WHERE clause, check your syntax."

// LoadResolver fetches a related record for the load stage. The caller
// decides which store backs a collection (the reserved users collection is
// served from protected storage with password fields stripped).
type LoadResolver func(collection, id string) (models.Record, error)

// Apply runs the DSL stages over data in fixed order: where, sortBy,
// offset/pageSize, distinct, count, select, load. Stages whose parameter is
// absent are skipped. data is either a []models.Record or a single
// models.Record; slice-only stages are skipped for single records. count
// short-circuits with the integer length.
func Apply(data any, params url.Values, resolve LoadResolver) (any, error) {
	records, isList := data.([]models.Record)

	if isList {
		var err error
		if where := params.Get("where"); where != "" {
			records, err = Filter(records, where)
			if err != nil {
				return nil, err
			}
		}
		if sortBy := params.Get("sortBy"); sortBy != "" {
			sortRecords(records, sortBy)
		}
		records = paginate(records, params)
		if distinct := params.Get("distinct"); distinct != "" {
			records = distinctBy(records, distinct)
		}
		if params.Has("count") {
			return len(records), nil
		}
		data = records
	}

	if sel := params.Get("select"); sel != "" {
		data = applyToEach(data, records, isList, func(r models.Record) models.Record {
			return project(r, sel)
		})
		if isList {
			records = data.([]models.Record)
		}
	}

	if load := params.Get("load"); load != "" {
		loaded, err := loadRelations(data, records, isList, load, resolve)
		if err != nil {
			return nil, err
		}
		data = loaded
	}

	return data, nil
}

// Filter keeps the records matching the where expression: a single clause
// or a chain joined exclusively by AND or OR (the first connective found
// wins for the whole chain).
func Filter(records []models.Record, where string) ([]models.Record, error) {
	match, err := parseWhere(where)
	if err != nil {
		return nil, err
	}
	result := []models.Record{}
	for _, record := range records {
		if match(record) {
			result = append(result, record)
		}
	}
	return result, nil
}

type checker func(models.Record) bool

var (
	andPattern = regexp.MustCompile(`(?i) and `)
	orPattern  = regexp.MustCompile(`(?i) or `)
	inList     = regexp.MustCompile(`\((.+?)\)`)
)

func parseWhere(where string) (checker, error) {
	clauses := []string{strings.TrimSpace(where)}
	all := true
	if andPattern.MatchString(where) {
		clauses = andPattern.Split(where, -1)
	} else if orPattern.MatchString(where) {
		clauses = orPattern.Split(where, -1)
		all = false
	}

	checks := make([]checker, len(clauses))
	for i, clause := range clauses {
		check, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		checks[i] = check
	}

	return func(record models.Record) bool {
		for _, check := range checks {
			if check(record) != all {
				return !all
			}
		}
		return all
	}, nil
}

// Operator order matters: longest first so "<=" is never read as "<" plus
// a stray "=". The word operators carry their delimiting spaces.
var whereOperators = []string{"<=", "<", ">=", ">", "=", " like ", " in "}

func parseClause(clause string) (checker, error) {
	prop, operator, value, ok := splitClause(clause)
	if !ok {
		return nil, utils.NewRequestError(whereSyntaxError)
	}

	switch operator {
	case "=":
		literal, err := parseLiteral(value)
		if err != nil {
			return nil, err
		}
		return func(r models.Record) bool { return looseEqual(r[prop], literal) }, nil
	case "<", "<=", ">", ">=":
		literal, err := parseLiteral(value)
		if err != nil {
			return nil, err
		}
		return func(r models.Record) bool { return looseCompare(r[prop], literal, operator) }, nil
	case "like":
		literal, err := parseLiteral(value)
		if err != nil {
			return nil, err
		}
		needle, ok := literal.(string)
		if !ok {
			return nil, utils.NewRequestError(whereSyntaxError)
		}
		return func(r models.Record) bool {
			s, ok := r[prop].(string)
			return ok && strings.Contains(strings.ToLower(s), strings.ToLower(needle))
		}, nil
	case "in":
		group := inList.FindStringSubmatch(value)
		if group == nil {
			return nil, utils.NewRequestError(whereSyntaxError)
		}
		list := "[" + group[1] + "]"
		if !gjson.Valid(list) {
			return nil, utils.NewRequestError(whereSyntaxError)
		}
		members := gjson.Parse(list).Value().([]any)
		return func(r models.Record) bool {
			for _, member := range members {
				if looseEqual(r[prop], member) {
					return true
				}
			}
			return false
		}, nil
	}
	return nil, utils.NewRequestError(whereSyntaxError)
}

// splitClause finds the leftmost operator occurrence, preferring earlier
// entries of whereOperators at the same position. Both sides must be
// non-empty.
func splitClause(clause string) (prop, operator, value string, ok bool) {
	lower := strings.ToLower(clause)
	for i := 1; i < len(lower); i++ {
		for _, op := range whereOperators {
			if !strings.HasPrefix(lower[i:], op) {
				continue
			}
			prop = strings.TrimSpace(clause[:i])
			value = strings.TrimSpace(clause[i+len(op):])
			if prop == "" || value == "" {
				return "", "", "", false
			}
			return prop, strings.TrimSpace(op), value, true
		}
	}
	return "", "", "", false
}

func parseLiteral(value string) (any, error) {
	if !gjson.Valid(value) {
		return nil, utils.NewRequestError(whereSyntaxError)
	}
	return gjson.Parse(value).Value(), nil
}

func looseEqual(a, b any) bool {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			return af == bf
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
	}
	return a == b
}

func looseCompare(a, b any, operator string) bool {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			return compareOrdered(af, bf, operator)
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return compareOrdered(as, bs, operator)
		}
	}
	return false
}

func compareOrdered[T float64 | string](a, b T, operator string) bool {
	switch operator {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func asNumber(v any) (float64, bool) {
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

// sortRecords applies the sort keys last-first with a stable sort, so the
// first declared key ends up with top priority. Number pairs compare
// numerically, everything else by locale-aware collation of the string
// form.
func sortRecords(records []models.Record, sortBy string) {
	type sortKey struct {
		prop string
		desc bool
	}
	keys := []sortKey{}
	for _, part := range strings.Split(sortBy, ",") {
		words := strings.Fields(part)
		if len(words) == 0 {
			continue
		}
		keys = append(keys, sortKey{prop: words[0], desc: len(words) > 1})
	}

	collator := collate.New(language.Und)
	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		sort.SliceStable(records, func(a, b int) bool {
			if key.desc {
				a, b = b, a
			}
			return lessValues(collator, records[a][key.prop], records[b][key.prop])
		})
	}
}

func lessValues(collator *collate.Collator, a, b any) bool {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			return af < bf
		}
	}
	return collator.CompareString(stringForm(a), stringForm(b)) < 0
}

func stringForm(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// paginate applies offset and pageSize. pageSize falls back to 10 when the
// parameter is present but not a number; an absent pageSize leaves the set
// uncapped.
func paginate(records []models.Record, params url.Values) []models.Record {
	if offset := params.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			n = 0
		}
		if n > len(records) {
			n = len(records)
		}
		records = records[n:]
	}
	if params.Has("pageSize") {
		size, err := strconv.Atoi(params.Get("pageSize"))
		if err != nil || size <= 0 {
			size = 10
		}
		if size < len(records) {
			records = records[:size]
		}
	}
	return records
}

// distinctBy keeps the first record per composite key built by joining the
// named property values with "::".
func distinctBy(records []models.Record, distinct string) []models.Record {
	props := splitList(distinct)
	seen := map[string]bool{}
	result := []models.Record{}
	for _, record := range records {
		parts := make([]string, len(props))
		for i, prop := range props {
			parts[i] = stringForm(record[prop])
		}
		key := strings.Join(parts, "::")
		if !seen[key] {
			seen[key] = true
			result = append(result, record)
		}
	}
	return result
}

func project(record models.Record, sel string) models.Record {
	result := models.Record{}
	for _, prop := range splitList(sel) {
		if v, ok := record[prop]; ok {
			result[prop] = v
		}
	}
	return result
}

func loadRelations(data any, records []models.Record, isList bool, load string, resolve LoadResolver) (any, error) {
	for _, expr := range splitList(load) {
		alias, relation, ok := strings.Cut(expr, "=")
		if !ok {
			return nil, utils.NewRequestError("Invalid load expression: " + expr)
		}
		idSource, collection, ok := strings.Cut(relation, ":")
		if !ok {
			return nil, utils.NewRequestError("Invalid load expression: " + expr)
		}
		log.Printf("INFO: loading related records from %q into %q, joined on \"_id\"=%q", collection, alias, idSource)

		attach := func(r models.Record) error {
			id, _ := r[idSource].(string)
			related, err := resolve(collection, id)
			if err != nil {
				return err
			}
			r[alias] = related
			return nil
		}

		if isList {
			for _, record := range records {
				if err := attach(record); err != nil {
					return nil, err
				}
			}
			data = records
		} else if record, ok := data.(models.Record); ok {
			if err := attach(record); err != nil {
				return nil, err
			}
			data = record
		}
	}
	return data, nil
}

func applyToEach(data any, records []models.Record, isList bool, transform func(models.Record) models.Record) any {
	if isList {
		result := make([]models.Record, len(records))
		for i, record := range records {
			result[i] = transform(record)
		}
		return result
	}
	if record, ok := data.(models.Record); ok {
		return transform(record)
	}
	return data
}

func splitList(s string) []string {
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
