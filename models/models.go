package models

// Record is a single stored document: an untyped property bag with
// JSON-compatible values (nil, bool, float64, string, []any, nested
// map[string]any). Collections key records by their string id.
type Record map[string]any

// System field names. These are owned by the server; client payloads may
// never set them directly.
const (
	FieldID        = "_id"
	FieldOwnerID   = "_ownerId"
	FieldCreatedOn = "_createdOn"
	FieldUpdatedOn = "_updatedOn"
	FieldDeletedOn = "_deletedOn"
)

// systemFields lists every server-managed property carried across updates.
var systemFields = []string{FieldID, FieldOwnerID, FieldCreatedOn, FieldUpdatedOn}

// Copy returns a deep copy of the record. Mutating the copy never affects
// the original; this backs the store's data-integrity invariant.
func (r Record) Copy() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CopyValue(v)
	}
	return out
}

// CopyValue deep-copies a JSON-compatible value. Scalars are returned as-is.
func CopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = CopyValue(inner)
		}
		return out
	case Record:
		return map[string]any(val.Copy())
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = CopyValue(inner)
		}
		return out
	default:
		return v
	}
}

// ID returns the record's _id, or "" when unset.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// OwnerID returns the record's _ownerId, or "" when unset.
func (r Record) OwnerID() string {
	owner, _ := r[FieldOwnerID].(string)
	return owner
}

// WithoutSystem copies every non-system property of src into r. Client
// payloads pass through this on create and merge so they can never smuggle
// in an _id, owner or timestamp.
func (r Record) WithoutSystem(src Record) Record {
	for k, v := range src {
		if isSystemField(k) {
			continue
		}
		r[k] = CopyValue(v)
	}
	return r
}

// CarrySystem copies the system fields present on src onto r, overriding
// any client attempt to change them. Used on replace/merge to keep _id,
// _ownerId and _createdOn immutable.
func (r Record) CarrySystem(src Record) Record {
	for _, k := range systemFields {
		if v, ok := src[k]; ok {
			r[k] = CopyValue(v)
		}
	}
	return r
}

func isSystemField(k string) bool {
	for _, s := range systemFields {
		if k == s {
			return true
		}
	}
	return false
}
