package reference

import "fmt"

// Field names a draft field that providers may write.
type Field string

const (
	FieldTitle     Field = "title"
	FieldVenue     Field = "venue"
	FieldAbstract  Field = "abstract"
	FieldPublished Field = "published"
	FieldAuthors   Field = "authors"
)

// Fields lists every provider-writable field.
var Fields = []Field{FieldTitle, FieldVenue, FieldAbstract, FieldPublished, FieldAuthors}

// EmptyPolicy decides what an empty value in a patch means for one field.
type EmptyPolicy string

const (
	// KeepNonEmpty treats an empty patch value as unset.
	KeepNonEmpty EmptyPolicy = "keep-nonempty"
	// AllowEmpty treats an empty patch value as a real value. It only erases a
	// populated field when the scrape is forced.
	AllowEmpty EmptyPolicy = "allow-empty"
)

// MergePolicy maps fields to their empty-value policy. Missing fields use KeepNonEmpty.
type MergePolicy map[Field]EmptyPolicy

// For returns the policy for a field.
func (m MergePolicy) For(f Field) EmptyPolicy {
	if p, ok := m[f]; ok {
		return p
	}
	return KeepNonEmpty
}

// ParseMergePolicy validates a raw field->policy mapping.
func ParseMergePolicy(raw map[string]string) (MergePolicy, error) {
	policy := make(MergePolicy, len(raw))
	for name, value := range raw {
		f := Field(name)
		if !isField(f) {
			return nil, fmt.Errorf("unknown merge field %q", name)
		}
		switch p := EmptyPolicy(value); p {
		case KeepNonEmpty, AllowEmpty:
			policy[f] = p
		default:
			return nil, fmt.Errorf("invalid merge policy %q for field %s (valid: %s, %s)", value, name, KeepNonEmpty, AllowEmpty)
		}
	}
	return policy, nil
}

func isField(f Field) bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Patch is the partial record a provider produces. A nil field is unset; a
// non-nil pointer to an empty value is an explicit empty value.
type Patch struct {
	Title     *string
	Venue     *string
	Abstract  *string
	Published *PublicationDate
	Authors   []Author // nil = unset, empty non-nil = explicit empty
	IDs       map[IDKind]string
}

// String returns a pointer to s, for building patches.
func String(s string) *string {
	return &s
}

// IsEmpty reports whether the patch sets nothing.
func (p *Patch) IsEmpty() bool {
	return p == nil || (p.Title == nil && p.Venue == nil && p.Abstract == nil &&
		p.Published == nil && p.Authors == nil && len(p.IDs) == 0)
}

// SetIdentifier records an identifier in the patch.
func (p *Patch) SetIdentifier(kind IDKind, value string) {
	if value == "" {
		return
	}
	if p.IDs == nil {
		p.IDs = make(map[IDKind]string)
	}
	p.IDs[kind] = value
}

// Apply merges the patch into a copy of d. Non-empty values overwrite. Empty
// values are ignored unless the field's policy is AllowEmpty and force is set.
// Identifiers are only ever added or replaced, never removed. Apply is pure:
// the commit stamps UpdatedAt.
func (p *Patch) Apply(d Draft, policy MergePolicy, force bool) Draft {
	if p.IsEmpty() {
		return d
	}
	out := d.Clone()
	writeEmpty := func(f Field) bool {
		return force && policy.For(f) == AllowEmpty
	}

	if p.Title != nil && (*p.Title != "" || writeEmpty(FieldTitle)) {
		out.Title = *p.Title
	}
	if p.Venue != nil && (*p.Venue != "" || writeEmpty(FieldVenue)) {
		out.Venue = *p.Venue
	}
	if p.Abstract != nil && (*p.Abstract != "" || writeEmpty(FieldAbstract)) {
		out.Abstract = *p.Abstract
	}
	if p.Published != nil && (!p.Published.IsZero() || writeEmpty(FieldPublished)) {
		out.Published = *p.Published
	}
	if p.Authors != nil && (len(p.Authors) > 0 || writeEmpty(FieldAuthors)) {
		out.Authors = append([]Author(nil), p.Authors...)
	}
	for k, v := range p.IDs {
		if v == "" {
			continue
		}
		if out.IDs == nil {
			out.IDs = make(map[IDKind]string)
		}
		out.IDs[k] = v
	}
	return out
}
