package query

import (
	"strings"
)

// Field is one of the searchable book attributes. The set is closed: only the
// constants below compile to a column.
type Field string

const (
	FieldTitle       Field = "title"
	FieldAuthor      Field = "author"
	FieldPublisher   Field = "publisher"
	FieldPublishDate Field = "publishdate"
	FieldISBN        Field = "isbn"
	FieldSSCode      Field = "sscode"
	FieldDXID        Field = "dxid"
)

// fieldColumns maps each field to its column in the books table.
var fieldColumns = map[Field]string{
	FieldTitle:       "title",
	FieldAuthor:      "author",
	FieldPublisher:   "publisher",
	FieldPublishDate: "publish_date",
	FieldISBN:        "ISBN",
	FieldSSCode:      "SS_code",
	FieldDXID:        "dxid",
}

// fieldAliases accepts the descriptive spellings used by clients.
var fieldAliases = map[string]Field{
	"publish-date": FieldPublishDate,
	"publish_date": FieldPublishDate,
	"shard-code":   FieldSSCode,
	"ss_code":      FieldSSCode,
	"internal-id":  FieldDXID,
}

// Fields returns every searchable field in display order.
func Fields() []Field {
	return []Field{
		FieldTitle,
		FieldAuthor,
		FieldPublisher,
		FieldPublishDate,
		FieldISBN,
		FieldSSCode,
		FieldDXID,
	}
}

// ParseField resolves a client-supplied field name. Matching ignores case and
// surrounding whitespace. Unknown names yield a ValidationError.
func ParseField(name string) (Field, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if f := Field(key); f.Valid() {
		return f, nil
	}
	if f, ok := fieldAliases[key]; ok {
		return f, nil
	}
	return "", newValidationError(ConstraintUnknownField, "unknown search field %q", name)
}

// Valid reports whether f belongs to the enumeration.
func (f Field) Valid() bool {
	_, ok := fieldColumns[f]
	return ok
}

// Column returns the column name backing f, or "" for an invalid field.
func (f Field) Column() string {
	return fieldColumns[f]
}

func (f Field) String() string {
	return string(f)
}
