package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownColumn is returned by SetField for columns Book does not carry
var ErrUnknownColumn = errors.New("unknown column")

// Book is one row of the books table
// Every column is nullable in the shard files, hence the pointers
type Book struct {
	ID             *int64  `json:"id,omitempty"`
	Title          *string `json:"title,omitempty"`
	Author         *string `json:"author,omitempty"`
	Publisher      *string `json:"publisher,omitempty"`
	PublishDate    *string `json:"publish_date,omitempty"`
	PageCount      *int64  `json:"page_count,omitempty"`
	ISBN           *string `json:"isbn,omitempty"`
	SSCode         *string `json:"ss_code,omitempty"`
	DXID           *string `json:"dxid,omitempty"`
	SecondPassCode *string `json:"second_pass_code,omitempty"`
	Size           *string `json:"size,omitempty"`
	FileType       *string `json:"file_type,omitempty"`

	// Shard names the file the row came from; it is not a column
	Shard string `json:"shard,omitempty"`
}

// SetField assigns a scanned column value by column name
// Column names match case-insensitively; NULL leaves the field nil
func (b *Book) SetField(column string, value any) error {
	col := strings.ToLower(column)
	var str **string
	var num **int64
	switch col {
	case "id":
		num = &b.ID
	case "page_count":
		num = &b.PageCount
	case "title":
		str = &b.Title
	case "author":
		str = &b.Author
	case "publisher":
		str = &b.Publisher
	case "publish_date", "publishdate":
		str = &b.PublishDate
	case "isbn":
		str = &b.ISBN
	case "ss_code":
		str = &b.SSCode
	case "dxid":
		str = &b.DXID
	case "second_pass_code":
		str = &b.SecondPassCode
	case "size":
		str = &b.Size
	case "file_type":
		str = &b.FileType
	default:
		return ErrUnknownColumn
	}

	if value == nil {
		return nil
	}
	if str != nil {
		v, ok := asString(value)
		if !ok {
			return fmt.Errorf("column %s: unsupported value type %T", column, value)
		}
		*str = &v
		return nil
	}
	v, ok := asInt64(value)
	if !ok {
		return fmt.Errorf("column %s: unsupported value type %T", column, value)
	}
	*num = &v
	return nil
}

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case []byte:
		i, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
