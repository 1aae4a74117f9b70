package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns returns the column names from the "db" tags of T, in field
// order. Embedded structs are flattened. Meant for package-level column lists.
//
// Usage:
//
//	var cardColumns = ExtractDBColumns[cards.Card]()
//	// ["id", "encrypted_number", "holder_id", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := typeMetadataOf(reflect.TypeOf(zero))
	return meta.columns()
}

// fieldInfo is one tagged field or one embedded struct.
type fieldInfo struct {
	index    int
	dbTag    string
	embedded reflect.Type
}

// typeMetadata is the cached field layout of a struct type.
type typeMetadata struct {
	fields []fieldInfo
}

func (m *typeMetadata) columns() []string {
	var cols []string
	for _, f := range m.fields {
		if f.embedded != nil {
			cols = append(cols, typeMetadataOf(f.embedded).columns()...)
			continue
		}
		cols = append(cols, f.dbTag)
	}
	return cols
}

var typeCache sync.Map // map[reflect.Type]*typeMetadata

// typeMetadataOf computes the layout once per type.
func typeMetadataOf(t reflect.Type) *typeMetadata {
	if t == nil {
		return &typeMetadata{}
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.Anonymous {
				meta.fields = append(meta.fields, fieldInfo{index: i, embedded: field.Type})
				continue
			}
			tag := field.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			meta.fields = append(meta.fields, fieldInfo{index: i, dbTag: tag})
		}
	}

	actual, _ := typeCache.LoadOrStore(t, meta)
	return actual.(*typeMetadata)
}

// StructToMap converts a struct to a column map using "db" tags, for
// squirrel SetMap. Untagged and "-" fields are skipped.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := typeMetadataOf(rv.Type())
	res := make(map[string]any, len(meta.fields))
	for _, f := range meta.fields {
		if f.embedded != nil {
			for k, val := range StructToMap(rv.Field(f.index).Interface()) {
				res[k] = val
			}
			continue
		}
		res[f.dbTag] = rv.Field(f.index).Interface()
	}
	return res
}
