package dbase

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Row is an owned, decoded record. It stays valid after the table moved on.
type Row struct {
	table    *Table
	Position int  // Physical record index, zero based
	Deleted  bool // Deletion flag
	fields   []*Field
}

// Field is a single decoded value of a row.
type Field struct {
	column *Column
	value  interface{}
}

// InvalidValue replaces a field value that could not be decoded while field
// validation is disabled.
type InvalidValue struct {
	Raw []byte
	Err error
}

func (v InvalidValue) String() string {
	return fmt.Sprintf("invalid value %q: %v", v.Raw, v.Err)
}

// Values returns all field values in column order.
func (row *Row) Values() []interface{} {
	values := make([]interface{}, 0, len(row.fields))
	for _, field := range row.fields {
		values = append(values, field.value)
	}
	return values
}

// Value returns the value at the column position or nil if the position is out of range.
func (row *Row) Value(pos int) interface{} {
	if pos < 0 || pos >= len(row.fields) {
		return nil
	}
	return row.fields[pos].value
}

// ValueByName returns the value of the named column.
func (row *Row) ValueByName(name string) (interface{}, error) {
	pos := row.table.ColumnPosByName(name)
	if pos < 0 {
		return nil, newErrorf("dbase-row-valuebyname-1", "%w: column %s", ErrInvalidPosition, name)
	}
	return row.fields[pos].value, nil
}

// Fields returns all fields of the row.
func (row *Row) Fields() []*Field {
	return row.fields
}

// Field returns the field at the column position or nil.
func (row *Row) Field(pos int) *Field {
	if pos < 0 || pos >= len(row.fields) {
		return nil
	}
	return row.fields[pos]
}

// FieldByName returns the named field or nil.
func (row *Row) FieldByName(name string) *Field {
	return row.Field(row.table.ColumnPosByName(name))
}

// Invalid reports whether any field holds an InvalidValue.
func (row *Row) Invalid() bool {
	for _, field := range row.fields {
		if field.Invalid() {
			return true
		}
	}
	return false
}

// GetValue returns the decoded value, possibly nil or an InvalidValue.
func (field Field) GetValue() interface{} {
	return field.value
}

func (field Field) Name() string {
	return field.column.Name()
}

func (field Field) Type() FieldType {
	return field.column.Type()
}

func (field Field) Column() *Column {
	return field.column
}

func (field Field) Invalid() bool {
	_, ok := field.value.(InvalidValue)
	return ok
}

/**
 *	################################################################
 *	#						Conversions
 *	################################################################
 */

// ToMap returns the row as map keyed by column name. Column modifications of
// the configuration rename, trim and convert values.
func (row *Row) ToMap() (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(row.fields))
	var err error
	for _, field := range row.fields {
		val := field.GetValue()
		mod := row.table.modification(field.column)
		if mod != nil {
			if row.table.config.TrimSpaces || mod.TrimSpaces {
				if str, ok := val.(string); ok {
					val = strings.TrimSpace(str)
				}
			}
			if mod.Convert != nil {
				val, err = mod.Convert(val)
				if err != nil {
					return nil, newError("dbase-row-tomap-1", err)
				}
			}
			if len(mod.ExternalKey) != 0 {
				out[mod.ExternalKey] = val
				continue
			}
		}
		out[field.Name()] = val
	}
	return out, nil
}

// ToJSON returns the row as JSON object.
func (row *Row) ToJSON() ([]byte, error) {
	m, err := row.ToMap()
	if err != nil {
		return nil, newError("dbase-row-tojson-1", err)
	}
	j, err := json.Marshal(m)
	if err != nil {
		return j, newError("dbase-row-tojson-2", err)
	}
	return j, nil
}

// ToStruct stores the row in the struct pointed to by v. Struct fields are
// matched by their dbase tag, e.g. `dbase:"NAME"`, or by their name.
func (row *Row) ToStruct(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return newErrorf("dbase-row-tostruct-1", "expected pointer to struct, got %T", v)
	}
	m, err := row.ToMap()
	if err != nil {
		return newError("dbase-row-tostruct-2", err)
	}
	tags := structTags(v)
	for key, value := range m {
		if value == nil {
			continue
		}
		if _, invalid := value.(InvalidValue); invalid {
			continue
		}
		if err := setStructField(tags, v, key, value); err != nil {
			return newError("dbase-row-tostruct-3", err)
		}
	}
	return nil
}

// structTags maps dbase tag values (or field names) to struct field names.
func structTags(v interface{}) map[string]string {
	tags := make(map[string]string)
	rt := reflect.TypeOf(v)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("dbase")
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = field.Name
		}
		tags[tag] = field.Name
	}
	return tags
}

// setStructField assigns value to the struct field registered for name. Names
// are matched case-insensitively if there is no exact match.
func setStructField(tags map[string]string, v interface{}, name string, value interface{}) error {
	fieldName, ok := tags[name]
	if !ok {
		for tag, candidate := range tags {
			if strings.EqualFold(tag, name) {
				fieldName, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		return nil
	}
	field := reflect.ValueOf(v).Elem().FieldByName(fieldName)
	if !field.CanSet() {
		return fmt.Errorf("field %s can not be set", fieldName)
	}
	val := reflect.ValueOf(value)
	if val.Type() == field.Type() {
		field.Set(val)
		return nil
	}
	if field.Kind() == reflect.Ptr && val.Type() == field.Type().Elem() {
		ptr := reflect.New(val.Type())
		ptr.Elem().Set(val)
		field.Set(ptr)
		return nil
	}
	converted := cast(value, field.Type())
	if converted == nil {
		return fmt.Errorf("can not assign %T to field %s of type %s", value, fieldName, field.Type())
	}
	field.Set(reflect.ValueOf(converted))
	return nil
}

// cast converts numeric values between Go numeric kinds and []byte to string.
// It returns nil if no conversion exists.
func cast(value interface{}, to reflect.Type) interface{} {
	val := reflect.ValueOf(value)
	switch {
	case val.Kind() == reflect.Slice && val.Type().Elem().Kind() == reflect.Uint8 && to.Kind() == reflect.String:
		return reflect.ValueOf(string(val.Bytes())).Convert(to).Interface()
	case isNumber(val.Kind()) && isNumber(to.Kind()):
		return val.Convert(to).Interface()
	case val.Type().ConvertibleTo(to) && val.Kind() == to.Kind():
		return val.Convert(to).Interface()
	}
	return nil
}

func isNumber(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// nthBit reports whether bit n (zero based, counting from the first byte's LSB) is set.
func nthBit(b []byte, n int) bool {
	if n < 0 || n/8 >= len(b) {
		return false
	}
	return b[n/8]&(1<<uint(n%8)) != 0
}
