// =============================================================================
// csvmap - Object Binding
// =============================================================================
//
// Object readers construct a fresh record per row and assign each reconciled
// name/value pair to it. Object writers do the reverse.
//
// A record type may implement FieldSetter / FieldGetter to take full control.
// Otherwise it must be a struct (or a pointer to one) and fields are matched
// by tag:
//
//   Name  string            `csv:"name"`           bound to column "name"
//   Age   int               `csv:"age,omitempty"`  zero value is not written
//   Notes string            `csv:"-"`              never bound
//   Extra map[string]string `csv:",rest"`          collects unmatched columns
//   City  string                                   bound to column "City"
//
// Values convert with strconv, time.ParseDuration, or the field's
// encoding.TextUnmarshaler / TextMarshaler. An empty value leaves a
// non-string field at its zero value. Nil pointers are not written.
//
// =============================================================================

package csvmap

import (
	"encoding"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FieldSetter is implemented by records that bind their own values.
type FieldSetter interface {
	SetField(name, value string) error
}

// FieldGetter is implemented by records that extract their own values.
// ok is false when the record has no value for name.
type FieldGetter interface {
	GetField(name string) (value string, ok bool)
}

var (
	durationType        = reflect.TypeFor[time.Duration]()
	restMapType         = reflect.TypeFor[map[string]string]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
)

// =============================================================================
// STRUCT LAYOUT
// =============================================================================

type structField struct {
	name      string
	index     []int
	omitEmpty bool
}

type structInfo struct {
	fields []structField
	byName map[string]int
	rest   []int
}

func (s *structInfo) names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.name
	}
	return out
}

var structCache sync.Map // reflect.Type -> *structInfo

// structInfoOf returns the cached layout of struct type t.
func structInfoOf(t reflect.Type) (*structInfo, error) {
	if cached, ok := structCache.Load(t); ok {
		return cached.(*structInfo), nil
	}

	info := &structInfo{byName: map[string]int{}}
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || !reachable(t, sf.Index) {
			continue
		}
		tag, hasTag := sf.Tag.Lookup("csv")
		if sf.Anonymous && !hasTag {
			continue
		}
		if tag == "-" {
			continue
		}

		name, opts, _ := strings.Cut(tag, ",")
		if opts == "rest" {
			if sf.Type != restMapType {
				return nil, fmt.Errorf("rest field %s must be map[string]string, not %s", sf.Name, sf.Type)
			}
			if info.rest == nil {
				info.rest = sf.Index
			}
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if _, dup := info.byName[name]; dup {
			continue
		}
		info.byName[name] = len(info.fields)
		info.fields = append(info.fields, structField{
			name:      name,
			index:     sf.Index,
			omitEmpty: opts == "omitempty",
		})
	}

	actual, _ := structCache.LoadOrStore(t, info)
	return actual.(*structInfo), nil
}

// reachable reports whether index can be followed without passing through an
// embedded pointer, which may be nil.
func reachable(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		ft := t.Field(i).Type
		if ft.Kind() == reflect.Pointer {
			return false
		}
		t = ft
	}
	return true
}

// recordStruct returns the struct type behind T, or nil when T is neither a
// struct nor a pointer to one.
func recordStruct[T any]() reflect.Type {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

// StructFields returns the column names a struct type binds, in declaration
// order. Rest and ignored fields are not included.
func StructFields[T any]() ([]string, error) {
	t := recordStruct[T]()
	if t == nil {
		return nil, &ConfigError{Option: "record type", Err: fmt.Errorf("%s is not a struct", reflect.TypeFor[T]())}
	}
	info, err := structInfoOf(t)
	if err != nil {
		return nil, &ConfigError{Option: "record type", Err: err}
	}
	return info.names(), nil
}

// =============================================================================
// BINDING
// =============================================================================

// newBinder returns a function that builds a T from reconciled pairs. A nil
// ctor allocates a zero value.
func newBinder[T any](ctor func() T) (func(line int, pairs []Pair) (T, error), error) {
	if ctor == nil {
		ctor = zeroCtor[T]()
	}

	var probe T
	_, direct := any(probe).(FieldSetter)
	_, viaPtr := any(&probe).(FieldSetter)
	if direct || viaPtr {
		return func(line int, pairs []Pair) (T, error) {
			v := ctor()
			setter, ok := any(v).(FieldSetter)
			if !ok {
				setter = any(&v).(FieldSetter)
			}
			for _, p := range pairs {
				if err := setter.SetField(p.Key, p.Value); err != nil {
					return v, &BindError{Line: line, Field: p.Key, Err: err}
				}
			}
			return v, nil
		}, nil
	}

	st := recordStruct[T]()
	if st == nil {
		return nil, &ConfigError{Option: "record type", Err: fmt.Errorf("%s is not a struct and does not implement FieldSetter", reflect.TypeFor[T]())}
	}
	info, err := structInfoOf(st)
	if err != nil {
		return nil, &ConfigError{Option: "record type", Err: err}
	}

	return func(line int, pairs []Pair) (T, error) {
		v := ctor()
		rv := reflect.ValueOf(&v).Elem()
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return v, &BindError{Line: line, Err: fmt.Errorf("constructor returned nil")}
			}
			rv = rv.Elem()
		}
		for _, p := range pairs {
			if err := info.assign(rv, p); err != nil {
				return v, &BindError{Line: line, Field: p.Key, Err: err}
			}
		}
		return v, nil
	}, nil
}

func zeroCtor[T any]() func() T {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		return func() T {
			return reflect.New(t.Elem()).Interface().(T)
		}
	}
	return func() T {
		var v T
		return v
	}
}

// assign sets one pair on struct value rv.
func (s *structInfo) assign(rv reflect.Value, p Pair) error {
	if i, ok := s.byName[p.Key]; ok {
		return setValue(rv.FieldByIndex(s.fields[i].index), p.Value)
	}
	if s.rest == nil {
		return nil
	}
	rest := rv.FieldByIndex(s.rest)
	if rest.IsNil() {
		rest.Set(reflect.MakeMap(restMapType))
	}
	rest.SetMapIndex(reflect.ValueOf(p.Key), reflect.ValueOf(p.Value))
	return nil
}

func setValue(v reflect.Value, s string) error {
	if v.Kind() == reflect.Pointer {
		if s == "" {
			return nil
		}
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return setValue(v.Elem(), s)
	}

	if s == "" && v.Kind() != reflect.String {
		v.SetZero()
		return nil
	}
	if v.CanAddr() && v.Addr().Type().Implements(textUnmarshalerType) {
		return v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}
	if v.Kind() == reflect.String {
		v.SetString(s)
		return nil
	}

	if v.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type %s", v.Type())
	}
	return nil
}

// =============================================================================
// EXTRACTION
// =============================================================================

// newExtractor returns a function that lists the pairs a T carries for the
// given names. Rest-map entries are returned after the named pairs, sorted.
func newExtractor[T any](names []string) (func(T) ([]Pair, error), error) {
	var probe T
	_, direct := any(probe).(FieldGetter)
	_, viaPtr := any(&probe).(FieldGetter)
	if direct || viaPtr {
		return func(v T) ([]Pair, error) {
			getter, ok := any(v).(FieldGetter)
			if !ok {
				getter = any(&v).(FieldGetter)
			}
			pairs := make([]Pair, 0, len(names))
			for _, name := range names {
				if value, ok := getter.GetField(name); ok {
					pairs = append(pairs, Pair{Key: name, Value: value})
				}
			}
			return pairs, nil
		}, nil
	}

	st := recordStruct[T]()
	if st == nil {
		return nil, &ConfigError{Option: "record type", Err: fmt.Errorf("%s is not a struct and does not implement FieldGetter", reflect.TypeFor[T]())}
	}
	info, err := structInfoOf(st)
	if err != nil {
		return nil, &ConfigError{Option: "record type", Err: err}
	}

	return func(v T) ([]Pair, error) {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil, nil
			}
			rv = rv.Elem()
		} else {
			// Addressable, so pointer-receiver MarshalText methods apply.
			addr := reflect.New(rv.Type()).Elem()
			addr.Set(rv)
			rv = addr
		}
		pairs := make([]Pair, 0, len(info.fields))
		for _, f := range info.fields {
			fv := rv.FieldByIndex(f.index)
			if f.omitEmpty && fv.IsZero() {
				continue
			}
			value, ok, err := formatValue(fv)
			if err != nil {
				return nil, &BindError{Field: f.name, Err: err}
			}
			if ok {
				pairs = append(pairs, Pair{Key: f.name, Value: value})
			}
		}
		if info.rest != nil {
			rest := rv.FieldByIndex(info.rest).Interface().(map[string]string)
			for _, k := range slices.Sorted(maps.Keys(rest)) {
				pairs = append(pairs, Pair{Key: k, Value: rest[k]})
			}
		}
		return pairs, nil
	}, nil
}

// formatValue renders v. ok is false for nil pointers and interfaces.
func formatValue(v reflect.Value) (string, bool, error) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return "", false, nil
		}
		return formatValue(v.Elem())
	}

	if v.Type().Implements(textMarshalerType) {
		b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		return string(b), err == nil, err
	}
	if v.CanAddr() && v.Addr().Type().Implements(textMarshalerType) {
		b, err := v.Addr().Interface().(encoding.TextMarshaler).MarshalText()
		return string(b), err == nil, err
	}
	if v.Type() == durationType {
		return time.Duration(v.Int()).String(), true, nil
	}

	switch v.Kind() {
	case reflect.String:
		return v.String(), true, nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), true, nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, v.Type().Bits()), true, nil
	default:
		return "", false, fmt.Errorf("unsupported field type %s", v.Type())
	}
}

// extractMap is the extractor for keyed writers. Pairs follow names, then
// any undeclared keys in sorted order.
func extractMap(names []string) func(map[string]string) ([]Pair, error) {
	declared := make(map[string]struct{}, len(names))
	for _, n := range names {
		declared[n] = struct{}{}
	}
	return func(m map[string]string) ([]Pair, error) {
		pairs := make([]Pair, 0, len(m))
		for _, name := range names {
			if value, ok := m[name]; ok {
				pairs = append(pairs, Pair{Key: name, Value: value})
			}
		}
		if len(pairs) == len(m) {
			return pairs, nil
		}
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if _, ok := declared[k]; !ok {
				pairs = append(pairs, Pair{Key: k, Value: m[k]})
			}
		}
		return pairs, nil
	}
}
