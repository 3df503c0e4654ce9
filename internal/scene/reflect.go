package scene

import (
	"fmt"
	"reflect"
	"sort"
	"unsafe"
)

// serializeTag marks an unexported struct field as serialized state that
// asset property iteration should expose.
const serializeTag = "serialize"

var objectType = reflect.TypeOf((*Object)(nil)).Elem()

// ReflectFields extracts object references held by the Go value v: fields
// whose static or dynamic type implements Object, plus slices, arrays and
// maps of them. Exported fields are always visited; unexported fields only
// when includeHidden is set and they carry the `refgraph:"serialize"` tag.
//
// A panic while reading one field is converted into a Field with Err set so
// the remaining fields are still returned.
func ReflectFields(v any, includeHidden bool) []Field {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	var out []Field
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() && !(includeHidden && sf.Tag.Get("refgraph") == serializeTag) {
			continue
		}
		if sf.Tag.Get("refgraph") == "-" {
			continue
		}
		out = append(out, readField(rv, i, sf)...)
	}
	return out
}

func readField(owner reflect.Value, i int, sf reflect.StructField) (fields []Field) {
	defer func() {
		if r := recover(); r != nil {
			fields = []Field{{Name: sf.Name, Err: fmt.Errorf("%w: %s: %v", ErrFieldAccess, sf.Name, r)}}
		}
	}()

	fv := owner.Field(i)
	if !sf.IsExported() {
		if !fv.CanAddr() {
			return []Field{{Name: sf.Name, Err: fmt.Errorf("%w: %s: unexported field of non-addressable value", ErrFieldAccess, sf.Name)}}
		}
		fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
	}
	return collect(sf.Name, fv)
}

func collect(name string, fv reflect.Value) []Field {
	if fv.Kind() == reflect.Interface && !fv.IsNil() && !fv.Type().Implements(objectType) {
		fv = fv.Elem()
	}
	switch fv.Kind() {
	case reflect.Slice, reflect.Array:
		var out []Field
		for j := 0; j < fv.Len(); j++ {
			out = append(out, collect(fmt.Sprintf("%s[%d]", name, j), fv.Index(j))...)
		}
		return out
	case reflect.Map:
		keys := fv.MapKeys()
		sort.Slice(keys, func(a, b int) bool {
			return fmt.Sprint(keys[a].Interface()) < fmt.Sprint(keys[b].Interface())
		})
		var out []Field
		for _, k := range keys {
			out = append(out, collect(fmt.Sprintf("%s[%v]", name, k.Interface()), fv.MapIndex(k))...)
		}
		return out
	}

	if !fv.IsValid() || !fv.Type().Implements(objectType) {
		return nil
	}
	if (fv.Kind() == reflect.Pointer || fv.Kind() == reflect.Interface) && fv.IsNil() {
		return nil
	}
	obj, ok := fv.Interface().(Object)
	if !ok || IsNil(obj) {
		return nil
	}
	return []Field{{Name: name, Target: obj}}
}
