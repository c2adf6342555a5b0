package fbexec

import (
	"database/sql"
	"fmt"
	"reflect"
	"sort"
)

// namedBind is one resolved named value waiting for its slot.
type namedBind struct {
	slot  int
	name  string
	value any
}

// ResolveBinds merges positional and named binds into the positional
// argument list expected by the native driver.
//
// Named sources are map[string]any (P), maps with string-like keys,
// sql.NamedArg values and structs with exported fields (flattened, `db` tags
// honored). They are merged in order, later sources overriding earlier ones.
// Every other argument is positional and keeps its relative order.
//
// Each merged name found in index is inserted at its slots in ascending slot
// order, shifting the positional values that follow. Names absent from index
// are dropped. A slot past the end of the list built so far fails with
// ErrBindOutOfRange.
func ResolveBinds(index PlaceholderIndex, args ...any) ([]any, error) {
	positional := make([]any, 0, len(args))
	named := make(map[string]any)
	set := func(name string, v any) { named[name] = v }

	for _, arg := range args {
		ok, err := mergeNamed(arg, index, set)
		if err != nil {
			return nil, err
		}
		if !ok {
			positional = append(positional, arg)
		}
	}
	if len(named) == 0 {
		return positional, nil
	}

	pending := make([]namedBind, 0, len(named))
	for name, v := range named {
		for _, slot := range index.Slots(name) {
			pending = append(pending, namedBind{slot: slot, name: name, value: v})
		}
	}
	// Slots are unique, so the order is total.
	sort.Slice(pending, func(i, j int) bool { return pending[i].slot < pending[j].slot })

	out := positional
	for _, nb := range pending {
		if nb.slot > len(out) {
			return nil, fmt.Errorf("%w: :%s wants slot %d, only %d values bound before it", ErrBindOutOfRange, nb.name, nb.slot, len(out))
		}
		out = append(out, nil)
		copy(out[nb.slot+1:], out[nb.slot:])
		out[nb.slot] = nb.value
	}
	return out, nil
}

// mergeNamed feeds the entries of arg to set when arg is a named source.
// It reports whether arg was one. Ambiguous struct fields only fail when the
// query references them.
func mergeNamed(arg any, index PlaceholderIndex, set func(string, any)) (bool, error) {
	// FAST-PATH: map[string]any
	if m, ok := arg.(map[string]any); ok {
		for k, v := range m {
			set(k, v)
		}
		return true, nil
	}
	if na, ok := arg.(sql.NamedArg); ok {
		set(na.Name, na.Value)
		return true, nil
	}

	rv := deIndirect(reflect.ValueOf(arg))
	if !rv.IsValid() || ((rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil()) {
		return false, nil
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return false, nil
		}
		iter := rv.MapRange()
		for iter.Next() {
			set(iter.Key().String(), iter.Value().Interface())
		}
		return true, nil
	case reflect.Struct:
		if isLeafType(rv.Type()) {
			return false, nil
		}
		fields := fieldIndexMap(rv.Type())
		if len(fields) == 0 {
			return false, nil
		}
		for name, fi := range fields {
			if fi.ambiguous {
				if len(index.Slots(name)) > 0 {
					return true, fmt.Errorf("%w: %q", ErrFieldAmbiguous, name)
				}
				continue
			}
			v, _ := getValueByPathAny(rv, fi.index)
			set(name, v)
		}
		return true, nil
	}
	return false, nil
}
