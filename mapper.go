package fbexec

import (
	"database/sql"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"
)

// scanPlan maps each result column to a destination field path (immutable).
// A nil path means the column is ignored.
type scanPlan struct {
	fPath [][]int
}

// planKey identifies a scanPlan by destination struct type and the column signature.
type planKey struct {
	dstType reflect.Type
	sig     string
}

var (
	scanPlanCache = newTwoTierCache[planKey, *scanPlan](cacheSize)
	timeType      = reflect.TypeOf(time.Time{})
)

// Rows drains the cursor, converting every value through the output type
// map, and closes it.
func (r *Result) Rows() ([][]any, error) {
	defer r.Cursor.Close()
	var out [][]any
	for r.Cursor.Next() {
		row, err := r.Types.ConvertRow(r.Schema, r.Cursor.Row())
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := r.Cursor.Err(); err != nil {
		return nil, err
	}
	return out, r.Cursor.Close()
}

// ScanOne scans exactly one row into dest and closes the cursor. It supports
// pointers to structs (columns matched by alias against `db` tags or field
// names), to sql.Scanner types and to plain values (one column).
// It returns ErrNoRows if there is no row and ErrMoreThanOneRow if there are more.
func (r *Result) ScanOne(dest any) error {
	defer r.Cursor.Close()
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("fbexec: dest must be a non-nil pointer")
	}
	rv = rv.Elem()

	if !r.Cursor.Next() {
		if err := r.Cursor.Err(); err != nil {
			return err
		}
		return ErrNoRows
	}
	if err := r.scanInto(rv); err != nil {
		return err
	}
	if r.Cursor.Next() {
		return ErrMoreThanOneRow
	}
	if err := r.Cursor.Err(); err != nil {
		return err
	}
	return r.Cursor.Close()
}

// ScanAll scans all rows into dest, a pointer to a slice of structs, of
// *struct, or of single-column values, and closes the cursor.
func (r *Result) ScanAll(dest any) error {
	defer r.Cursor.Close()
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("fbexec: dest must be a non-nil pointer")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("fbexec: ScanAll requires a pointer to slice")
	}
	if rv.Len() != 0 {
		rv.Set(rv.Slice(0, 0))
	}

	elemT := rv.Type().Elem()
	isPtr := elemT.Kind() == reflect.Pointer && !isLeafType(elemT)
	for r.Cursor.Next() {
		var item reflect.Value
		if isPtr {
			item = reflect.New(elemT.Elem())
			if err := r.scanInto(item.Elem()); err != nil {
				return err
			}
		} else {
			item = reflect.New(elemT).Elem()
			if err := r.scanInto(item); err != nil {
				return err
			}
		}
		rv.Set(reflect.Append(rv, item))
	}
	if err := r.Cursor.Err(); err != nil {
		return err
	}
	return r.Cursor.Close()
}

// scanInto converts the current row and stores it into dst.
func (r *Result) scanInto(dst reflect.Value) error {
	row, err := r.Types.ConvertRow(r.Schema, r.Cursor.Row())
	if err != nil {
		return err
	}

	if dst.Kind() != reflect.Struct || isLeafType(dst.Type()) {
		if len(row) != 1 {
			return fmt.Errorf("fbexec: Scan on type %s requires 1 column, got %d", dst.Type(), len(row))
		}
		return assignValue(dst, row[0])
	}

	plan, err := getScanPlan(r.Schema.Names(), dst.Type())
	if err != nil {
		return err
	}
	for i, v := range row {
		if i >= len(plan.fPath) || plan.fPath[i] == nil {
			continue
		}
		if err := assignValue(fieldByIndexAlloc(dst, plan.fPath[i]), v); err != nil {
			return fmt.Errorf("fbexec: column %q: %w", r.Schema.Column(i).Name, err)
		}
	}
	return nil
}

// assignValue stores the converted value v into dst, following the usual
// database/sql conversions for the common cases.
func assignValue(dst reflect.Value, v any) error {
	if dst.CanAddr() {
		if sc, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return sc.Scan(v)
		}
	}
	if v == nil {
		dst.SetZero()
		return nil
	}
	if dst.Kind() == reflect.Pointer && !reflect.TypeOf(v).AssignableTo(dst.Type()) {
		p := reflect.New(dst.Type().Elem())
		if err := assignValue(p.Elem(), v); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}

	switch x := v.(type) {
	case Timestamp:
		switch {
		case dst.Type() == timeType:
			dst.Set(reflect.ValueOf(x.Time()))
			return nil
		case dst.Kind() == reflect.String:
			dst.SetString(x.String())
			return nil
		}
	case *big.Rat:
		switch {
		case dst.Type() == ratType && dst.CanAddr():
			dst.Addr().Interface().(*big.Rat).Set(x)
			return nil
		case isFloatKind(dst.Kind()):
			f, _ := x.Float64()
			dst.SetFloat(f)
			return nil
		case dst.Kind() == reflect.String:
			dst.SetString(x.RatString())
			return nil
		}
	}

	sv := reflect.ValueOf(v)
	switch {
	case sv.Type().AssignableTo(dst.Type()):
		dst.Set(sv)
	case isNumberKind(sv.Kind()) && isNumberKind(dst.Kind()):
		dst.Set(sv.Convert(dst.Type()))
	case dst.Kind() == reflect.String && (sv.Kind() == reflect.String || isBytesValue(sv)):
		dst.Set(sv.Convert(dst.Type()))
	case isBytesType(dst.Type()) && sv.Kind() == reflect.String:
		dst.Set(sv.Convert(dst.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
	}
	return nil
}

func isNumberKind(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || isFloatKind(k)
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isBytesType(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

func isBytesValue(v reflect.Value) bool {
	return isBytesType(v.Type())
}

// fieldByIndexAlloc walks a struct by index path, allocating intermediate
// pointer nodes on the way (but NOT allocating the leaf pointer itself).
func fieldByIndexAlloc(root reflect.Value, path []int) reflect.Value {
	v := root
	for i, idx := range path {
		f := v.Field(idx)
		if i == len(path)-1 {
			return f
		}
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				f.Set(reflect.New(f.Type().Elem()))
			}
			v = f.Elem()
		} else {
			v = f
		}
	}
	return v
}

// buildScanPlan resolves each column alias to a field of dstT. Columns
// without a field are ignored; ambiguous names fail.
func buildScanPlan(cols []string, dstT reflect.Type) (*scanPlan, error) {
	fmap := fieldIndexMap(dstT)
	p := &scanPlan{fPath: make([][]int, len(cols))}
	for i, col := range cols {
		fi, ok := fmap[col]
		if !ok {
			// Firebird reports unquoted aliases upper-cased.
			fi, ok = fmap[strings.ToLower(col)]
		}
		if !ok {
			continue
		}
		if fi.ambiguous {
			return nil, fmt.Errorf("%w: %q", ErrFieldAmbiguous, col)
		}
		p.fPath[i] = fi.index
	}
	return p, nil
}

// getScanPlan returns a cached scanPlan for (dst struct type, cols), or builds and caches it.
// The returned plan is immutable and safe for concurrent reuse.
func getScanPlan(cols []string, dstT reflect.Type) (*scanPlan, error) {
	key := planKey{dstType: dstT, sig: strings.Join(cols, "\x1f")}
	if p, ok := scanPlanCache.get(key); ok {
		return p, nil
	}
	p, err := buildScanPlan(cols, dstT)
	if err != nil {
		return nil, err
	}
	scanPlanCache.put(key, p)
	return p, nil
}
