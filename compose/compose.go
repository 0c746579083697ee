// Package compose implements the declarative typed-message layer
// described in spec §4.4: each typed message is an ordinary Go struct
// whose exported fields carry a `diam` struct tag naming the AVP code,
// vendor-id, and requiredness. Populate fills such a struct from a raw
// AVP list; Emit walks the same tags to regenerate the AVP list in
// declared order, appending any AVPs the struct didn't account for.
//
// This mirrors the teacher's reflect-driven plugin registry
// (pkg/plugin: reflect.TypeOf((*Handler)(nil)).Elem() keys a registry
// of implementations) adapted from "one interface, many registered
// implementations" to "one struct type, one cached field-tag table".
// Per spec §9's Open Question 3, there is deliberately no map-based
// update path — Populate/Emit are the only mutation entry points.
package compose

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/diameter-go/diameter/diam"
)

// entry is one parsed composition-table row, cached per struct type.
type entry struct {
	fieldIndex        int
	attribute         string
	code              uint32
	vendorID          uint32
	required          bool
	hasMandatoryFlag  bool
	mandatoryOverride bool
	isAdditional      bool
	isSequence        bool // field kind is a slice
	isNested          bool // field (element) type is itself a composed struct
}

var tableCache sync.Map // reflect.Type -> []entry

// table returns the cached (or freshly built) composition table for t,
// which must be a struct type.
func table(t reflect.Type) ([]entry, error) {
	if cached, ok := tableCache.Load(t); ok {
		return cached.([]entry), nil
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("compose: %s is not a struct", t)
	}
	var entries []entry
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, ok := f.Tag.Lookup("diam")
		if !ok {
			continue
		}
		e := entry{fieldIndex: i, attribute: f.Name}
		if tag == "additional" {
			e.isAdditional = true
			entries = append(entries, e)
			continue
		}
		for _, part := range strings.Split(tag, ",") {
			part = strings.TrimSpace(part)
			switch {
			case part == "required":
				e.required = true
			case strings.HasPrefix(part, "code="):
				v, err := strconv.ParseUint(part[len("code="):], 10, 32)
				if err != nil {
					return nil, fmt.Errorf("compose: %s.%s: bad code tag: %w", t, f.Name, err)
				}
				e.code = uint32(v)
			case strings.HasPrefix(part, "vendor="):
				v, err := strconv.ParseUint(part[len("vendor="):], 10, 32)
				if err != nil {
					return nil, fmt.Errorf("compose: %s.%s: bad vendor tag: %w", t, f.Name, err)
				}
				e.vendorID = uint32(v)
			case strings.HasPrefix(part, "mandatory="):
				b, err := strconv.ParseBool(part[len("mandatory="):])
				if err != nil {
					return nil, fmt.Errorf("compose: %s.%s: bad mandatory tag: %w", t, f.Name, err)
				}
				e.hasMandatoryFlag = true
				e.mandatoryOverride = b
			}
		}
		ft := f.Type
		if ft.Kind() == reflect.Slice {
			e.isSequence = true
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) && ft != reflect.TypeOf(diam.Address{}) {
			e.isNested = true
		}
		entries = append(entries, e)
	}
	tableCache.Store(t, entries)
	return entries, nil
}

// AdditionalAVPs is the type every composed struct's "additional" field
// must use to preserve arrival order of undeclared AVPs (spec §9).
type AdditionalAVPs = []*diam.AVP

// Populate fills target (a pointer to a composed struct) from avps, in
// the order spec §4.4 describes: matching entries consume their AVPs,
// anything left over is appended to the "additional" field in arrival
// order.
func Populate(dict diam.Dictionary, avps []*diam.AVP, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("compose: Populate target must be a pointer to struct")
	}
	v = v.Elem()
	entries, err := table(v.Type())
	if err != nil {
		return err
	}

	consumed := make([]bool, len(avps))
	var errs error

	for _, e := range entries {
		if e.isAdditional {
			continue
		}
		var matches []*diam.AVP
		for i, a := range avps {
			if consumed[i] {
				continue
			}
			if a.Code == e.code && a.VendorID == e.vendorID {
				matches = append(matches, a)
				consumed[i] = true
				if !e.isSequence {
					break
				}
			}
		}
		if len(matches) == 0 {
			if e.required {
				errs = multierr.Append(errs, &MissingAVPError{Attribute: e.attribute, Code: e.code, VendorID: e.vendorID})
			}
			continue
		}
		field := v.Field(e.fieldIndex)
		if err := populateField(dict, field, e, matches); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	for _, e := range entries {
		if !e.isAdditional {
			continue
		}
		field := v.Field(e.fieldIndex)
		var leftover AdditionalAVPs
		for i, a := range avps {
			if !consumed[i] {
				leftover = append(leftover, a)
			}
		}
		field.Set(reflect.ValueOf(leftover))
	}

	return errs
}

func populateField(dict diam.Dictionary, field reflect.Value, e entry, matches []*diam.AVP) error {
	if e.isSequence {
		slice := reflect.MakeSlice(field.Type(), 0, len(matches))
		for _, a := range matches {
			elem, err := decodeOne(dict, field.Type().Elem(), e, a)
			if err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		field.Set(slice)
		return nil
	}
	elem, err := decodeOne(dict, field.Type(), e, matches[0])
	if err != nil {
		return err
	}
	field.Set(elem)
	return nil
}

// decodeOne decodes a single AVP into a value assignable to fieldType
// (which may be a pointer, for optional scalars and nested records).
func decodeOne(dict diam.Dictionary, fieldType reflect.Type, e entry, a *diam.AVP) (reflect.Value, error) {
	if e.isNested {
		ptrToStruct := fieldType.Kind() == reflect.Ptr
		structType := fieldType
		if ptrToStruct {
			structType = fieldType.Elem()
		}
		nested := reflect.New(structType)
		children, err := a.Children(dict)
		if err != nil {
			return reflect.Value{}, &InvalidAVPValueError{Attribute: e.attribute, Code: e.code, Cause: err}
		}
		if err := Populate(dict, children, nested.Interface()); err != nil {
			return reflect.Value{}, err
		}
		if ptrToStruct {
			return nested, nil
		}
		return nested.Elem(), nil
	}
	return decodeScalar(fieldType, e, a)
}

func decodeScalar(fieldType reflect.Type, e entry, a *diam.AVP) (reflect.Value, error) {
	wrap := func(v any, err error) (reflect.Value, error) {
		if err != nil {
			return reflect.Value{}, &InvalidAVPValueError{Attribute: e.attribute, Code: e.code, Cause: err}
		}
		rv := reflect.ValueOf(v)
		if fieldType.Kind() == reflect.Ptr {
			p := reflect.New(fieldType.Elem())
			p.Elem().Set(rv.Convert(fieldType.Elem()))
			return p, nil
		}
		return rv.Convert(fieldType), nil
	}
	switch a.Type {
	case diam.Integer32:
		return wrap(a.Int32())
	case diam.Integer64:
		return wrap(a.Int64())
	case diam.Unsigned32:
		return wrap(a.Uint32())
	case diam.Unsigned64:
		return wrap(a.Uint64())
	case diam.Float32Type:
		return wrap(a.Float32())
	case diam.Float64Type:
		return wrap(a.Float64())
	case diam.Enumerated:
		return wrap(a.Int32())
	case diam.UTF8StringType:
		return wrap(a.UTF8String(false))
	case diam.OctetStringType:
		return wrap(a.OctetString())
	case diam.AddressType:
		return wrap(a.AddressValue())
	case diam.TimeType:
		return wrap(a.Time())
	default:
		return reflect.Value{}, &InvalidAVPValueError{Attribute: e.attribute, Code: e.code, Cause: diam.ErrTypeMismatch}
	}
}

// Emit walks source's composition table in declared order, building
// one AVP per populated entry, then appending the "additional" field
// verbatim (spec §4.4). A required entry with a nil value fails with
// MissingAVPError.
func Emit(dict diam.Dictionary, source any) ([]*diam.AVP, error) {
	v := reflect.ValueOf(source)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("compose: Emit source must be a struct or pointer to struct")
	}
	entries, err := table(v.Type())
	if err != nil {
		return nil, err
	}

	var out []*diam.AVP
	var errs error
	for _, e := range entries {
		if e.isAdditional {
			continue
		}
		field := v.Field(e.fieldIndex)
		avps, err := emitField(dict, field, e)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, avps...)
	}
	for _, e := range entries {
		if !e.isAdditional {
			continue
		}
		field := v.Field(e.fieldIndex)
		for i := 0; i < field.Len(); i++ {
			out = append(out, field.Index(i).Interface().(*diam.AVP))
		}
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func emitField(dict diam.Dictionary, field reflect.Value, e entry) ([]*diam.AVP, error) {
	if e.isSequence {
		var out []*diam.AVP
		for i := 0; i < field.Len(); i++ {
			a, err := emitOne(dict, e, field.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		if len(out) == 0 && e.required {
			return nil, &MissingAVPError{Attribute: e.attribute, Code: e.code, VendorID: e.vendorID}
		}
		return out, nil
	}

	isNilable := field.Kind() == reflect.Ptr
	if isNilable && field.IsNil() {
		if e.required {
			return nil, &MissingAVPError{Attribute: e.attribute, Code: e.code, VendorID: e.vendorID}
		}
		return nil, nil
	}
	a, err := emitOne(dict, e, field)
	if err != nil {
		return nil, err
	}
	return []*diam.AVP{a}, nil
}

func emitOne(dict diam.Dictionary, e entry, value reflect.Value) (*diam.AVP, error) {
	var mandatoryOverride *bool
	if e.hasMandatoryFlag {
		mandatoryOverride = &e.mandatoryOverride
	}
	a, err := diam.NewAVP(dict, e.vendorID, e.code, mandatoryOverride)
	if err != nil {
		return nil, err
	}

	if e.isNested {
		inner := value
		if inner.Kind() == reflect.Ptr {
			inner = inner.Elem()
		}
		children, err := Emit(dict, inner.Interface())
		if err != nil {
			return nil, err
		}
		a.SetGrouped(children)
		return a, nil
	}

	v := value
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	switch iv := v.Interface().(type) {
	case int32:
		a.SetInt32(iv)
	case int64:
		a.SetInt64(iv)
	case uint32:
		a.SetUint32(iv)
	case uint64:
		a.SetUint64(iv)
	case float32:
		a.SetFloat32(iv)
	case float64:
		a.SetFloat64(iv)
	case string:
		if a.Type == diam.AddressType {
			if err := a.SetAddress(iv); err != nil {
				return nil, &InvalidAVPValueError{Attribute: e.attribute, Code: e.code, Cause: err}
			}
		} else if err := a.SetUTF8String(iv); err != nil {
			return nil, &InvalidAVPValueError{Attribute: e.attribute, Code: e.code, Cause: err}
		}
	case []byte:
		a.SetOctetString(iv)
	case time.Time:
		a.SetTime(iv)
	case diam.Address:
		a.Type = diam.AddressType
		if iv.IP.IsValid() {
			if err := a.SetAddress(iv.IP.String()); err != nil {
				return nil, &InvalidAVPValueError{Attribute: e.attribute, Code: e.code, Cause: err}
			}
		} else if err := a.SetAddress(iv.Digits); err != nil {
			return nil, &InvalidAVPValueError{Attribute: e.attribute, Code: e.code, Cause: err}
		}
	default:
		return nil, &InvalidAVPValueError{Attribute: e.attribute, Code: e.code, Cause: diam.ErrTypeMismatch}
	}
	return a, nil
}
