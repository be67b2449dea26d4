/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"database/sql"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
)

var numericString = regexp.MustCompile(`^\d+(\.\d+)?$`)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// mapRow builds a new entity from a raw row. Columns without a mapped field
// are ignored.
func (m *entityMeta) mapRow(row map[string]interface{}) (reflect.Value, error) {
	ptr := reflect.New(m.typ)
	strct := ptr.Elem()
	for _, f := range m.table.Fields {
		v, ok := row[f.Name]
		if !ok {
			continue
		}
		if err := assign(fieldOf(strct, f), v); err != nil {
			return reflect.Value{}, errors.Wrapf(err, "column %s", f.Name)
		}
	}
	for col, idx := range m.extensions {
		v, ok := row[col]
		if !ok {
			continue
		}
		if err := assign(strct.FieldByIndex(idx), v); err != nil {
			return reflect.Value{}, errors.Wrapf(err, "column %s", col)
		}
	}
	return ptr, nil
}

// assign stores src into dst, converting between the representations
// drivers return and the Go type of the field.
func assign(dst reflect.Value, src interface{}) error {
	if isNil(src) {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}
	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), src); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	if b, ok := src.([]byte); ok && !(dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8) {
		src = string(b)
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}

	switch {
	case dst.Type() == timeType:
		return assignTime(dst, src)
	case dst.Kind() == reflect.Bool:
		return assignBool(dst, sv)
	case isNumberKind(dst.Kind()):
		if s, ok := src.(string); ok {
			return assignNumericString(dst, s)
		}
		if isNumberKind(sv.Kind()) {
			return assignNumber(dst, sv)
		}
	case dst.Kind() == reflect.String:
		if isNumberKind(sv.Kind()) || sv.Kind() == reflect.Bool {
			dst.SetString(fmt.Sprint(src))
			return nil
		}
		if sv.Type().ConvertibleTo(dst.Type()) {
			dst.Set(sv.Convert(dst.Type()))
			return nil
		}
	case dst.Kind() == reflect.Slice, dst.Kind() == reflect.Map, dst.Kind() == reflect.Struct:
		if s, ok := src.(string); ok {
			return json.Unmarshal([]byte(s), dst.Addr().Interface())
		}
		if sv.Type().ConvertibleTo(dst.Type()) {
			dst.Set(sv.Convert(dst.Type()))
			return nil
		}
	}
	return errors.Newf("cannot assign %T to %s", src, dst.Type())
}

func assignTime(dst reflect.Value, src interface{}) error {
	s, ok := src.(string)
	if !ok {
		return errors.Newf("cannot assign %T to time.Time", src)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}
	return errors.Newf("cannot parse %q as time", s)
}

func assignBool(dst reflect.Value, sv reflect.Value) error {
	switch {
	case sv.Kind() == reflect.String:
		b, err := strconv.ParseBool(sv.String())
		if err != nil {
			return errors.Wrapf(err, "cannot assign %q to bool", sv.String())
		}
		dst.SetBool(b)
	case isIntKind(sv.Kind()):
		dst.SetBool(sv.Int() != 0)
	case isUintKind(sv.Kind()):
		dst.SetBool(sv.Uint() != 0)
	default:
		return errors.Newf("cannot assign %s to bool", sv.Type())
	}
	return nil
}

// assignNumericString accepts only plain decimal strings such as "42" or
// "3.14"; drivers return DECIMAL and SUM results this way. Integer fields
// take "3" or "3.00" but not "3.7".
func assignNumericString(dst reflect.Value, s string) error {
	if !numericString.MatchString(s) {
		return errors.Newf("cannot assign %q to %s", s, dst.Type())
	}
	if isIntKind(dst.Kind()) || isUintKind(dst.Kind()) {
		whole, frac, _ := strings.Cut(s, ".")
		if strings.Trim(frac, "0") != "" {
			return errors.Newf("cannot assign %q to %s: not a whole number", s, dst.Type())
		}
		s = whole
	}
	switch {
	case isIntKind(dst.Kind()):
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil || dst.OverflowInt(i) {
			return errors.Newf("cannot assign %q to %s: out of range", s, dst.Type())
		}
		dst.SetInt(i)
	case isUintKind(dst.Kind()):
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil || dst.OverflowUint(u) {
			return errors.Newf("cannot assign %q to %s: out of range", s, dst.Type())
		}
		dst.SetUint(u)
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || dst.OverflowFloat(f) {
			return errors.Newf("cannot assign %q to %s: out of range", s, dst.Type())
		}
		dst.SetFloat(f)
	}
	return nil
}

// assignNumber converts between numeric kinds, refusing values the
// destination cannot hold exactly.
func assignNumber(dst reflect.Value, sv reflect.Value) error {
	outOfRange := func() error {
		return errors.Newf("cannot assign %v to %s: out of range", sv.Interface(), dst.Type())
	}
	switch {
	case isIntKind(dst.Kind()):
		var i int64
		switch {
		case isIntKind(sv.Kind()):
			i = sv.Int()
		case isUintKind(sv.Kind()):
			if sv.Uint() > math.MaxInt64 {
				return outOfRange()
			}
			i = int64(sv.Uint())
		default:
			f := sv.Float()
			if f != math.Trunc(f) {
				return errors.Newf("cannot assign %v to %s: not a whole number", f, dst.Type())
			}
			if f < math.MinInt64 || f >= math.MaxInt64 {
				return outOfRange()
			}
			i = int64(f)
		}
		if dst.OverflowInt(i) {
			return outOfRange()
		}
		dst.SetInt(i)
	case isUintKind(dst.Kind()):
		var u uint64
		switch {
		case isIntKind(sv.Kind()):
			if sv.Int() < 0 {
				return outOfRange()
			}
			u = uint64(sv.Int())
		case isUintKind(sv.Kind()):
			u = sv.Uint()
		default:
			f := sv.Float()
			if f != math.Trunc(f) {
				return errors.Newf("cannot assign %v to %s: not a whole number", f, dst.Type())
			}
			if f < 0 || f >= math.MaxUint64 {
				return outOfRange()
			}
			u = uint64(f)
		}
		if dst.OverflowUint(u) {
			return outOfRange()
		}
		dst.SetUint(u)
	default:
		var f float64
		switch {
		case isIntKind(sv.Kind()):
			f = float64(sv.Int())
		case isUintKind(sv.Kind()):
			f = float64(sv.Uint())
		default:
			f = sv.Float()
		}
		if dst.OverflowFloat(f) {
			return outOfRange()
		}
		dst.SetFloat(f)
	}
	return nil
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isNumberKind(k reflect.Kind) bool {
	return isIntKind(k) || isUintKind(k) || k == reflect.Float32 || k == reflect.Float64
}
