package domain

import (
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Record is one stock snapshot. Numeric attributes live in Values keyed by
// field name; anything non-numeric other than code and name is dropped.
type Record struct {
	Code   string             `json:"code" msgpack:"c"`
	Name   string             `json:"name" msgpack:"n"`
	Values map[string]float64 `json:"-" msgpack:"v"`
}

// NewRecord builds a record from a code, a name and field values.
func NewRecord(code, name string, values map[string]float64) Record {
	if values == nil {
		values = make(map[string]float64)
	}
	return Record{Code: code, Name: name, Values: values}
}

// Value returns the named attribute. Absent and NaN attributes read as 0.
func (r Record) Value(field string) float64 {
	v, ok := r.Values[field]
	if !ok || math.IsNaN(v) {
		return 0
	}
	return v
}

// Lookup returns the named attribute and whether it is present.
func (r Record) Lookup(field string) (float64, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// MarshalJSON writes the record as one flat object.
func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Values)+2)
	for k, v := range r.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			flat[k] = nil
			continue
		}
		flat[k] = v
	}
	flat["code"] = r.Code
	flat["name"] = r.Name
	return json.Marshal(flat)
}

// UnmarshalJSON reads a flat object. Numbers and numeric strings become values.
func (r *Record) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid record json")
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return errors.New("record must be a json object")
	}
	*r = ParseRecord(res)
	return nil
}

// ParseRecord converts a gjson object into a Record.
func ParseRecord(obj gjson.Result) Record {
	rec := NewRecord("", "", nil)
	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		switch k {
		case "code":
			rec.Code = value.String()
		case "name":
			rec.Name = value.String()
		default:
			switch value.Type {
			case gjson.Number:
				rec.Values[k] = value.Float()
			case gjson.String:
				if f, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64); err == nil {
					rec.Values[k] = f
				}
			}
		}
		return true
	})
	return rec
}

// SortRecords orders records by field, ascending unless desc is set.
// The sort is stable so ties keep their input order.
func SortRecords(records []Record, field string, desc bool) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Value(field), records[j].Value(field)
		if desc {
			return a > b
		}
		return a < b
	})
}
