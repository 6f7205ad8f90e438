// Package resource builds and decomposes the identifiers that address
// collections, rows and sensor-scoped subsets of the store, and classifies
// them into routes.
//
// The grammar is
//
//	scheme://authority/collection[/id][/sensorId[/date]][?created=date]
//
// Builders and extractors are exact inverses: parsing what a builder
// produced yields the same sensor id and date.
package resource

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jgrocha/BluetoothChat/contract"
)

// ParamCreated is the query parameter carrying a date filter
const ParamCreated = "created"

// ParamID is the query parameter naming a single temperature or calibration
// row, whose second path segment is already taken by the sensor id
const ParamID = "_id"

// DateLayout is the format of dates carried in identifiers
const DateLayout = "2006-01-02"

// Identifier is a parsed resource identifier
type Identifier struct {
	Scheme    string
	Authority string
	Segments  []string
	Query     url.Values
}

// Parse decodes a textual identifier
func Parse(raw string) (Identifier, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Identifier{}, fmt.Errorf("parse identifier %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Identifier{}, fmt.Errorf("parse identifier %q: scheme and authority are required", raw)
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	var query url.Values
	if u.RawQuery != "" {
		query = u.Query()
	}

	return Identifier{
		Scheme:    u.Scheme,
		Authority: u.Host,
		Segments:  segments,
		Query:     query,
	}, nil
}

// MustParse is Parse for identifiers known to be valid
func MustParse(raw string) Identifier {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// String renders the identifier in its canonical textual form
func (id Identifier) String() string {
	var b strings.Builder
	b.WriteString(id.Scheme)
	b.WriteString("://")
	b.WriteString(id.Authority)
	for _, s := range id.Segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	if len(id.Query) > 0 {
		b.WriteByte('?')
		b.WriteString(id.Query.Encode())
	}
	return b.String()
}

// Equal reports whether two identifiers address the same resource
func (id Identifier) Equal(other Identifier) bool {
	return id.String() == other.String()
}

// Segment returns the i-th path segment
func (id Identifier) Segment(i int) (string, bool) {
	if i < 0 || i >= len(id.Segments) {
		return "", false
	}
	return id.Segments[i], true
}

// AppendPath returns a copy with extra path segments
func (id Identifier) AppendPath(segments ...string) Identifier {
	out := id.clone()
	out.Segments = append(out.Segments, segments...)
	return out
}

// WithQueryParameter returns a copy with a query parameter set
func (id Identifier) WithQueryParameter(key, value string) Identifier {
	out := id.clone()
	if out.Query == nil {
		out.Query = url.Values{}
	}
	out.Query.Set(key, value)
	return out
}

// Collection returns the identifier of the collection id belongs to,
// dropping row, sensor and date segments and any query parameters.
func (id Identifier) Collection() Identifier {
	out := Identifier{Scheme: id.Scheme, Authority: id.Authority}
	if len(id.Segments) > 0 {
		out.Segments = []string{id.Segments[0]}
	}
	return out
}

// IsAncestorOf reports whether id is a strict path prefix of other under the
// same scheme and authority. Query parameters are ignored.
func (id Identifier) IsAncestorOf(other Identifier) bool {
	if id.Scheme != other.Scheme || id.Authority != other.Authority {
		return false
	}
	if len(id.Segments) >= len(other.Segments) {
		return false
	}
	for i, s := range id.Segments {
		if other.Segments[i] != s {
			return false
		}
	}
	return true
}

// SamePath reports whether both identifiers name the same path, ignoring
// query parameters.
func (id Identifier) SamePath(other Identifier) bool {
	if id.Scheme != other.Scheme || id.Authority != other.Authority || len(id.Segments) != len(other.Segments) {
		return false
	}
	for i, s := range id.Segments {
		if other.Segments[i] != s {
			return false
		}
	}
	return true
}

func (id Identifier) clone() Identifier {
	out := Identifier{Scheme: id.Scheme, Authority: id.Authority}
	out.Segments = append([]string(nil), id.Segments...)
	if id.Query != nil {
		out.Query = url.Values{}
		for k, v := range id.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Builders

// Base returns scheme://authority
func Base(c contract.Contract) Identifier {
	return Identifier{Scheme: c.Scheme, Authority: c.Authority}
}

// Collection returns the collection identifier of a kind
func Collection(c contract.Contract, k contract.Kind) Identifier {
	return Base(c).AppendPath(k.Path())
}

// Item returns the identifier of one row: sensor/<id> for sensors and
// <collection>?_id=<id> for the sensor-scoped kinds
func Item(c contract.Contract, k contract.Kind, id int64) Identifier {
	if k.HasSensorScope() {
		return Collection(c, k).WithQueryParameter(ParamID, strconv.FormatInt(id, 10))
	}
	return Collection(c, k).AppendPath(strconv.FormatInt(id, 10))
}

// ForSensor returns <collection>/<sensorId>: the rows of one sensor
func ForSensor(c contract.Contract, k contract.Kind, sensorID int64) Identifier {
	return Collection(c, k).AppendPath(strconv.FormatInt(sensorID, 10))
}

// ForSensorOnDate returns <collection>/<sensorId>/<date>
func ForSensorOnDate(c contract.Contract, k contract.Kind, sensorID int64, date string) Identifier {
	return ForSensor(c, k, sensorID).AppendPath(date)
}

// ForSensorWithDateParameter returns <collection>/<sensorId>?created=<date>
func ForSensorWithDateParameter(c contract.Contract, k contract.Kind, sensorID int64, date string) Identifier {
	return ForSensor(c, k, sensorID).WithQueryParameter(ParamCreated, date)
}

// Extractors. None of them panic; a missing or malformed segment yields false.

// SensorID returns the segment immediately following the collection
func SensorID(id Identifier) (int64, bool) {
	return numericSegment(id, 1)
}

// Date returns the path segment following the sensor id
func Date(id Identifier) (string, bool) {
	s, ok := id.Segment(2)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// DateParameter returns the created query parameter, if non-empty
func DateParameter(id Identifier) (string, bool) {
	if id.Query == nil {
		return "", false
	}
	s := id.Query.Get(ParamCreated)
	if s == "" {
		return "", false
	}
	return s, true
}

// IDParameter returns the _id query parameter, if present and numeric
func IDParameter(id Identifier) (int64, bool) {
	if id.Query == nil {
		return 0, false
	}
	s := id.Query.Get(ParamID)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseID returns the row id of an item identifier: the _id parameter when
// present, otherwise the trailing numeric segment
func ParseID(id Identifier) (int64, bool) {
	if n, ok := IDParameter(id); ok {
		return n, true
	}
	return numericSegment(id, len(id.Segments)-1)
}

func numericSegment(id Identifier, i int) (int64, bool) {
	s, ok := id.Segment(i)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
