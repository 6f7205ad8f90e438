package resource

import (
	"fmt"
	"time"

	"github.com/jgrocha/BluetoothChat/contract"
	"github.com/jgrocha/BluetoothChat/dataerr"
)

// Route is the classified form of an identifier. The set of routes is
// closed: every implementation lives in this file.
type Route interface {
	// Kind is the record kind the route addresses
	Kind() contract.Kind
	// IsItem reports whether the route names at most one row
	IsItem() bool
	// Scope returns the filter restricting the collection to the route,
	// or an empty expression for whole collections.
	Scope() (expr string, args []interface{})

	route()
}

type (
	SensorCollection      struct{}
	TemperatureCollection struct{}
	CalibrationCollection struct{}

	// SensorItem is sensor/<id>
	SensorItem struct{ ID int64 }

	// TemperatureItem is temperature?_id=<id>
	TemperatureItem struct{ ID int64 }

	// CalibrationItem is calibration?_id=<id>
	CalibrationItem struct{ ID int64 }

	// TemperatureForSensor is temperature/<sensorId>
	TemperatureForSensor struct{ SensorID int64 }

	// TemperatureForSensorOnDate is temperature/<sensorId>/<date> or
	// temperature/<sensorId>?created=<date>
	TemperatureForSensorOnDate struct {
		SensorID int64
		Date     string
	}

	// CalibrationForSensor is calibration/<sensorId>
	CalibrationForSensor struct{ SensorID int64 }
)

func (SensorCollection) Kind() contract.Kind           { return contract.KindSensor }
func (SensorItem) Kind() contract.Kind                 { return contract.KindSensor }
func (TemperatureCollection) Kind() contract.Kind      { return contract.KindTemperature }
func (TemperatureItem) Kind() contract.Kind            { return contract.KindTemperature }
func (TemperatureForSensor) Kind() contract.Kind       { return contract.KindTemperature }
func (TemperatureForSensorOnDate) Kind() contract.Kind { return contract.KindTemperature }
func (CalibrationCollection) Kind() contract.Kind      { return contract.KindCalibration }
func (CalibrationItem) Kind() contract.Kind            { return contract.KindCalibration }
func (CalibrationForSensor) Kind() contract.Kind       { return contract.KindCalibration }

func (SensorCollection) IsItem() bool           { return false }
func (SensorItem) IsItem() bool                 { return true }
func (TemperatureCollection) IsItem() bool      { return false }
func (TemperatureItem) IsItem() bool            { return true }
func (TemperatureForSensor) IsItem() bool       { return false }
func (TemperatureForSensorOnDate) IsItem() bool { return false }
func (CalibrationCollection) IsItem() bool      { return false }
func (CalibrationItem) IsItem() bool            { return true }
func (CalibrationForSensor) IsItem() bool       { return false }

func (SensorCollection) Scope() (string, []interface{})      { return "", nil }
func (TemperatureCollection) Scope() (string, []interface{}) { return "", nil }
func (CalibrationCollection) Scope() (string, []interface{}) { return "", nil }

func (r SensorItem) Scope() (string, []interface{}) {
	return contract.ColumnID + " = ?", []interface{}{r.ID}
}

func (r TemperatureItem) Scope() (string, []interface{}) {
	return contract.ColumnID + " = ?", []interface{}{r.ID}
}

func (r CalibrationItem) Scope() (string, []interface{}) {
	return contract.ColumnID + " = ?", []interface{}{r.ID}
}

func (r TemperatureForSensor) Scope() (string, []interface{}) {
	return contract.TemperatureColumnSensorID + " = ?", []interface{}{r.SensorID}
}

// Scope of a malformed date matches no rows
func (r TemperatureForSensorOnDate) Scope() (string, []interface{}) {
	day, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return "1 = 0", nil
	}
	next := day.AddDate(0, 0, 1).Format(DateLayout)
	expr := fmt.Sprintf("%s = ? AND %s >= ? AND %s < ?",
		contract.TemperatureColumnSensorID,
		contract.TemperatureColumnCreated,
		contract.TemperatureColumnCreated)
	return expr, []interface{}{r.SensorID, r.Date, next}
}

func (r CalibrationForSensor) Scope() (string, []interface{}) {
	return contract.CalibrationColumnSensorID + " = ?", []interface{}{r.SensorID}
}

func (SensorCollection) route()           {}
func (SensorItem) route()                 {}
func (TemperatureCollection) route()      {}
func (TemperatureItem) route()            {}
func (TemperatureForSensor) route()       {}
func (TemperatureForSensorOnDate) route() {}
func (CalibrationCollection) route()      {}
func (CalibrationItem) route()            {}
func (CalibrationForSensor) route()       {}

// Classify resolves an identifier to its route. Identifiers outside the
// contract's scheme and authority, naming an unknown collection or carrying
// malformed segments fail with an UnknownResource error.
func Classify(c contract.Contract, id Identifier) (Route, error) {
	if id.Scheme != c.Scheme || id.Authority != c.Authority {
		return nil, unknown(id)
	}
	if len(id.Segments) == 0 {
		return nil, unknown(id)
	}
	kind, ok := contract.KindForPath(id.Segments[0])
	if !ok {
		return nil, unknown(id)
	}

	if id.Query != nil && id.Query.Has(ParamID) {
		return item(id, kind)
	}

	if len(id.Segments) == 1 {
		switch kind {
		case contract.KindSensor:
			return SensorCollection{}, nil
		case contract.KindTemperature:
			return TemperatureCollection{}, nil
		case contract.KindCalibration:
			return CalibrationCollection{}, nil
		}
	}

	n, ok := SensorID(id)
	if !ok || n <= 0 {
		return nil, unknown(id)
	}

	switch kind {
	case contract.KindSensor:
		if len(id.Segments) != 2 {
			return nil, unknown(id)
		}
		return SensorItem{ID: n}, nil

	case contract.KindCalibration:
		if len(id.Segments) != 2 {
			return nil, unknown(id)
		}
		return CalibrationForSensor{SensorID: n}, nil

	case contract.KindTemperature:
		if len(id.Segments) > 3 {
			return nil, unknown(id)
		}
		pathDate, hasPathDate := Date(id)
		paramDate, hasParamDate := DateParameter(id)
		switch {
		case hasPathDate && hasParamDate && pathDate != paramDate:
			return nil, dataerr.NewUnknownResource(fmt.Sprintf("conflicting dates in %s", id), nil)
		case hasPathDate:
			return onDate(id, n, pathDate)
		case hasParamDate:
			return onDate(id, n, paramDate)
		default:
			return TemperatureForSensor{SensorID: n}, nil
		}
	}

	return nil, unknown(id)
}

// item classifies <collection>?_id=<id>; the parameter cannot be combined
// with path segments or other parameters
func item(id Identifier, kind contract.Kind) (Route, error) {
	n, ok := IDParameter(id)
	if !ok || n <= 0 || len(id.Segments) != 1 || len(id.Query) != 1 {
		return nil, unknown(id)
	}
	switch kind {
	case contract.KindSensor:
		return SensorItem{ID: n}, nil
	case contract.KindTemperature:
		return TemperatureItem{ID: n}, nil
	case contract.KindCalibration:
		return CalibrationItem{ID: n}, nil
	}
	return nil, unknown(id)
}

func onDate(id Identifier, sensorID int64, date string) (Route, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, dataerr.NewUnknownResource(fmt.Sprintf("invalid date in %s", id), err)
	}
	return TemperatureForSensorOnDate{SensorID: sensorID, Date: date}, nil
}

func unknown(id Identifier) error {
	return dataerr.NewUnknownResource(fmt.Sprintf("unknown uri: %s", id), nil)
}
