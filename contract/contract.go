// Package contract defines table names, column names and resource paths
// for the temperature store. It is the single source of truth shared by
// the identifier parser, the store and the router.
package contract

import "fmt"

// Kind is one of the three record kinds held by the store
type Kind int

const (
	KindSensor Kind = iota + 1
	KindTemperature
	KindCalibration
)

// Kinds lists every kind in table creation order: parents before children.
var Kinds = []Kind{KindSensor, KindTemperature, KindCalibration}

// Path segments appended to the base identifier
const (
	PathSensor      = "sensor"
	PathTemperature = "temperature"
	PathCalibration = "calibration"
)

// Common columns
const (
	ColumnID = "_id"
)

// Sensor table
const (
	SensorTable             = "sensor"
	SensorColumnLocation    = "location"
	SensorColumnInstallDate = "installdate"
	SensorColumnSensorType  = "sensortype"
	SensorColumnMetric      = "metric"
	SensorColumnCalibrated  = "calibrated"
	SensorColumnCalA        = "cal_a"
	SensorColumnCalB        = "cal_b"
)

// Temperature table
const (
	TemperatureTable            = "temperature"
	TemperatureColumnSensorID   = "sensorid"
	TemperatureColumnCreated    = "created"
	TemperatureColumnValue      = "value"
	TemperatureColumnMetric     = "metric"
	TemperatureColumnCalibrated = "calibrated"
)

// Calibration table
const (
	CalibrationTable               = "calibration"
	CalibrationColumnSensorID      = "sensorid"
	CalibrationColumnCreated       = "created"
	CalibrationColumnCalAOld       = "cal_a_old"
	CalibrationColumnCalBOld       = "cal_b_old"
	CalibrationColumnCalANew       = "cal_a_new"
	CalibrationColumnCalBNew       = "cal_b_new"
	CalibrationColumnRefValueHigh  = "ref_value_high"
	CalibrationColumnRefValueLow   = "ref_value_low"
	CalibrationColumnReadValueHigh = "read_value_high"
	CalibrationColumnReadValueLow  = "read_value_low"
)

// ColumnType is the declared storage class of a column
type ColumnType string

const (
	TypeInteger  ColumnType = "integer"
	TypeText     ColumnType = "text"
	TypeReal     ColumnType = "real"
	TypeBool     ColumnType = "bool"
	TypeDateTime ColumnType = "datetime"
)

// Column describes one column of a table. Required columns are NOT NULL
// without a default and must be supplied on insert.
type Column struct {
	Name       string
	Type       ColumnType
	Required   bool
	HasDefault bool
}

var sensorColumns = []Column{
	{Name: ColumnID, Type: TypeInteger, HasDefault: true},
	{Name: SensorColumnLocation, Type: TypeText, Required: true},
	{Name: SensorColumnInstallDate, Type: TypeDateTime, HasDefault: true},
	{Name: SensorColumnSensorType, Type: TypeText, Required: true},
	{Name: SensorColumnMetric, Type: TypeBool, HasDefault: true},
	{Name: SensorColumnCalibrated, Type: TypeBool, HasDefault: true},
	{Name: SensorColumnCalA, Type: TypeReal, HasDefault: true},
	{Name: SensorColumnCalB, Type: TypeReal, HasDefault: true},
}

var temperatureColumns = []Column{
	{Name: ColumnID, Type: TypeInteger, HasDefault: true},
	{Name: TemperatureColumnSensorID, Type: TypeInteger, Required: true},
	{Name: TemperatureColumnCreated, Type: TypeDateTime, HasDefault: true},
	{Name: TemperatureColumnValue, Type: TypeReal, Required: true},
	{Name: TemperatureColumnMetric, Type: TypeBool, HasDefault: true},
	{Name: TemperatureColumnCalibrated, Type: TypeBool, HasDefault: true},
}

var calibrationColumns = []Column{
	{Name: ColumnID, Type: TypeInteger, HasDefault: true},
	{Name: CalibrationColumnSensorID, Type: TypeInteger, Required: true},
	{Name: CalibrationColumnCreated, Type: TypeDateTime, HasDefault: true},
	{Name: CalibrationColumnCalAOld, Type: TypeReal, Required: true},
	{Name: CalibrationColumnCalBOld, Type: TypeReal, Required: true},
	{Name: CalibrationColumnCalANew, Type: TypeReal, Required: true},
	{Name: CalibrationColumnCalBNew, Type: TypeReal, Required: true},
	{Name: CalibrationColumnRefValueHigh, Type: TypeReal, Required: true},
	{Name: CalibrationColumnRefValueLow, Type: TypeReal, Required: true},
	{Name: CalibrationColumnReadValueHigh, Type: TypeReal, Required: true},
	{Name: CalibrationColumnReadValueLow, Type: TypeReal, Required: true},
}

// String returns the resource path of the kind
func (k Kind) String() string {
	switch k {
	case KindSensor:
		return PathSensor
	case KindTemperature:
		return PathTemperature
	case KindCalibration:
		return PathCalibration
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the declared kinds
func (k Kind) Valid() bool {
	return k >= KindSensor && k <= KindCalibration
}

// Table returns the table name of the kind
func (k Kind) Table() string {
	switch k {
	case KindSensor:
		return SensorTable
	case KindTemperature:
		return TemperatureTable
	case KindCalibration:
		return CalibrationTable
	default:
		return ""
	}
}

// Path returns the identifier path segment of the kind
func (k Kind) Path() string {
	if !k.Valid() {
		return ""
	}
	return k.String()
}

// Columns returns the ordered column list of the kind
func (k Kind) Columns() []Column {
	var cols []Column
	switch k {
	case KindSensor:
		cols = sensorColumns
	case KindTemperature:
		cols = temperatureColumns
	case KindCalibration:
		cols = calibrationColumns
	}
	out := make([]Column, len(cols))
	copy(out, cols)
	return out
}

// Column looks up a column by name
func (k Kind) Column(name string) (Column, bool) {
	for _, c := range k.Columns() {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// RequiredColumns returns the names of columns that must be supplied on insert
func (k Kind) RequiredColumns() []string {
	var names []string
	for _, c := range k.Columns() {
		if c.Required {
			names = append(names, c.Name)
		}
	}
	return names
}

// SupportsBulkInsert reports whether bulk inserts of this kind run as a
// single transaction. Only temperature readings arrive in batches.
func (k Kind) SupportsBulkInsert() bool {
	return k == KindTemperature
}

// HasSensorScope reports whether rows of this kind belong to a sensor
func (k Kind) HasSensorScope() bool {
	return k == KindTemperature || k == KindCalibration
}

// KindForPath maps an identifier path segment back to its kind
func KindForPath(path string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Path() == path {
			return k, true
		}
	}
	return 0, false
}
