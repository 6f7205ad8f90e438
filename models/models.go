package models

import (
	"fmt"
	"time"

	"github.com/jgrocha/BluetoothChat/contract"
)

// Sensor represents an installed temperature probe
type Sensor struct {
	ID          int64     `gorm:"column:_id;primaryKey;autoIncrement" json:"id"`
	Location    string    `gorm:"column:location;not null" json:"location"`
	InstallDate time.Time `gorm:"column:installdate;default:CURRENT_TIMESTAMP" json:"install_date"`
	SensorType  string    `gorm:"column:sensortype;not null" json:"sensor_type"`
	Metric      bool      `gorm:"column:metric;not null;default:true" json:"metric"`
	Calibrated  bool      `gorm:"column:calibrated;not null;default:false" json:"calibrated"`
	CalA        float64   `gorm:"column:cal_a;not null;default:0" json:"cal_a"`
	CalB        float64   `gorm:"column:cal_b;not null;default:1" json:"cal_b"`
}

// TableName customizes the table name
func (Sensor) TableName() string {
	return contract.SensorTable
}

// Apply converts a raw reading with the sensor's linear calibration
func (s Sensor) Apply(raw float64) float64 {
	return s.CalA + s.CalB*raw
}

// TemperatureReading represents one measured value
type TemperatureReading struct {
	ID         int64     `gorm:"column:_id;primaryKey;autoIncrement" json:"id"`
	SensorID   int64     `gorm:"column:sensorid;not null;index" json:"sensor_id"`
	Created    time.Time `gorm:"column:created;default:CURRENT_TIMESTAMP" json:"created"`
	Value      float64   `gorm:"column:value;not null" json:"value"`
	Metric     bool      `gorm:"column:metric;not null;default:true" json:"metric"`
	Calibrated bool      `gorm:"column:calibrated;not null;default:false" json:"calibrated"`

	Sensor Sensor `gorm:"foreignKey:SensorID;references:ID" json:"-"`
}

// TableName customizes the table name
func (TemperatureReading) TableName() string {
	return contract.TemperatureTable
}

// CalibrationEvent is the audit record of one two-point calibration.
// Storing it never changes the sensor row.
type CalibrationEvent struct {
	ID            int64     `gorm:"column:_id;primaryKey;autoIncrement" json:"id"`
	SensorID      int64     `gorm:"column:sensorid;not null;index" json:"sensor_id"`
	Created       time.Time `gorm:"column:created;default:CURRENT_TIMESTAMP" json:"created"`
	CalAOld       float64   `gorm:"column:cal_a_old;not null" json:"cal_a_old"`
	CalBOld       float64   `gorm:"column:cal_b_old;not null" json:"cal_b_old"`
	CalANew       float64   `gorm:"column:cal_a_new;not null" json:"cal_a_new"`
	CalBNew       float64   `gorm:"column:cal_b_new;not null" json:"cal_b_new"`
	RefValueHigh  float64   `gorm:"column:ref_value_high;not null" json:"ref_value_high"`
	RefValueLow   float64   `gorm:"column:ref_value_low;not null" json:"ref_value_low"`
	ReadValueHigh float64   `gorm:"column:read_value_high;not null" json:"read_value_high"`
	ReadValueLow  float64   `gorm:"column:read_value_low;not null" json:"read_value_low"`

	Sensor Sensor `gorm:"foreignKey:SensorID;references:ID" json:"-"`
}

// TableName customizes the table name
func (CalibrationEvent) TableName() string {
	return contract.CalibrationTable
}

// Coefficients returns the calibration pair the event moved the sensor to
func (c CalibrationEvent) Coefficients() (calA, calB float64) {
	return c.CalANew, c.CalBNew
}

// TwoPointCalibration solves ref = calA + calB*read for the two reference
// points.
func TwoPointCalibration(refLow, refHigh, readLow, readHigh float64) (calA, calB float64, err error) {
	if readHigh == readLow {
		return 0, 0, fmt.Errorf("read values must differ, both are %g", readLow)
	}
	calB = (refHigh - refLow) / (readHigh - readLow)
	calA = refLow - calB*readLow
	return calA, calB, nil
}

// GetAllModels returns all models for table creation, parents first
func GetAllModels() []interface{} {
	return []interface{}{
		&Sensor{},
		&TemperatureReading{},
		&CalibrationEvent{},
	}
}
