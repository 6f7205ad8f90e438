package provider

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgrocha/BluetoothChat/config"
	"github.com/jgrocha/BluetoothChat/contract"
	"github.com/jgrocha/BluetoothChat/database"
	"github.com/jgrocha/BluetoothChat/dataerr"
	"github.com/jgrocha/BluetoothChat/notify"
	"github.com/jgrocha/BluetoothChat/resource"
)

type fixture struct {
	p        *Provider
	notifier *notify.Notifier
	c        contract.Contract
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), config.DefaultDatabaseName)

	store := database.New(cfg)
	t.Cleanup(func() { _ = store.Close() })

	c := contract.New(cfg.Store.Scheme, cfg.Store.Authority)
	n := notify.New()
	return &fixture{p: New(store, n, c), notifier: n, c: c}
}

func (f *fixture) collection(k contract.Kind) resource.Identifier {
	return resource.Collection(f.c, k)
}

func (f *fixture) count(t *testing.T, k contract.Kind) func() int {
	t.Helper()
	calls := 0
	f.notifier.Subscribe(f.collection(k), func(resource.Identifier) error {
		calls++
		return nil
	})
	return func() int { return calls }
}

func (f *fixture) insertSensor(t *testing.T) int64 {
	t.Helper()
	item, err := f.p.Insert(context.Background(), f.collection(contract.KindSensor), seoulSensor())
	require.NoError(t, err)
	id, ok := resource.ParseID(item)
	require.True(t, ok)
	return id
}

func (f *fixture) rows(t *testing.T, id resource.Identifier) []database.Row {
	t.Helper()
	cur, err := f.p.Query(context.Background(), id, nil, "", nil, contract.ColumnID)
	require.NoError(t, err)
	rows, err := cur.All()
	require.NoError(t, err)
	return rows
}

func seoulSensor() database.Values {
	return database.Values{
		contract.SensorColumnLocation:    "Seoul",
		contract.SensorColumnInstallDate: "2015-10-01 10:11:12",
		contract.SensorColumnSensorType:  "PT100",
		contract.SensorColumnMetric:      1,
		contract.SensorColumnCalibrated:  0,
		contract.SensorColumnCalA:        0,
		contract.SensorColumnCalB:        1,
	}
}

func reading(sensorID int64, created string, value float64) database.Values {
	return database.Values{
		contract.TemperatureColumnSensorID: sensorID,
		contract.TemperatureColumnCreated:  created,
		contract.TemperatureColumnValue:    value,
	}
}

func TestGetType(t *testing.T) {
	f := newFixture(t)
	authority := f.c.Authority

	tests := []struct {
		id   resource.Identifier
		want string
	}{
		{f.collection(contract.KindSensor), "vnd.dir/" + authority + "/sensor"},
		{resource.Item(f.c, contract.KindSensor, 5), "vnd.item/" + authority + "/sensor"},
		{resource.Item(f.c, contract.KindSensor, 6), "vnd.item/" + authority + "/sensor"},
		{f.collection(contract.KindTemperature), "vnd.dir/" + authority + "/temperature"},
		{resource.ForSensorOnDate(f.c, contract.KindTemperature, 1, "2015-10-01"), "vnd.dir/" + authority + "/temperature"},
		{resource.ForSensor(f.c, contract.KindCalibration, 1), "vnd.dir/" + authority + "/calibration"},
		{resource.Item(f.c, contract.KindTemperature, 1), "vnd.item/" + authority + "/temperature"},
		{resource.Item(f.c, contract.KindCalibration, 1), "vnd.item/" + authority + "/calibration"},
	}

	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			got, err := f.p.GetType(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnknownResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := resource.MustParse("content://" + f.c.Authority + "/givemeroot")

	calls := 0
	f.notifier.Subscribe(resource.Base(f.c), func(resource.Identifier) error { calls++; return nil }, notify.WithDescendants())

	_, err := f.p.ResolveKind(root)
	assert.True(t, dataerr.IsUnknownResource(err))
	_, err = f.p.GetType(root)
	assert.True(t, dataerr.IsUnknownResource(err))
	_, err = f.p.Query(ctx, root, nil, "", nil, "")
	assert.True(t, dataerr.IsUnknownResource(err))
	_, err = f.p.Insert(ctx, root, seoulSensor())
	assert.True(t, dataerr.IsUnknownResource(err))
	_, err = f.p.BulkInsert(ctx, root, []database.Values{seoulSensor()})
	assert.True(t, dataerr.IsUnknownResource(err))
	_, err = f.p.Update(ctx, root, database.Values{contract.SensorColumnCalA: 1}, "", nil)
	assert.True(t, dataerr.IsUnknownResource(err))
	_, err = f.p.Delete(ctx, root, "", nil)
	assert.True(t, dataerr.IsUnknownResource(err))

	assert.Zero(t, calls)
}

func TestInsertAndQuery_Seoul(t *testing.T) {
	f := newFixture(t)
	id := f.insertSensor(t)
	assert.Positive(t, id)

	rows := f.rows(t, f.collection(contract.KindSensor))
	require.Len(t, rows, 1)
	for col, v := range seoulSensor() {
		assert.Equal(t, cast.ToString(v), rows[0].String(col), col)
	}

	item := f.rows(t, resource.Item(f.c, contract.KindSensor, id))
	require.Len(t, item, 1)
	assert.Empty(t, f.rows(t, resource.Item(f.c, contract.KindSensor, id+1)))
}

func TestInsert_NotifiesCollectionOnce(t *testing.T) {
	f := newFixture(t)
	sensorID := f.insertSensor(t)

	events := make(chan resource.Identifier, 4)
	f.notifier.Subscribe(f.collection(contract.KindTemperature), func(id resource.Identifier) error {
		events <- id
		return nil
	})

	item, err := f.p.Insert(context.Background(), f.collection(contract.KindTemperature), reading(sensorID, "2015-10-01 08:00:00", 40.123))
	require.NoError(t, err)
	assert.Equal(t, resource.Collection(f.c, contract.KindTemperature), item.Collection())

	rowID, ok := resource.ParseID(item)
	require.True(t, ok)
	rows := f.rows(t, item)
	require.Len(t, rows, 1)
	got, err := rows[0].Int64(contract.ColumnID)
	require.NoError(t, err)
	assert.Equal(t, rowID, got)

	// delivered synchronously, before Insert returned
	require.Len(t, events, 1)
	published := <-events
	assert.True(t, published.Equal(f.collection(contract.KindTemperature)))
}

func calibrationEvent() database.Values {
	return database.Values{
		contract.CalibrationColumnCalAOld:       0,
		contract.CalibrationColumnCalBOld:       1,
		contract.CalibrationColumnCalANew:       0.5,
		contract.CalibrationColumnCalBNew:       1.01,
		contract.CalibrationColumnRefValueHigh:  100,
		contract.CalibrationColumnRefValueLow:   0,
		contract.CalibrationColumnReadValueHigh: 99,
		contract.CalibrationColumnReadValueLow:  1,
	}
}

// requireSingleRow asserts that id addresses exactly the row it was issued for
func (f *fixture) requireSingleRow(t *testing.T, id resource.Identifier) {
	t.Helper()
	want, ok := resource.ParseID(id)
	require.True(t, ok, id.String())

	rows := f.rows(t, id)
	require.Len(t, rows, 1, id.String())
	got, err := rows[0].Int64(contract.ColumnID)
	require.NoError(t, err)
	assert.Equal(t, want, got, id.String())
}

func TestInsert_ReturnedIdentifierAddressesInsertedRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sensor, err := f.p.Insert(ctx, f.collection(contract.KindSensor), seoulSensor())
	require.NoError(t, err)
	f.requireSingleRow(t, sensor)
	sensorID, _ := resource.ParseID(sensor)

	// reading ids start at the sensor id, so a reading handle read as
	// temperature/<id> would address every reading of the sensor
	var readings []resource.Identifier
	for i, created := range []string{"2015-10-01 08:00:00", "2015-10-01 09:00:00", "2015-10-02 08:00:00"} {
		id, err := f.p.Insert(ctx, resource.ForSensor(f.c, contract.KindTemperature, sensorID),
			database.Values{contract.TemperatureColumnCreated: created, contract.TemperatureColumnValue: float64(20 + i)})
		require.NoError(t, err)
		f.requireSingleRow(t, id)
		readings = append(readings, id)
	}

	var events []resource.Identifier
	for i := 0; i < 2; i++ {
		id, err := f.p.Insert(ctx, f.collection(contract.KindCalibration),
			withValue(calibrationEvent(), contract.CalibrationColumnSensorID, sensorID))
		require.NoError(t, err)
		f.requireSingleRow(t, id)
		events = append(events, id)
	}

	n, err := f.p.Delete(ctx, readings[0], "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, f.rows(t, f.collection(contract.KindTemperature)), 2)
	assert.Empty(t, f.rows(t, readings[0]))

	n, err = f.p.Update(ctx, events[1], database.Values{contract.CalibrationColumnCalANew: 0.75}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	rows := f.rows(t, events[0])
	require.Len(t, rows, 1)
	calA, err := rows[0].Float64(contract.CalibrationColumnCalANew)
	require.NoError(t, err)
	assert.Equal(t, 0.5, calA)

	_, err = f.p.Insert(ctx, readings[1], database.Values{contract.TemperatureColumnValue: 1.0})
	require.Error(t, err)
	assert.True(t, dataerr.IsUnknownResource(err))
}

func withValue(values database.Values, column string, v interface{}) database.Values {
	values[column] = v
	return values
}

func TestInsert_DanglingSensorDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	notified := f.count(t, contract.KindTemperature)

	_, err := f.p.Insert(context.Background(), f.collection(contract.KindTemperature), reading(12345, "2015-10-01 08:00:00", 1))
	require.Error(t, err)
	assert.True(t, dataerr.IsConstraintViolation(err))
	assert.Zero(t, notified())
}

func TestInsert_ThroughSensorScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sensorID := f.insertSensor(t)

	_, err := f.p.Insert(ctx, resource.ForSensor(f.c, contract.KindTemperature, sensorID),
		database.Values{contract.TemperatureColumnValue: 19.5})
	require.NoError(t, err)

	rows := f.rows(t, f.collection(contract.KindTemperature))
	require.Len(t, rows, 1)
	assert.Equal(t, cast.ToString(sensorID), rows[0].String(contract.TemperatureColumnSensorID))

	_, err = f.p.Insert(ctx, resource.ForSensor(f.c, contract.KindTemperature, sensorID),
		reading(sensorID+1, "2015-10-01 08:00:00", 1))
	assert.True(t, dataerr.IsConstraintViolation(err))

	_, err = f.p.Insert(ctx, resource.Item(f.c, contract.KindSensor, sensorID), seoulSensor())
	assert.True(t, dataerr.IsUnknownResource(err))
}

func TestDelete_ZeroRowsDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notified := f.count(t, contract.KindSensor)

	n, err := f.p.Delete(ctx, f.collection(contract.KindSensor), "", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, notified())

	f.insertSensor(t)
	f.insertSensor(t)
	assert.Equal(t, 2, notified())

	n, err = f.p.Delete(ctx, f.collection(contract.KindSensor), "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 3, notified())
	assert.Empty(t, f.rows(t, f.collection(contract.KindSensor)))
}

func TestDelete_SensorWithReadingsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sensorID := f.insertSensor(t)
	_, err := f.p.Insert(ctx, f.collection(contract.KindTemperature), reading(sensorID, "2015-10-01 08:00:00", 1))
	require.NoError(t, err)

	_, err = f.p.Delete(ctx, resource.Item(f.c, contract.KindSensor, sensorID), "", nil)
	require.Error(t, err)
	assert.True(t, dataerr.IsConstraintViolation(err))
}

func TestUpdate_NotifiesOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sensorID := f.insertSensor(t)
	notified := f.count(t, contract.KindSensor)

	values := database.Values{contract.SensorColumnCalA: 0.5, contract.SensorColumnCalB: 1.01}
	n, err := f.p.Update(ctx, resource.Item(f.c, contract.KindSensor, sensorID+10), values, "", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, notified())

	n, err = f.p.Update(ctx, resource.Item(f.c, contract.KindSensor, sensorID), values, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, notified())

	rows := f.rows(t, resource.Item(f.c, contract.KindSensor, sensorID))
	require.Len(t, rows, 1)
	assert.Equal(t, "0.5", rows[0].String(contract.SensorColumnCalA))
	assert.Equal(t, "1.01", rows[0].String(contract.SensorColumnCalB))
}

func TestQuery_ScopedBySensorAndDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.insertSensor(t)
	second := f.insertSensor(t)

	batch := []database.Values{
		reading(first, "2015-10-01 08:00:00", 10),
		reading(first, "2015-10-01 23:59:59", 11),
		reading(first, "2015-10-02 00:00:00", 12),
		reading(second, "2015-10-01 09:00:00", 20),
	}
	n, err := f.p.BulkInsert(ctx, f.collection(contract.KindTemperature), batch)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	assert.Len(t, f.rows(t, resource.ForSensor(f.c, contract.KindTemperature, first)), 3)
	assert.Len(t, f.rows(t, resource.ForSensor(f.c, contract.KindTemperature, second)), 1)

	byPath := f.rows(t, resource.ForSensorOnDate(f.c, contract.KindTemperature, first, "2015-10-01"))
	byParam := f.rows(t, resource.ForSensorWithDateParameter(f.c, contract.KindTemperature, first, "2015-10-01"))
	require.Len(t, byPath, 2)
	assert.Equal(t, byPath, byParam)

	// caller filters are combined with the scope
	cur, err := f.p.Query(ctx, resource.ForSensor(f.c, contract.KindTemperature, first), nil,
		contract.TemperatureColumnValue+" > ?", []interface{}{10.5}, "")
	require.NoError(t, err)
	rows, err := cur.All()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestBulkInsert_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	sensorID := f.insertSensor(t)
	notified := f.count(t, contract.KindTemperature)

	var batch []database.Values
	for i := 0; i < 5; i++ {
		batch = append(batch, reading(sensorID, "2015-10-01 08:00:00", float64(i)))
	}
	batch = append(batch, reading(sensorID+99, "2015-10-01 08:00:00", 99))

	n, err := f.p.BulkInsert(context.Background(), f.collection(contract.KindTemperature), batch)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.True(t, dataerr.IsInsertFailed(err))
	assert.Zero(t, notified())
	assert.Empty(t, f.rows(t, f.collection(contract.KindTemperature)))
}

func TestCalibrationScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sensorID := f.insertSensor(t)

	event := database.Values{
		contract.CalibrationColumnCalAOld:       0,
		contract.CalibrationColumnCalBOld:       1,
		contract.CalibrationColumnCalANew:       0.12345,
		contract.CalibrationColumnCalBNew:       0.999991,
		contract.CalibrationColumnRefValueHigh:  250,
		contract.CalibrationColumnRefValueLow:   10.1,
		contract.CalibrationColumnReadValueHigh: 250.123,
		contract.CalibrationColumnReadValueLow:  10.234,
	}
	_, err := f.p.Insert(ctx, resource.ForSensor(f.c, contract.KindCalibration, sensorID), event)
	require.NoError(t, err)

	assert.Len(t, f.rows(t, resource.ForSensor(f.c, contract.KindCalibration, sensorID)), 1)
	assert.Empty(t, f.rows(t, resource.ForSensor(f.c, contract.KindCalibration, sensorID+1)))

	kind, err := f.p.ResolveKind(resource.ForSensor(f.c, contract.KindCalibration, sensorID))
	require.NoError(t, err)
	assert.Equal(t, contract.KindCalibration, kind)
}

func TestScoped(t *testing.T) {
	where, args := scoped(resource.SensorCollection{}, "location = ?", []interface{}{"Seoul"})
	assert.Equal(t, "location = ?", where)
	assert.Equal(t, []interface{}{"Seoul"}, args)

	where, args = scoped(resource.SensorItem{ID: 2}, "", nil)
	assert.Equal(t, "_id = ?", where)
	assert.Equal(t, []interface{}{int64(2)}, args)

	where, args = scoped(resource.TemperatureForSensor{SensorID: 2}, "value > ?", []interface{}{1.5})
	assert.Equal(t, "(sensorid = ?) AND (value > ?)", where)
	assert.Equal(t, []interface{}{int64(2), 1.5}, args)
}
