package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgrocha/BluetoothChat/contract"
)

var testContract = contract.New("content", "com.example.android.bluetoothchat")

func TestParse(t *testing.T) {
	id, err := Parse("content://com.example.android.bluetoothchat/temperature/3/2015-10-01?created=2015-10-02")
	require.NoError(t, err)
	assert.Equal(t, "content", id.Scheme)
	assert.Equal(t, "com.example.android.bluetoothchat", id.Authority)
	assert.Equal(t, []string{"temperature", "3", "2015-10-01"}, id.Segments)
	assert.Equal(t, "2015-10-02", id.Query.Get(ParamCreated))

	_, err = Parse("temperature/3")
	assert.Error(t, err)
	_, err = Parse("://nothing")
	assert.Error(t, err)
}

func TestString_RoundTrip(t *testing.T) {
	raw := "content://com.example.android.bluetoothchat/sensor/12"
	id := MustParse(raw)
	assert.Equal(t, raw, id.String())
	assert.True(t, id.Equal(Item(testContract, contract.KindSensor, 12)))
}

func TestBuilders(t *testing.T) {
	assert.Equal(t, "content://com.example.android.bluetoothchat", Base(testContract).String())
	assert.Equal(t, "content://com.example.android.bluetoothchat/calibration",
		Collection(testContract, contract.KindCalibration).String())
	assert.Equal(t, "content://com.example.android.bluetoothchat/temperature/4/2015-10-01",
		ForSensorOnDate(testContract, contract.KindTemperature, 4, "2015-10-01").String())
	assert.Equal(t, "content://com.example.android.bluetoothchat/temperature/4?created=2015-10-01",
		ForSensorWithDateParameter(testContract, contract.KindTemperature, 4, "2015-10-01").String())
}

func TestBuildersAndExtractorsAreInverse(t *testing.T) {
	tests := []struct {
		name string
		id   Identifier
		date func(Identifier) (string, bool)
	}{
		{"path date", ForSensorOnDate(testContract, contract.KindTemperature, 42, "2016-02-29"), Date},
		{"query date", ForSensorWithDateParameter(testContract, contract.KindTemperature, 42, "2016-02-29"), DateParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reparsed, err := Parse(tt.id.String())
			require.NoError(t, err)

			sensorID, ok := SensorID(reparsed)
			require.True(t, ok)
			assert.Equal(t, int64(42), sensorID)

			date, ok := tt.date(reparsed)
			require.True(t, ok)
			assert.Equal(t, "2016-02-29", date)
		})
	}
}

func TestExtractors_MissingSegments(t *testing.T) {
	coll := Collection(testContract, contract.KindTemperature)

	_, ok := SensorID(coll)
	assert.False(t, ok)
	_, ok = Date(coll)
	assert.False(t, ok)
	_, ok = DateParameter(coll)
	assert.False(t, ok)
	_, ok = ParseID(coll)
	assert.False(t, ok)
	_, ok = ParseID(Base(testContract))
	assert.False(t, ok)

	_, ok = SensorID(Collection(testContract, contract.KindSensor).AppendPath("abc"))
	assert.False(t, ok)

	id, ok := ParseID(Item(testContract, contract.KindSensor, 9))
	require.True(t, ok)
	assert.Equal(t, int64(9), id)
}

func TestWithQueryParameter_DoesNotMutate(t *testing.T) {
	orig := ForSensor(testContract, contract.KindTemperature, 1)
	withDate := orig.WithQueryParameter(ParamCreated, "2015-10-01")

	assert.Nil(t, orig.Query)
	assert.Equal(t, "2015-10-01", withDate.Query.Get(ParamCreated))
}

func TestCollectionAndAncestry(t *testing.T) {
	coll := Collection(testContract, contract.KindTemperature)
	scoped := ForSensorOnDate(testContract, contract.KindTemperature, 1, "2015-10-01")

	assert.True(t, scoped.Collection().Equal(coll))
	assert.True(t, coll.IsAncestorOf(scoped))
	assert.True(t, Base(testContract).IsAncestorOf(coll))
	assert.False(t, scoped.IsAncestorOf(coll))
	assert.False(t, coll.IsAncestorOf(coll))
	assert.False(t, Collection(testContract, contract.KindSensor).IsAncestorOf(scoped))

	assert.True(t, coll.SamePath(coll.WithQueryParameter(ParamCreated, "2015-10-01")))
	assert.False(t, coll.SamePath(scoped))
}
