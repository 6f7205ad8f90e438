package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgrocha/BluetoothChat/config"
	"github.com/jgrocha/BluetoothChat/contract"
	"github.com/jgrocha/BluetoothChat/database"
	"github.com/jgrocha/BluetoothChat/resource"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "temperature.db")
	body := fmt.Sprintf(`database:
  driver: sqlite
  sqlite:
    path: %q
logging:
  log_file: %q
`, dbPath, filepath.Join(dir, "result.log"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(args, &out)
	return out.String(), err
}

func TestLoadConfig_FallsBackToDefault(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := loadConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultDatabaseName, cfg.Database.SQLite.Path)

	_, err = loadConfig(missing, true)
	assert.Error(t, err)
}

func TestCommands_InsertQueryCalibrate(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	out, err := run(t, "--config", cfgPath, "test:insert")
	require.NoError(t, err)
	assert.Contains(t, out, "Seoul")
	assert.Contains(t, out, "vnd.item/com.example.android.bluetoothchat/sensor")

	base := "content://com.example.android.bluetoothchat"
	out, err = run(t, "--config", cfgPath, "query", base+"/sensor", "--where", "location = ?", "--arg", "Seoul", "--columns", "_id,location")
	require.NoError(t, err)
	assert.Contains(t, out, "_id\tlocation")
	assert.Contains(t, out, "1\tSeoul")
	assert.Contains(t, out, "(1 rows)")

	_, err = run(t, "--config", cfgPath, "query", base+"/givemeroot")
	assert.Error(t, err)

	out, err = run(t, "--config", cfgPath, "calibrate", "1", "0", "100", "1", "99")
	require.NoError(t, err)
	assert.Contains(t, out, "Sensor 1 calibrated")

	_, err = run(t, "--config", cfgPath, "calibrate", "42", "0", "100", "1", "99")
	assert.Error(t, err)
	_, err = run(t, "--config", cfgPath, "calibrate", "1", "0", "100", "5", "5")
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Database.SQLite.Path = dbPath
	store := database.New(cfg)
	defer store.Close()

	cur, err := store.Query(context.Background(), contract.KindSensor, nil, "_id = ?", []interface{}{1}, "")
	require.NoError(t, err)
	rows, err := cur.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	calibrated, err := rows[0].Bool(contract.SensorColumnCalibrated)
	require.NoError(t, err)
	assert.True(t, calibrated)
	calB, err := rows[0].Float64(contract.SensorColumnCalB)
	require.NoError(t, err)
	assert.InDelta(t, 100.0/98.0, calB, 1e-9)

	cur, err = store.Query(context.Background(), contract.KindCalibration, nil, "sensorid = ?", []interface{}{1}, "")
	require.NoError(t, err)
	events, err := cur.All()
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestCommands_Connect(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := run(t, "--config", cfgPath, "connect")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully connected to sqlite database")
	assert.Contains(t, out, "Log file: "+filepath.Join(filepath.Dir(cfgPath), "result.log"))
}

func TestCommands_InfoAndUpgrade(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := run(t, "--config", cfgPath, "test:insert")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "db:info")
	require.NoError(t, err)
	assert.Contains(t, out, "Connected")
	assert.Contains(t, out, "sensor:")

	_, err = run(t, "--config", cfgPath, "db:upgrade")
	assert.Error(t, err)

	out, err = run(t, "--config", cfgPath, "db:upgrade", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema recreated at version 1")

	out, err = run(t, "--config", cfgPath, "query", "content://com.example.android.bluetoothchat/sensor")
	require.NoError(t, err)
	assert.Contains(t, out, "(0 rows)")
}

func TestCommands_Scan(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	_, err := run(t, "--config", cfgPath, "test:insert")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readings.csv"), []byte(
		"timestamp,sensor_id,value\n2015-12-31T23:59:59Z,1,3.5\n2016-01-01T00:00:00Z,1,3.25\n"), 0o644))

	_, err = run(t, "--config", cfgPath, "scan", dir, "--workers", "1")
	require.NoError(t, err)

	id := resource.ForSensorOnDate(contract.New(config.DefaultScheme, config.DefaultAuthority), contract.KindTemperature, 1, "2015-12-31")
	out, err := run(t, "--config", cfgPath, "query", id.String())
	require.NoError(t, err)
	assert.Contains(t, out, "(1 rows)")
	assert.Contains(t, out, "3.5")
}
