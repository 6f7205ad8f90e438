package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/jgrocha/BluetoothChat/config"
	"github.com/jgrocha/BluetoothChat/contract"
	"github.com/jgrocha/BluetoothChat/database"
	"github.com/jgrocha/BluetoothChat/logger"
	"github.com/jgrocha/BluetoothChat/models"
	"github.com/jgrocha/BluetoothChat/notify"
	"github.com/jgrocha/BluetoothChat/provider"
	"github.com/jgrocha/BluetoothChat/resource"
	"github.com/jgrocha/BluetoothChat/scanner"
)

// annotation marking commands that write to the log file
const annotationLogging = "logging"

// app holds what every command needs once configuration is loaded
type app struct {
	configPath string

	cfg      *config.Config
	store    *database.Store
	notifier *notify.Notifier
	provider *provider.Provider
}

// execute runs the command line in args and releases the store and log
// file whether or not the command succeeded
func execute(args []string, out io.Writer) error {
	a := &app{}
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(out)
	err := cmd.Execute()
	if err != nil {
		logger.Errorf("%v", err)
	}
	return errors.Join(err, a.teardown())
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bluetoothchat",
		Short:         "Sensor telemetry store - Database Management Tool",
		Long:          "Manage the sensor, temperature and calibration store and import readings from CSV files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			if cmd.Annotations[annotationLogging] == "true" {
				if err := logger.Init(a.cfg); err != nil {
					return fmt.Errorf("failed to initialize logging: %w", err)
				}
				logger.LogCommand(cmd.CommandPath(), os.Args)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config.yaml (defaults to ./config.yaml, or a local sqlite store if absent)")

	cmd.AddCommand(
		newConnectCommand(a),
		newDBInfoCommand(a),
		newDBUpgradeCommand(a),
		newScanCommand(a),
		newTestInsertCommand(a),
		newQueryCommand(a),
		newCalibrateCommand(a),
	)

	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.store = database.New(cfg)
	a.notifier = notify.New()
	a.provider = provider.New(a.store, a.notifier, contract.New(cfg.Store.Scheme, cfg.Store.Authority))
	return nil
}

func (a *app) teardown() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, logger.Close())
	return errors.Join(errs...)
}

// loadConfig reads the config file; without an explicit path a missing
// config.yaml falls back to the default sqlite store
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func withLogging(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationLogging] = "true"
	return cmd
}

func newConnectCommand(a *app) *cobra.Command {
	return withLogging(&cobra.Command{
		Use:   "connect",
		Short: "Test database connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Println("Testing database connection...")

			info, err := a.store.Info(cmd.Context())
			if err != nil {
				logger.LogResult("connect", false, err.Error())
				return fmt.Errorf("connection failed: %w", err)
			}

			logger.LogResult("connect", true, a.cfg.Database.Driver)
			infoJSON, _ := json.MarshalIndent(info, "", "  ")
			logger.Printf("Connection info: %s", infoJSON)
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully connected to %s database\n", a.store.Dialect())
			fmt.Fprintf(cmd.OutOrStdout(), "Log file: %s\n", logger.GetLogFileName())
			return nil
		},
	})
}

func newDBInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "db:info",
		Short: "Show database information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.store.Info(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			printInfo(cmd.OutOrStdout(), a.cfg, info)
			return nil
		},
	}
}

func printInfo(w io.Writer, cfg *config.Config, info map[string]interface{}) {
	fmt.Fprintln(w, "Database Information:")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Database Type:     %v\n", info["driver"])
	fmt.Fprintf(w, "Connection Status: %v\n", connectionStatusText(info["connected"]))
	fmt.Fprintf(w, "Schema Version:    %v\n", info["schema_version"])

	switch cfg.Database.Driver {
	case "mysql", "postgres":
		fmt.Fprintf(w, "Host:              %v\n", info["host"])
		fmt.Fprintf(w, "Port:              %v\n", info["port"])
		fmt.Fprintf(w, "Database:          %v\n", info["database"])
	case "sqlite":
		fmt.Fprintf(w, "File Path:         %v\n", info["path"])
	}

	fmt.Fprintln(w, "\nConnection Pool:")
	fmt.Fprintf(w, "  Max Connections: %v\n", info["max_open_connections"])
	fmt.Fprintf(w, "  Open Connections:%v\n", info["open_connections"])
	fmt.Fprintf(w, "  In Use:          %v\n", info["in_use"])
	fmt.Fprintf(w, "  Idle:            %v\n", info["idle"])

	fmt.Fprintln(w, "\nData Information:")
	for _, k := range contract.Kinds {
		fmt.Fprintf(w, "  %-16s %v\n", k.Table()+":", info[k.Table()+"_rows"])
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
}

func connectionStatusText(connected interface{}) string {
	if conn, ok := connected.(bool); ok && conn {
		return "Connected"
	}
	return "Disconnected"
}

func newDBUpgradeCommand(a *app) *cobra.Command {
	var confirmed bool

	cmd := withLogging(&cobra.Command{
		Use:   "db:upgrade",
		Short: "Drop and recreate every table at the configured schema version (destroys all data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("db:upgrade discards every sensor, reading and calibration; rerun with --yes to proceed")
			}
			ctx := cmd.Context()
			from, err := a.store.Version(ctx)
			if err != nil {
				return err
			}
			to := a.cfg.Store.SchemaVersion
			if err := a.store.Upgrade(ctx, from, to); err != nil {
				logger.LogResult("db:upgrade", false, err.Error())
				return err
			}
			logger.LogResult("db:upgrade", true, fmt.Sprintf("version %d -> %d", from, to))
			fmt.Fprintf(cmd.OutOrStdout(), "Schema recreated at version %d\n", to)
			return nil
		},
	})
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm that all data will be lost")
	return cmd
}

func newScanCommand(a *app) *cobra.Command {
	var workers, batch int

	cmd := withLogging(&cobra.Command{
		Use:   "scan <directory>",
		Short: "Scan directory for CSV files and import temperature readings (non-recursive)",
		Long: "Import CSV files with columns timestamp,sensor_id,value[,metric,calibrated].\n" +
			"Timestamps are ISO8601 (e.g. 2015-10-01T10:11:12Z) or 2006-01-02 15:04:05.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			csvScanner := scanner.NewCSVScanner(a.provider)
			csvScanner.SetWorkerCount(workers)
			csvScanner.SetBatchSize(batch)

			if _, err := csvScanner.ScanDirectory(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			logger.Println("Directory scan completed successfully")
			return nil
		},
	})
	cmd.Flags().IntVar(&workers, "workers", 0, "number of files imported in parallel (default: CPU count, at most 8)")
	cmd.Flags().IntVar(&batch, "batch", 0, "readings per atomic bulk insert (default 1000)")
	return cmd
}

func newTestInsertCommand(a *app) *cobra.Command {
	return withLogging(&cobra.Command{
		Use:   "test:insert",
		Short: "Insert a sample sensor with a reading and a calibration event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return testInsert(cmd.Context(), a, cmd.OutOrStdout())
		},
	})
}

func testInsert(ctx context.Context, a *app, w io.Writer) error {
	logger.Println("Inserting sample data...")
	c := a.provider.Contract()

	for _, k := range contract.Kinds {
		k := k
		sub := a.notifier.Subscribe(resource.Collection(c, k), func(id resource.Identifier) error {
			logger.Printf("Change published on %s", id)
			return nil
		})
		defer sub.Cancel()
	}

	sensor, err := a.provider.Insert(ctx, resource.Collection(c, contract.KindSensor), database.Values{
		contract.SensorColumnLocation:    "Seoul",
		contract.SensorColumnInstallDate: "2015-10-01 10:11:12",
		contract.SensorColumnSensorType:  "PT100",
		contract.SensorColumnMetric:      1,
		contract.SensorColumnCalibrated:  0,
		contract.SensorColumnCalA:        0,
		contract.SensorColumnCalB:        1,
	})
	if err != nil {
		return fmt.Errorf("failed to insert sensor: %w", err)
	}
	sensorID, _ := resource.ParseID(sensor)
	logger.Printf("Inserted sensor: %s", sensor)

	reading, err := a.provider.Insert(ctx, resource.ForSensor(c, contract.KindTemperature, sensorID), database.Values{
		contract.TemperatureColumnValue: 40.123,
	})
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	logger.Printf("Inserted reading: %s", reading)

	event, err := a.provider.Insert(ctx, resource.ForSensor(c, contract.KindCalibration, sensorID), database.Values{
		contract.CalibrationColumnCalAOld:       0,
		contract.CalibrationColumnCalBOld:       1,
		contract.CalibrationColumnCalANew:       0.12345,
		contract.CalibrationColumnCalBNew:       0.999991,
		contract.CalibrationColumnRefValueHigh:  250,
		contract.CalibrationColumnRefValueLow:   10.1,
		contract.CalibrationColumnReadValueHigh: 250.123,
		contract.CalibrationColumnReadValueLow:  10.234,
	})
	if err != nil {
		return fmt.Errorf("failed to insert calibration: %w", err)
	}
	logger.Printf("Inserted calibration: %s", event)

	for _, id := range []resource.Identifier{sensor, resource.ForSensor(c, contract.KindTemperature, sensorID), resource.ForSensor(c, contract.KindCalibration, sensorID)} {
		if err := printQuery(ctx, a, w, id, nil, "", nil, contract.ColumnID); err != nil {
			return err
		}
	}
	return nil
}

func newQueryCommand(a *app) *cobra.Command {
	var (
		columns   []string
		where     string
		whereArgs []string
		sortOrder string
	)

	cmd := &cobra.Command{
		Use:   "query <identifier>",
		Short: "Print the rows addressed by a resource identifier",
		Example: "  bluetoothchat query content://com.example.android.bluetoothchat/temperature/1/2015-10-01\n" +
			"  bluetoothchat query content://com.example.android.bluetoothchat/sensor --where 'location = ?' --arg Seoul",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resource.Parse(args[0])
			if err != nil {
				return err
			}
			filterArgs := make([]interface{}, len(whereArgs))
			for i, v := range whereArgs {
				filterArgs[i] = v
			}
			return printQuery(cmd.Context(), a, cmd.OutOrStdout(), id, columns, where, filterArgs, sortOrder)
		},
	}
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to select (default: all)")
	cmd.Flags().StringVar(&where, "where", "", "filter expression with ? placeholders")
	cmd.Flags().StringArrayVar(&whereArgs, "arg", nil, "positional filter argument (repeatable)")
	cmd.Flags().StringVar(&sortOrder, "sort", contract.ColumnID, "sort expression")
	return cmd
}

func printQuery(ctx context.Context, a *app, w io.Writer, id resource.Identifier, columns []string, where string, args []interface{}, sortOrder string) error {
	mime, err := a.provider.GetType(id)
	if err != nil {
		return err
	}
	cur, err := a.provider.Query(ctx, id, columns, where, args, sortOrder)
	if err != nil {
		return err
	}
	defer cur.Close()

	cols := cur.Columns()
	fmt.Fprintf(w, "%s (%s)\n", id, mime)
	fmt.Fprintln(w, strings.Join(cols, "\t"))

	n := 0
	for cur.Next() {
		row, err := cur.Row()
		if err != nil {
			return err
		}
		values := make([]string, len(cols))
		for i, col := range cols {
			values[i] = row.String(col)
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
		n++
	}
	if err := cur.Err(); err != nil {
		return err
	}
	fmt.Fprintf(w, "(%d rows)\n", n)
	return nil
}

func newCalibrateCommand(a *app) *cobra.Command {
	return withLogging(&cobra.Command{
		Use:   "calibrate <sensorId> <refLow> <refHigh> <readLow> <readHigh>",
		Short: "Record a two-point calibration and apply the new coefficients to the sensor",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			sensorID, err := cast.ToInt64E(args[0])
			if err != nil {
				return fmt.Errorf("invalid sensor id %q: %w", args[0], err)
			}
			points := make([]float64, 4)
			for i, s := range args[1:] {
				if points[i], err = cast.ToFloat64E(s); err != nil {
					return fmt.Errorf("invalid value %q: %w", s, err)
				}
			}
			return calibrate(cmd.Context(), a, cmd.OutOrStdout(), sensorID, points[0], points[1], points[2], points[3])
		},
	})
}

// calibrate records the calibration event first and then updates the
// sensor; the two writes are not atomic
func calibrate(ctx context.Context, a *app, w io.Writer, sensorID int64, refLow, refHigh, readLow, readHigh float64) error {
	c := a.provider.Contract()
	item := resource.Item(c, contract.KindSensor, sensorID)

	cur, err := a.provider.Query(ctx, item, nil, "", nil, "")
	if err != nil {
		return err
	}
	var sensor models.Sensor
	found := cur.Next()
	if found {
		err = cur.Scan(&sensor)
	}
	cur.Close()
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("sensor %d not found", sensorID)
	}

	calA, calB, err := models.TwoPointCalibration(refLow, refHigh, readLow, readHigh)
	if err != nil {
		return err
	}

	if _, err := a.provider.Insert(ctx, resource.ForSensor(c, contract.KindCalibration, sensorID), database.Values{
		contract.CalibrationColumnCalAOld:       sensor.CalA,
		contract.CalibrationColumnCalBOld:       sensor.CalB,
		contract.CalibrationColumnCalANew:       calA,
		contract.CalibrationColumnCalBNew:       calB,
		contract.CalibrationColumnRefValueHigh:  refHigh,
		contract.CalibrationColumnRefValueLow:   refLow,
		contract.CalibrationColumnReadValueHigh: readHigh,
		contract.CalibrationColumnReadValueLow:  readLow,
	}); err != nil {
		return fmt.Errorf("failed to record calibration: %w", err)
	}

	if _, err := a.provider.Update(ctx, item, database.Values{
		contract.SensorColumnCalA:       calA,
		contract.SensorColumnCalB:       calB,
		contract.SensorColumnCalibrated: true,
	}, "", nil); err != nil {
		return fmt.Errorf("failed to update sensor: %w", err)
	}

	logger.LogResult("calibrate", true, fmt.Sprintf("sensor %d: cal_a %g -> %g, cal_b %g -> %g", sensorID, sensor.CalA, calA, sensor.CalB, calB))
	fmt.Fprintf(w, "Sensor %d calibrated: value = %g + %g * raw\n", sensorID, calA, calB)
	return nil
}
