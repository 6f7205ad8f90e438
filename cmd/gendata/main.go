// Command gendata writes mock temperature CSV files that the scan command
// can import.
package main

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// reading is one line of a generated file
type reading struct {
	Timestamp time.Time
	SensorID  int64
	Value     float64
}

// profile describes how a sensor's readings are shaped
type profile struct {
	filename string
	sensorID int64
	interval time.Duration
	perDay   int
	base     float64
	swing    float64
	noise    float64
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		sensors int
		days    int
		seed    int64
	)

	cmd := &cobra.Command{
		Use:          "gendata <output_directory>",
		Short:        "Generate mock temperature readings as CSV files",
		Example:      "  gendata test_data --sensors 4 --days 30",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputDir := args[0]
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -days)
			return generate(cmd, outputDir, profiles(sensors), start, days, seed)
		},
	}
	cmd.Flags().IntVar(&sensors, "sensors", 4, "number of sensors; ids run from 1")
	cmd.Flags().IntVar(&days, "days", 30, "days of readings per sensor")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: current time)")
	return cmd
}

// profiles alternates indoor probes sampled every 5 minutes with outdoor
// probes sampled hourly
func profiles(n int) []profile {
	out := make([]profile, 0, n)
	for i := 0; i < n; i++ {
		id := int64(i + 1)
		p := profile{
			filename: fmt.Sprintf("temperature_sensor_%02d.csv", id),
			sensorID: id,
			interval: 5 * time.Minute,
			perDay:   288,
			base:     20.0 + float64(i)*0.5,
			swing:    2.0,
			noise:    0.5,
		}
		if i%2 == 1 {
			p.interval = time.Hour
			p.perDay = 24
			p.base = 12.0
			p.swing = 8.0
			p.noise = 1.0
		}
		out = append(out, p)
	}
	return out
}

func generate(cmd *cobra.Command, outputDir string, profiles []profile, start time.Time, days int, seed int64) error {
	var g errgroup.Group
	for i, p := range profiles {
		i, p := i, p
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed + int64(i)))
			data := p.readings(rng, start, days)
			if err := writeCSV(filepath.Join(outputDir, p.filename), data); err != nil {
				return fmt.Errorf("failed to write %s: %w", p.filename, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s with %d records\n", p.filename, len(data))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All mocked data generated.")
	return nil
}

// readings simulates a daily cycle peaking mid afternoon plus noise
func (p profile) readings(rng *rand.Rand, start time.Time, days int) []reading {
	readings := make([]reading, 0, days*p.perDay)
	for day := 0; day < days; day++ {
		dayStart := start.AddDate(0, 0, day)
		for i := 0; i < p.perDay; i++ {
			ts := dayStart.Add(time.Duration(i) * p.interval)
			hour := float64(ts.Hour()) + float64(ts.Minute())/60
			cycle := math.Sin((hour - 9) * math.Pi / 12)
			readings = append(readings, reading{
				Timestamp: ts,
				SensorID:  p.sensorID,
				Value:     p.base + p.swing*cycle + (rng.Float64()*2-1)*p.noise,
			})
		}
	}
	return readings
}

func writeCSV(filename string, readings []reading) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if _, err := w.WriteString("timestamp,sensor_id,value\n"); err != nil {
		return err
	}
	for _, r := range readings {
		if _, err := fmt.Fprintf(w, "%s,%d,%.2f\n", r.Timestamp.Format(time.RFC3339), r.SensorID, r.Value); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}
