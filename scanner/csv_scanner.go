package scanner

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/jgrocha/BluetoothChat/contract"
	"github.com/jgrocha/BluetoothChat/database"
	"github.com/jgrocha/BluetoothChat/logger"
	"github.com/jgrocha/BluetoothChat/resource"
)

// Inserter is the part of the resource router the scanner writes through
type Inserter interface {
	Contract() contract.Contract
	Insert(ctx context.Context, id resource.Identifier, values database.Values) (resource.Identifier, error)
	BulkInsert(ctx context.Context, id resource.Identifier, rows []database.Values) (int, error)
}

// CSVScanner imports temperature readings from CSV files
type CSVScanner struct {
	target      Inserter
	workerCount int
	batchSize   int
}

// FileJob represents a CSV file to be processed
type FileJob struct {
	FilePath string
	FileName string
}

// ProcessResult contains the result of processing a CSV file
type ProcessResult struct {
	FilePath      string
	RecordCount   int
	ErrorCount    int
	InsertedCount int
	FailedCount   int
	Duration      time.Duration
	Error         error
}

// timestampLayouts are tried in order when parsing the first column
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	database.TimeLayout,
}

// NewCSVScanner creates a new CSV scanner
func NewCSVScanner(target Inserter) *CSVScanner {
	// Default to number of CPU cores for parallel processing
	workerCount := runtime.NumCPU()
	if workerCount > 8 {
		workerCount = 8 // writes are serialized by the store anyway
	}

	return &CSVScanner{
		target:      target,
		workerCount: workerCount,
		batchSize:   1000,
	}
}

// SetWorkerCount sets the number of parallel workers
func (cs *CSVScanner) SetWorkerCount(count int) {
	if count > 0 {
		cs.workerCount = count
	}
}

// SetBatchSize sets how many readings go into one bulk insert
func (cs *CSVScanner) SetBatchSize(size int) {
	if size > 0 {
		cs.batchSize = size
	}
}

// ScanDirectory scans a directory for CSV files and imports them in parallel
func (cs *CSVScanner) ScanDirectory(ctx context.Context, directoryPath string) ([]ProcessResult, error) {
	logger.Printf("Scanning directory: %s", directoryPath)

	if _, err := os.Stat(directoryPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("directory does not exist: %s", directoryPath)
	}

	csvFiles, err := cs.findCSVFiles(directoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find CSV files: %w", err)
	}

	if len(csvFiles) == 0 {
		logger.Println("No CSV files found in the directory")
		return nil, nil
	}

	logger.Printf("Found %d CSV file(s) to process", len(csvFiles))
	logger.Printf("Processing with %d parallel workers", cs.workerCount)

	results, err := cs.processFilesParallel(ctx, csvFiles)
	if err != nil {
		return results, err
	}

	cs.displaySummary(results)
	return results, nil
}

// findCSVFiles finds all CSV files in the specified directory (non-recursive)
func (cs *CSVScanner) findCSVFiles(directoryPath string) ([]FileJob, error) {
	var csvFiles []FileJob

	entries, err := os.ReadDir(directoryPath)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) == ".csv" {
			csvFiles = append(csvFiles, FileJob{
				FilePath: filepath.Join(directoryPath, entry.Name()),
				FileName: entry.Name(),
			})
		}
	}

	return csvFiles, nil
}

// processFilesParallel runs at most workerCount files at a time. Results
// keep the order of files.
func (cs *CSVScanner) processFilesParallel(ctx context.Context, files []FileJob) ([]ProcessResult, error) {
	results := make([]ProcessResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cs.workerCount)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = cs.processCSVFile(ctx, file)
			return nil
		})
	}

	return results, g.Wait()
}

// processCSVFile processes a single CSV file
func (cs *CSVScanner) processCSVFile(ctx context.Context, job FileJob) (result ProcessResult) {
	startTime := time.Now()
	result.FilePath = job.FilePath
	defer func() { result.Duration = time.Since(startTime) }()

	logger.Printf("Processing file: %s", job.FileName)

	file, err := os.Open(job.FilePath)
	if err != nil {
		result.Error = fmt.Errorf("failed to open file: %w", err)
		return result
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields

	records, err := reader.ReadAll()
	if err != nil {
		result.Error = fmt.Errorf("failed to read CSV: %w", err)
		return result
	}

	if len(records) == 0 {
		result.Error = fmt.Errorf("empty CSV file")
		return result
	}

	readings, errorCount := cs.parseCSVRecords(records, job.FileName)
	result.RecordCount = len(readings)
	result.ErrorCount = errorCount

	if len(readings) > 0 {
		result.InsertedCount, result.FailedCount = cs.batchInsertReadings(ctx, readings)
		if result.InsertedCount == 0 {
			result.Error = fmt.Errorf("failed to insert any of %d readings", len(readings))
			return result
		}
	}

	logger.Printf("Completed %s: %d records processed, %d inserted, %d errors in %v",
		job.FileName, result.RecordCount, result.InsertedCount, result.ErrorCount+result.FailedCount, time.Since(startTime))

	return result
}

// parseCSVRecords parses timestamp,sensor_id,value[,metric,calibrated]
// records into temperature rows
func (cs *CSVScanner) parseCSVRecords(records [][]string, fileName string) ([]database.Values, int) {
	var readings []database.Values
	var errorCount int

	startRow := 0
	if len(records) > 0 && cs.isHeaderRow(records[0]) {
		startRow = 1
	}

	for i := startRow; i < len(records); i++ {
		record := records[i]

		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}

		if len(record) < 3 {
			errorCount++
			logger.Warnf("Row %d in %s has insufficient columns (expected 3, got %d)", i+1, fileName, len(record))
			continue
		}

		timestampStr := strings.TrimSpace(record[0])
		timestamp, ok := parseTimestamp(timestampStr)
		if !ok {
			errorCount++
			logger.Warnf("Row %d in %s has invalid timestamp format: %s", i+1, fileName, timestampStr)
			continue
		}

		sensorID, err := cast.ToInt64E(strings.TrimSpace(record[1]))
		if err != nil || sensorID <= 0 {
			errorCount++
			logger.Warnf("Row %d in %s has invalid sensor id: %s", i+1, fileName, record[1])
			continue
		}

		value, err := cast.ToFloat64E(strings.TrimSpace(record[2]))
		if err != nil {
			errorCount++
			logger.Warnf("Row %d in %s has invalid value: %s", i+1, fileName, record[2])
			continue
		}

		row := database.Values{
			contract.TemperatureColumnSensorID: sensorID,
			contract.TemperatureColumnCreated:  timestamp.UTC().Format(database.TimeLayout),
			contract.TemperatureColumnValue:    value,
		}

		flagsOK := true
		for j, col := range []string{contract.TemperatureColumnMetric, contract.TemperatureColumnCalibrated} {
			if len(record) <= 3+j || strings.TrimSpace(record[3+j]) == "" {
				continue
			}
			flag, err := cast.ToBoolE(strings.TrimSpace(record[3+j]))
			if err != nil {
				flagsOK = false
				logger.Warnf("Row %d in %s has invalid %s flag: %s", i+1, fileName, col, record[3+j])
				break
			}
			row[col] = flag
		}
		if !flagsOK {
			errorCount++
			continue
		}

		readings = append(readings, row)
	}

	return readings, errorCount
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isHeaderRow checks if the first row is likely a header
func (cs *CSVScanner) isHeaderRow(row []string) bool {
	if len(row) < 3 {
		return false
	}

	firstCol := strings.ToLower(strings.TrimSpace(row[0]))
	for _, word := range []string{"timestamp", "time", "date", "datetime", "created"} {
		if strings.Contains(firstCol, word) {
			return true
		}
	}

	_, ok := parseTimestamp(strings.TrimSpace(row[0]))
	return !ok
}

// batchInsertReadings inserts readings in atomic batches. A batch the store
// rejects is retried row by row so one bad reading does not sink the rest.
func (cs *CSVScanner) batchInsertReadings(ctx context.Context, readings []database.Values) (inserted, failed int) {
	target := resource.Collection(cs.target.Contract(), contract.KindTemperature)

	for i := 0; i < len(readings); i += cs.batchSize {
		end := i + cs.batchSize
		if end > len(readings) {
			end = len(readings)
		}
		batch := readings[i:end]

		n, err := cs.target.BulkInsert(ctx, target, batch)
		if err == nil {
			inserted += n
			continue
		}

		logger.Warnf("Batch of %d readings rejected, retrying individually: %v", len(batch), err)
		ok, bad := cs.individualInsert(ctx, target, batch)
		inserted += ok
		failed += bad
	}

	return inserted, failed
}

// individualInsert attempts to insert readings one at a time
func (cs *CSVScanner) individualInsert(ctx context.Context, target resource.Identifier, batch []database.Values) (inserted, failed int) {
	for _, row := range batch {
		if _, err := cs.target.Insert(ctx, target, row); err != nil {
			failed++
			logger.Warnf("Failed to insert reading of sensor %v at %v: %v",
				row[contract.TemperatureColumnSensorID], row[contract.TemperatureColumnCreated], err)
			continue
		}
		inserted++
	}

	if failed > 0 {
		logger.Printf("Inserted %d out of %d readings with some errors", inserted, len(batch))
	}
	return inserted, failed
}

// displaySummary logs a summary of the processing results
func (cs *CSVScanner) displaySummary(results []ProcessResult) {
	logger.Println(strings.Repeat("=", 60))
	logger.Println("PROCESSING SUMMARY")
	logger.Println(strings.Repeat("=", 60))

	var (
		totalRecords, totalInserted, totalErrors int
		successfulFiles, failedFiles             int
		totalDuration                            time.Duration
	)

	for _, result := range results {
		if result.Error != nil {
			failedFiles++
			logger.Printf("%s: FAILED - %v", filepath.Base(result.FilePath), result.Error)
		} else {
			successfulFiles++
			totalRecords += result.RecordCount
			totalInserted += result.InsertedCount
			totalErrors += result.ErrorCount + result.FailedCount
			logger.Printf("%s: %d records, %d inserted, %d errors (%v)",
				filepath.Base(result.FilePath), result.RecordCount, result.InsertedCount,
				result.ErrorCount+result.FailedCount, result.Duration)
		}
		totalDuration += result.Duration
	}

	logger.Println(strings.Repeat("-", 60))
	logger.Printf("Total files processed: %d", len(results))
	logger.Printf("Successful: %d", successfulFiles)
	logger.Printf("Failed: %d", failedFiles)
	logger.Printf("Total records parsed: %d", totalRecords)
	logger.Printf("Total readings imported: %d", totalInserted)
	logger.Printf("Total errors: %d", totalErrors)
	logger.Printf("Total processing time: %v", totalDuration)
	logger.Println(strings.Repeat("=", 60))
}
