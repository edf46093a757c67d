// package formatter exports database tables to CSV files and downloads
// catalog cover art.
package formatter

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ExportTables is the set of tables exported for analysis, in export order.
var ExportTables = []string{
	"plays",
	"tracks",
	"tracks_consolidated",
	"track_mapping",
	"artists",
	"artist_genres",
	"albums",
}

// TableToCSV renders every row of the named table as CSV, with a header row
// of the table's column names.
func TableToCSV(db *sql.DB, table string) ([]byte, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s", table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns for %s: %w", table, err)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	record := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		for i, value := range values {
			record[i] = formatValue(value)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// WriteTableExports writes each table in ExportTables to
// {dataDir}/spotify_{table}.csv and returns the written paths.
func WriteTableExports(db *sql.DB, dataDir string) ([]string, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var files []string
	for _, table := range ExportTables {
		data, err := TableToCSV(db, table)
		if err != nil {
			return files, err
		}

		path := filepath.Join(dataDir, fmt.Sprintf("spotify_%s.csv", table))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return files, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
	}

	return files, nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// SaveImage downloads url into dir under the given base name with a .jpg
// extension, creating dir when needed.
func SaveImage(url, dir, name string) (string, error) {
	data, err := DownloadImage(url)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	path := filepath.Join(dir, name+".jpg")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	return path, nil
}
