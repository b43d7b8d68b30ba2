package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/yugabyte/yb-anonymizer/src/anonymizer"
	"github.com/yugabyte/yb-anonymizer/src/errs"
)

// Report is the JSON artifact a run leaves behind for auditing: which dump
// was processed under which seed and dictionary version, and what came out.
type Report struct {
	RunID             string           `json:"run_id"`
	Seed              uint64           `json:"seed"`
	DictionaryVersion int              `json:"dictionary_version"`
	GeneratedAt       time.Time        `json:"generated_at"`
	ElapsedSeconds    float64          `json:"elapsed_seconds"`
	BytesRead         int64            `json:"bytes_read"`
	BytesWritten      int64            `json:"bytes_written"`
	TablesDefined     int              `json:"tables_defined"`
	DataStatements    int64            `json:"data_statements"`
	RowsByTable       map[string]int64 `json:"rows_by_table"`
	Warnings          []string         `json:"warnings,omitempty"`
}

func NewReport(res *Result) *Report {
	return &Report{
		RunID:             res.RunID,
		Seed:              res.Seed,
		DictionaryVersion: anonymizer.DictionaryVersion,
		GeneratedAt:       time.Now().UTC(),
		ElapsedSeconds:    res.Elapsed.Seconds(),
		BytesRead:         res.BytesRead,
		BytesWritten:      res.BytesWritten,
		TablesDefined:     res.TablesDefined,
		DataStatements:    res.DataStatements,
		RowsByTable:       res.RowsByTable,
		Warnings:          res.Warnings,
	}
}

func (r *Report) WriteFile(path string) error {
	bs, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := os.WriteFile(path, bs, 0644); err != nil {
		return errs.NewIoError("write", path, err)
	}
	return nil
}
