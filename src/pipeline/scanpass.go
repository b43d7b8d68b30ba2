package pipeline

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/yugabyte/yb-anonymizer/src/anonymizer"
	"github.com/yugabyte/yb-anonymizer/src/dumpparser"
	"github.com/yugabyte/yb-anonymizer/src/piiscan"
	"github.com/yugabyte/yb-anonymizer/src/schemareg"
	"github.com/yugabyte/yb-anonymizer/src/utils/sqlname"
)

// ScanOptions parameterize one classification pass.
type ScanOptions struct {
	SampleLimit int
	Progress    func(consumed int64)
}

// TableScan is everything the scan learned about one table.
type TableScan struct {
	Schema  *schemareg.TableSchema
	Samples *piiscan.SampleSet
	// Rows counts the data rows inspected for samples, not the rows in the
	// dump; sampling stops once every column is full.
	Rows      int64
	Proposals []piiscan.ColumnProposal
}

// ScanResult is the outcome of a classification pass over a whole dump.
type ScanResult struct {
	Registry       *schemareg.Registry
	Tables         map[string]*TableScan
	DataStatements int64
	BytesRead      int64
}

// TableNames returns the scanned tables sorted by qualified name.
func (sr *ScanResult) TableNames() []string {
	names := maps.Keys(sr.Tables)
	slices.Sort(names)
	return names
}

// Assignment converts the proposals into a strategy assignment, keep entries
// included, so the emitted configuration shows every column a reviewer might
// want to flip.
func (sr *ScanResult) Assignment() *anonymizer.StrategyAssignment {
	assignment := anonymizer.NewStrategyAssignment()
	for _, name := range sr.TableNames() {
		for _, proposal := range sr.Tables[name].Proposals {
			assignment.Set(name, proposal.Column, proposal.Strategy)
		}
	}
	return assignment
}

// Scan reads a dump without writing anything, capturing schemas, sampling
// data values and proposing a strategy per column. Tables that never get a
// CREATE TABLE are reconstructed from INSERT/COPY column lists when those
// statements carry one.
func Scan(ctx context.Context, in io.Reader, opts ScanOptions) (*ScanResult, error) {
	sr := &ScanResult{
		Registry: schemareg.NewRegistry(),
		Tables:   make(map[string]*TableScan),
	}
	scanner := dumpparser.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch stmt.Kind {
		case dumpparser.StatementCreateTable:
			sr.Registry.Define(stmt.Schema)
			sr.tableScan(stmt.Schema, opts).Schema = stmt.Schema
		case dumpparser.StatementInsert:
			sr.DataStatements++
			schema, err := sr.resolveSchema(stmt.Insert.Table, stmt.Insert.Columns, opts)
			if err != nil {
				return nil, err
			}
			if schema == nil {
				continue
			}
			if err := stmt.Insert.Bind(schema); err != nil {
				return nil, err
			}
			if err := sr.sampleRows(schema, stmt.Insert.NextRow); err != nil {
				return nil, err
			}
		case dumpparser.StatementCopy:
			sr.DataStatements++
			schema, err := sr.resolveSchema(stmt.Copy.Table, stmt.Copy.Columns, opts)
			if err != nil {
				return nil, err
			}
			if schema == nil {
				continue
			}
			if err := stmt.Copy.Bind(schema); err != nil {
				return nil, err
			}
			if err := sr.sampleRows(schema, stmt.Copy.NextRow); err != nil {
				return nil, err
			}
		}
		if opts.Progress != nil {
			opts.Progress(scanner.Offset())
		}
	}
	sr.BytesRead = scanner.Offset()
	for _, entry := range sr.Tables {
		entry.Proposals = piiscan.ProposeTable(entry.Schema, entry.Samples)
	}
	return sr, nil
}

func (sr *ScanResult) tableScan(schema *schemareg.TableSchema, opts ScanOptions) *TableScan {
	entry, ok := sr.Tables[schema.Name.Qualified()]
	if !ok {
		entry = &TableScan{Schema: schema, Samples: piiscan.NewSampleSet(opts.SampleLimit)}
		sr.Tables[schema.Name.Qualified()] = entry
	}
	return entry
}

// resolveSchema finds or reconstructs the schema behind a data statement. A
// nil schema with a nil error means the statement offers nothing to
// reconstruct from and should be skipped.
func (sr *ScanResult) resolveSchema(table *sqlname.TableName, columns []string, opts ScanOptions) (*schemareg.TableSchema, error) {
	schema, ok := sr.Registry.Lookup(table.Qualified())
	if ok && schema.Synthetic && mergeSyntheticColumns(schema, columns) {
		sr.Registry.Define(schema)
	}
	if ok {
		return schema, nil
	}
	if columns == nil {
		log.Debugf("skipping data for %s: no declared schema and no column list to reconstruct one from", table)
		return nil, nil
	}
	schema = &schemareg.TableSchema{Name: table, Synthetic: true}
	for _, col := range columns {
		schema.Columns = append(schema.Columns, schemareg.ColumnDefinition{
			Name:     col,
			Category: schemareg.TypeCategoryOther,
		})
	}
	sr.Registry.Define(schema)
	sr.tableScan(schema, opts).Schema = schema
	log.Debugf("reconstructed schema for %s from a data statement column list (%d columns)", table, len(columns))
	return schema, nil
}

// mergeSyntheticColumns appends columns a reconstructed schema has not seen
// yet, so successive data statements with different column lists accumulate
// into one table view.
func mergeSyntheticColumns(schema *schemareg.TableSchema, columns []string) bool {
	grew := false
	for _, col := range columns {
		if _, ok := schema.GetColumn(col); !ok {
			schema.Columns = append(schema.Columns, schemareg.ColumnDefinition{
				Name:     col,
				Category: schemareg.TypeCategoryOther,
			})
			grew = true
		}
	}
	return grew
}

// sampleRows feeds string values into the table's sample set until every
// column is full; the scanner drains whatever the sampling never reads.
func (sr *ScanResult) sampleRows(schema *schemareg.TableSchema, next func() ([]dumpparser.RawValue, error)) error {
	entry := sr.Tables[schema.Name.Qualified()]
	names := schema.ColumnNames()
	for !entry.Samples.Full(names) {
		row, err := next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		entry.Rows++
		for i, v := range row {
			if v.Kind == dumpparser.ValueString {
				entry.Samples.Add(schema.Columns[i].Name, v.Text)
			}
		}
	}
	return nil
}
