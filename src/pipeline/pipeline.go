// Package pipeline drives a dump through parse, transform and write. Parsing
// and transformation run on the caller's goroutine; serialized chunks cross a
// bounded queue to a single writer worker, so memory stays proportional to
// the queue, never the file, and statement order is never changed.
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/yugabyte/yb-anonymizer/src/anonymizer"
	"github.com/yugabyte/yb-anonymizer/src/dumpparser"
	"github.com/yugabyte/yb-anonymizer/src/errs"
	"github.com/yugabyte/yb-anonymizer/src/schemareg"
	"github.com/yugabyte/yb-anonymizer/src/utils/sqlname"
)

const (
	defaultQueueDepth = 64
	chunkSize         = 64 * 1024
	progressRowStride = 256
)

// Options parameterize one transform run.
type Options struct {
	Seed       uint64
	Assignment *anonymizer.StrategyAssignment
	// OutputName labels write failures; it does not open anything.
	OutputName string
	// Progress, when set, receives the consumed input byte offset as
	// statements and COPY row batches complete.
	Progress   func(consumed int64)
	QueueDepth int
}

func (o Options) queueDepth() int {
	if o.QueueDepth > 0 {
		return o.QueueDepth
	}
	return defaultQueueDepth
}

func (o Options) outputName() string {
	if o.OutputName != "" {
		return o.OutputName
	}
	return "output"
}

// Result summarizes a finished or aborted run.
type Result struct {
	RunID          string
	Seed           uint64
	TablesDefined  int
	DataStatements int64
	RowsByTable    map[string]int64
	BytesRead      int64
	BytesWritten   int64
	Elapsed        time.Duration
	Warnings       []string
}

// TotalRows sums the per-table row counts.
func (r *Result) TotalRows() int64 {
	var n int64
	for _, rows := range r.RowsByTable {
		n += rows
	}
	return n
}

// errWriterStopped halts the producer when the writer has already failed;
// the writer's own error is what the caller sees.
var errWriterStopped = errors.New("writer stopped")

// Run streams in to out, transforming every data row per the assignment.
// On error, everything produced up to the failure is already flushed and
// output ends at a statement boundary. Cancellation returns the context's
// error the same way.
func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) (*Result, error) {
	started := time.Now()
	if opts.Assignment == nil {
		opts.Assignment = anonymizer.NewStrategyAssignment()
	}
	registry := schemareg.NewRegistry()
	transformer := anonymizer.NewTransformer(opts.Seed, opts.Assignment, registry)
	res := &Result{
		RunID:       uuid.NewString(),
		Seed:        opts.Seed,
		RowsByTable: make(map[string]int64),
	}
	log.Infof("run %s starting with seed %d", res.RunID, opts.Seed)

	ch := make(chan []byte, opts.queueDepth())
	var written int64
	var writerDown atomic.Bool
	writers := pool.New().WithErrors()
	writers.Go(func() error {
		bw := bufio.NewWriterSize(out, chunkSize)
		for chunk := range ch {
			n, err := bw.Write(chunk)
			written += int64(n)
			if err != nil {
				writerDown.Store(true)
				for range ch {
					// keep the producer from blocking on a dead writer
				}
				return errs.NewIoError("write", opts.outputName(), err)
			}
		}
		if err := bw.Flush(); err != nil {
			return errs.NewIoError("flush", opts.outputName(), err)
		}
		return nil
	})

	p := &producer{
		ctx:         ctx,
		scanner:     dumpparser.NewScanner(in),
		registry:    registry,
		transformer: transformer,
		out:         &chunker{ch: ch},
		res:         res,
		progress:    opts.Progress,
		writerDown:  &writerDown,
	}
	runErr := p.run()
	p.out.flush()
	close(ch)
	writeErr := writers.Wait()
	if runErr == errWriterStopped {
		runErr = nil
	}

	res.TablesDefined = registry.TableCount()
	res.BytesRead = p.scanner.Offset()
	res.BytesWritten = written
	res.Elapsed = time.Since(started)
	res.Warnings = append(res.Warnings, transformer.Warnings()...)
	for _, entry := range transformer.UnappliedConfigEntries() {
		msg := "configured entry " + entry + " matched nothing in the dump"
		log.Warn(msg)
		res.Warnings = append(res.Warnings, msg)
	}
	if runErr != nil {
		return res, runErr
	}
	return res, writeErr
}

type producer struct {
	ctx         context.Context
	scanner     *dumpparser.Scanner
	registry    *schemareg.Registry
	transformer *anonymizer.Transformer
	out         *chunker
	res         *Result
	progress    func(int64)
	writerDown  *atomic.Bool
}

func (p *producer) run() error {
	for {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		if p.writerDown.Load() {
			return errWriterStopped
		}
		stmt, err := p.scanner.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch stmt.Kind {
		case dumpparser.StatementVerbatim:
			p.out.write(stmt.Raw)
		case dumpparser.StatementCreateTable:
			p.registry.Define(stmt.Schema)
			log.Debugf("declared table %s with %d columns", stmt.Schema.Name, len(stmt.Schema.Columns))
			p.out.write(stmt.Raw)
		case dumpparser.StatementInsert:
			if err := p.transformInsert(stmt); err != nil {
				return err
			}
			p.res.DataStatements++
		case dumpparser.StatementCopy:
			if err := p.transformCopy(stmt); err != nil {
				return err
			}
			p.res.DataStatements++
		}
		p.reportProgress()
	}
}

func (p *producer) reportProgress() {
	if p.progress != nil {
		p.progress(p.scanner.Offset())
	}
}

// lookupSchema enforces the fail-closed rule: data for a table with no prior
// CREATE TABLE must never pass through unanonymized.
func (p *producer) lookupSchema(table *sqlname.TableName, offset int64) (*schemareg.TableSchema, error) {
	schema, ok := p.registry.Lookup(table.Qualified())
	if !ok {
		return nil, errs.NewSchemaError(table.Qualified(),
			"data statement at byte offset %d references a table with no prior CREATE TABLE, refusing to pass its rows through", offset)
	}
	return schema, nil
}

// transformInsert rewrites one INSERT statement. The whole statement is
// buffered before anything is sent, so a mid-statement failure never leaves
// a truncated INSERT in the output.
func (p *producer) transformInsert(stmt *dumpparser.Statement) error {
	ins := stmt.Insert
	schema, err := p.lookupSchema(ins.Table, stmt.Offset)
	if err != nil {
		return err
	}
	if err := ins.Bind(schema); err != nil {
		return err
	}
	ordinals := ins.EmitOrdinals()
	var buf bytes.Buffer
	writeInsertHead(&buf, schema, ordinals, ins.Columns != nil)
	rows := 0
	for {
		if err := p.ctx.Err(); err != nil {
			if rows > 0 {
				// the tuples rendered so far form a complete statement
				buf.WriteString(";\n")
				p.out.write(buf.Bytes())
				p.res.RowsByTable[schema.Name.Qualified()] += int64(rows)
			}
			return err
		}
		row, err := ins.NextRow()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := p.transformer.TransformRow(schema, row); err != nil {
			return err
		}
		if rows > 0 {
			buf.WriteString(", ")
		}
		writeInsertTuple(&buf, row, ordinals)
		rows++
		if rows%progressRowStride == 0 {
			p.reportProgress()
		}
	}
	if trailer := ins.Trailer(); len(trailer) > 0 {
		buf.WriteByte(' ')
		buf.Write(trailer)
	}
	buf.WriteByte(';')
	p.out.write(buf.Bytes())
	p.res.RowsByTable[schema.Name.Qualified()] += int64(rows)
	return nil
}

// transformCopy rewrites one COPY block, streaming line by line. Every exit
// path closes the block with its end-of-data marker so the output never
// carries an unterminated COPY.
func (p *producer) transformCopy(stmt *dumpparser.Statement) error {
	cp := stmt.Copy
	schema, err := p.lookupSchema(cp.Table, stmt.Offset)
	if err != nil {
		return err
	}
	if err := cp.Bind(schema); err != nil {
		return err
	}
	p.out.write(cp.HeaderRaw)
	ordinals := cp.EmitOrdinals()
	var rows int64
	defer func() {
		p.out.write([]byte("\\.\n"))
		p.res.RowsByTable[schema.Name.Qualified()] += rows
	}()
	for {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		row, err := cp.NextRow()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := p.transformer.TransformRow(schema, row); err != nil {
			return err
		}
		p.out.write(encodeCopyLine(row, ordinals))
		rows++
		if rows%progressRowStride == 0 {
			p.reportProgress()
		}
	}
}

// chunker batches small writes into queue-sized chunks so COPY rows do not
// pay one channel hop each. Chunks handed to write are owned by the callee.
type chunker struct {
	ch  chan<- []byte
	buf []byte
}

func (c *chunker) write(b []byte) {
	if len(b) == 0 {
		return
	}
	if len(c.buf)+len(b) >= chunkSize {
		c.flush()
	}
	if len(b) >= chunkSize {
		c.ch <- b
		return
	}
	c.buf = append(c.buf, b...)
}

func (c *chunker) flush() {
	if len(c.buf) > 0 {
		c.ch <- c.buf
		c.buf = nil
	}
}
