package anonymizer

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/yugabyte/yb-anonymizer/src/dumpparser"
	"github.com/yugabyte/yb-anonymizer/src/errs"
	"github.com/yugabyte/yb-anonymizer/src/schemareg"
)

// DefaultSeed parameterizes randomized strategies when the operator supplies
// none. Runs always echo the effective seed so output can be reproduced.
const DefaultSeed uint64 = 42

// Disjoint 8-byte segments of the per-value digest. Composed strategies
// (email, full name) pull their sub-picks from different segments so the
// parts of one output do not covary.
const (
	segmentFirstName = 0
	segmentLastName  = 1
	segmentDomain    = 2
	segmentPhone     = 3
)

// Transformer binds a resolved StrategyAssignment and the schema registry to
// the seed and dispatches every row value through the strategy library.
// It is driven by a single goroutine; the registry and assignment are never
// mutated after construction.
type Transformer struct {
	seed       uint64
	assignment *StrategyAssignment
	registry   *schemareg.Registry

	warned   map[string]bool
	warnings []string
}

func NewTransformer(seed uint64, assignment *StrategyAssignment, registry *schemareg.Registry) *Transformer {
	return &Transformer{
		seed:       seed,
		assignment: assignment,
		registry:   registry,
		warned:     make(map[string]bool),
	}
}

func (t *Transformer) Seed() uint64 {
	return t.seed
}

// Warnings returns every warning emitted so far, in emission order.
func (t *Transformer) Warnings() []string {
	return t.warnings
}

// TransformRow applies the table's column strategies to row in place.
// row must already be in schema column order with one entry per declared
// column; anything else means the classifier mis-parsed and the run must not
// continue.
func (t *Transformer) TransformRow(schema *schemareg.TableSchema, row []dumpparser.RawValue) error {
	if len(row) != len(schema.Columns) {
		return errs.NewSchemaError(schema.Name.Qualified(),
			"row has %d values but the schema declares %d columns", len(row), len(schema.Columns))
	}
	table := schema.Name.Qualified()
	for i := range row {
		if row[i].IsNull() || row[i].IsOmitted() {
			continue
		}
		column := schema.Columns[i].Name
		strategy, ok := t.assignment.Get(table, column)
		if !ok {
			t.warnMissingStrategy(table, column)
			continue
		}
		row[i] = t.Apply(strategy, schema.Name.ColumnQualifier(column), row[i])
	}
	return nil
}

func (t *Transformer) warnMissingStrategy(table string, column string) {
	key := table + "." + column
	if t.warned[key] {
		return
	}
	t.warned[key] = true
	msg := fmt.Sprintf("no strategy configured for column %s, keeping original values", key)
	log.Warn(msg)
	t.warnings = append(t.warnings, msg)
}

// Apply transforms one value. Null always passes through untouched: strategy
// output must never turn absent data into fabricated data.
func (t *Transformer) Apply(strategy Strategy, qualifier string, value dumpparser.RawValue) dumpparser.RawValue {
	if value.IsNull() || value.IsOmitted() {
		return value
	}
	switch strategy.Kind {
	case StrategyKeep:
		return value
	case StrategyFixed:
		// The payload adopts the original encoding style so a fixed value on
		// a bare literal stays bare and one on a quoted string stays quoted.
		if value.Kind == dumpparser.ValueBare {
			return dumpparser.BareValue([]byte(strategy.FixedValue))
		}
		return dumpparser.ReplacementValue(strategy.FixedValue)
	}
	if value.Kind != dumpparser.ValueString {
		// Bare literals (numbers, booleans, casts) are never targets of
		// string-oriented strategies.
		return value
	}
	switch strategy.Kind {
	case StrategyMask:
		return dumpparser.ReplacementValue(maskValue(value.Text))
	case StrategyEmail:
		d := t.digest(qualifier, value.Text)
		local := strings.ToLower(pick(d, segmentFirstName, firstNames)) +
			"." + strings.ToLower(pick(d, segmentLastName, lastNames))
		return dumpparser.ReplacementValue(local + "@" + pick(d, segmentDomain, emailDomains))
	case StrategyPhone:
		d := t.digest(qualifier, value.Text)
		return dumpparser.ReplacementValue(fillPhoneTemplate(d))
	case StrategyFirstName:
		d := t.digest(qualifier, value.Text)
		return dumpparser.ReplacementValue(pick(d, segmentFirstName, firstNames))
	case StrategyLastName:
		d := t.digest(qualifier, value.Text)
		return dumpparser.ReplacementValue(pick(d, segmentLastName, lastNames))
	case StrategyFullName:
		d := t.digest(qualifier, value.Text)
		return dumpparser.ReplacementValue(
			pick(d, segmentFirstName, firstNames) + " " + pick(d, segmentLastName, lastNames))
	default:
		panic(fmt.Sprintf("unknown strategy kind %d", strategy.Kind))
	}
}

// digest derives the per-value selector: sha256 over the seed, the fully
// qualified column identity and the original bytes. The NUL separator keeps
// the concatenation unambiguous; identifiers cannot contain NUL.
func (t *Transformer) digest(qualifier string, value string) [sha256.Size]byte {
	h := sha256.New()
	var seedBytes [8]byte
	binary.BigEndian.PutUint64(seedBytes[:], t.seed)
	h.Write(seedBytes[:])
	h.Write([]byte(qualifier))
	h.Write([]byte{0})
	h.Write([]byte(value))
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// pick indexes a dictionary with one 8-byte digest segment.
func pick(digest [sha256.Size]byte, segment int, dict []string) string {
	n := binary.BigEndian.Uint64(digest[segment*8 : segment*8+8])
	return dict[n%uint64(len(dict))]
}

// fillPhoneTemplate selects a template with the phone segment and derives the
// digits from the leading digest bytes, which no other phone sub-pick uses.
func fillPhoneTemplate(digest [sha256.Size]byte) string {
	template := pick(digest, segmentPhone, phoneTemplates)
	var b strings.Builder
	digitIdx := 0
	for _, c := range template {
		if c == '#' {
			b.WriteByte('0' + digest[digitIdx]%10)
			digitIdx++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// UnappliedConfigEntries lists configured tables and columns that never
// matched the scanned schema, for the end-of-run warnings.
func (t *Transformer) UnappliedConfigEntries() []string {
	var unapplied []string
	for _, table := range t.assignment.Tables() {
		schema, ok := t.registry.Lookup(table)
		if !ok {
			unapplied = append(unapplied, table)
			continue
		}
		for _, column := range t.assignment.Columns(table) {
			if _, ok := schema.GetColumn(column); !ok {
				unapplied = append(unapplied, table+"."+column)
			}
		}
	}
	slices.Sort(unapplied)
	return unapplied
}
