package anonymizer

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// StrategyKind enumerates the closed set of per-value transformations.
// Dispatch is by switch so that adding a kind without handling it everywhere
// fails loudly in tests rather than silently keeping values.
type StrategyKind int

const (
	StrategyKeep StrategyKind = iota
	StrategyFixed
	StrategyMask
	StrategyEmail
	StrategyPhone
	StrategyFirstName
	StrategyLastName
	StrategyFullName
)

// Tags as they appear in the YAML configuration.
const (
	TagKeep      = "keep"
	TagFixed     = "fixed"
	TagMask      = "mask"
	TagEmail     = "email"
	TagPhone     = "phone"
	TagFirstName = "first_name"
	TagLastName  = "last_name"
	TagFullName  = "full_name"
)

// Strategy is a tagged variant: Kind plus the payload for StrategyFixed.
type Strategy struct {
	Kind       StrategyKind
	FixedValue string
}

func NewKeep() Strategy      { return Strategy{Kind: StrategyKeep} }
func NewMask() Strategy      { return Strategy{Kind: StrategyMask} }
func NewEmail() Strategy     { return Strategy{Kind: StrategyEmail} }
func NewPhone() Strategy     { return Strategy{Kind: StrategyPhone} }
func NewFirstName() Strategy { return Strategy{Kind: StrategyFirstName} }
func NewLastName() Strategy  { return Strategy{Kind: StrategyLastName} }
func NewFullName() Strategy  { return Strategy{Kind: StrategyFullName} }

func NewFixed(value string) Strategy {
	return Strategy{Kind: StrategyFixed, FixedValue: value}
}

var tagToKind = map[string]StrategyKind{
	TagKeep:      StrategyKeep,
	TagMask:      StrategyMask,
	TagEmail:     StrategyEmail,
	TagPhone:     StrategyPhone,
	TagFirstName: StrategyFirstName,
	TagLastName:  StrategyLastName,
	TagFullName:  StrategyFullName,
}

// ParseTag resolves a plain strategy tag. The fixed strategy never parses
// from a plain tag because it requires a payload; the configuration layer
// builds it from the map form.
func ParseTag(tag string) (Strategy, bool) {
	kind, ok := tagToKind[tag]
	if !ok {
		return Strategy{}, false
	}
	return Strategy{Kind: kind}, true
}

// KnownTags returns every plain tag, sorted, for error messages.
func KnownTags() []string {
	tags := maps.Keys(tagToKind)
	tags = append(tags, TagFixed)
	slices.Sort(tags)
	return tags
}

// Tag returns the YAML tag for the strategy.
func (s Strategy) Tag() string {
	switch s.Kind {
	case StrategyKeep:
		return TagKeep
	case StrategyFixed:
		return TagFixed
	case StrategyMask:
		return TagMask
	case StrategyEmail:
		return TagEmail
	case StrategyPhone:
		return TagPhone
	case StrategyFirstName:
		return TagFirstName
	case StrategyLastName:
		return TagLastName
	case StrategyFullName:
		return TagFullName
	default:
		panic(fmt.Sprintf("unknown strategy kind %d", s.Kind))
	}
}

// String renders the strategy for plans and logs.
func (s Strategy) String() string {
	if s.Kind == StrategyFixed {
		return fmt.Sprintf("%s(%s)", TagFixed, s.FixedValue)
	}
	return s.Tag()
}

func (s Strategy) IsKeep() bool {
	return s.Kind == StrategyKeep
}

// IsRandomized reports whether the strategy derives its output from the
// seeded digest (as opposed to Keep/Fixed/Mask which ignore the seed).
func (s Strategy) IsRandomized() bool {
	switch s.Kind {
	case StrategyEmail, StrategyPhone, StrategyFirstName, StrategyLastName, StrategyFullName:
		return true
	default:
		return false
	}
}

// StrategyAssignment maps qualified table names to per-column strategies.
// Built once from configuration or heuristic proposal, read-only afterwards.
type StrategyAssignment struct {
	tables map[string]map[string]Strategy
}

func NewStrategyAssignment() *StrategyAssignment {
	return &StrategyAssignment{tables: make(map[string]map[string]Strategy)}
}

func (a *StrategyAssignment) Set(table string, column string, strategy Strategy) {
	columns, ok := a.tables[table]
	if !ok {
		columns = make(map[string]Strategy)
		a.tables[table] = columns
	}
	columns[column] = strategy
}

func (a *StrategyAssignment) Get(table string, column string) (Strategy, bool) {
	strategy, ok := a.tables[table][column]
	return strategy, ok
}

func (a *StrategyAssignment) HasTable(table string) bool {
	_, ok := a.tables[table]
	return ok
}

// Tables returns the assigned table names, sorted.
func (a *StrategyAssignment) Tables() []string {
	names := maps.Keys(a.tables)
	slices.Sort(names)
	return names
}

// Columns returns the assigned column names of one table, sorted.
func (a *StrategyAssignment) Columns(table string) []string {
	names := maps.Keys(a.tables[table])
	slices.Sort(names)
	return names
}

// ColumnCount counts all column assignments across tables.
func (a *StrategyAssignment) ColumnCount() int {
	n := 0
	for _, columns := range a.tables {
		n += len(columns)
	}
	return n
}
