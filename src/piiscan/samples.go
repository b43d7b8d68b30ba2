package piiscan

import (
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// DefaultSampleLimit caps how many values per column the scan keeps for
// structural checks.
const DefaultSampleLimit = 20

// minStructuralSamples is the floor below which sampled values carry no
// structural signal at all.
const minStructuralSamples = 3

// structuralMatchRatio is the fraction of samples that must match a shape
// before the shape is trusted over the column name.
const structuralMatchRatio = 0.8

// SampleSet holds up to limit sampled string values per column of one table.
type SampleSet struct {
	limit    int
	byColumn map[string][]string
}

func NewSampleSet(limit int) *SampleSet {
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	return &SampleSet{limit: limit, byColumn: map[string][]string{}}
}

// Add records one sampled value, dropping it once the column is full.
func (s *SampleSet) Add(column string, value string) {
	if len(s.byColumn[column]) >= s.limit {
		return
	}
	s.byColumn[column] = append(s.byColumn[column], value)
}

// Full reports whether every listed column has reached the sample limit,
// letting the scan stop collecting early on large tables.
func (s *SampleSet) Full(columns []string) bool {
	return lo.EveryBy(columns, func(col string) bool {
		return len(s.byColumn[col]) >= s.limit
	})
}

func (s *SampleSet) Of(column string) []string {
	if s == nil {
		return nil
	}
	return s.byColumn[column]
}

var emailShapeRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// isoDatePrefixRe rejects date and timestamp strings from the phone check,
// which they would otherwise satisfy (digits and dashes, 8 digits).
var isoDatePrefixRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

func looksLikeEmail(s string) bool {
	return emailShapeRe.MatchString(s)
}

func looksLikePhone(s string) bool {
	if isoDatePrefixRe.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune("+-() .", r):
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

// classifyStructure inspects the sampled values for a recognizable shape.
// It returns the matched category (or catNone), how many samples matched,
// and how many samples were inspected.
func classifyStructure(samples []string) (category, int, int) {
	if len(samples) < minStructuralSamples {
		return catNone, 0, len(samples)
	}
	emails := lo.CountBy(samples, looksLikeEmail)
	if float64(emails) >= structuralMatchRatio*float64(len(samples)) {
		return catEmail, emails, len(samples)
	}
	phones := lo.CountBy(samples, looksLikePhone)
	if float64(phones) >= structuralMatchRatio*float64(len(samples)) {
		return catPhone, phones, len(samples)
	}
	if emails > phones {
		return catNone, emails, len(samples)
	}
	return catNone, phones, len(samples)
}

func structuralReason(cat category, matched, sampled int) string {
	shape := "phone numbers"
	if cat == catEmail {
		shape = "email addresses"
	}
	return lo.Ternary(matched == sampled,
		"all sampled values look like "+shape,
		"most sampled values look like "+shape)
}
