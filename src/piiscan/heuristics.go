// Package piiscan proposes a per-column anonymization strategy from column
// names, declared types and sampled values. Proposals are safe-first: a
// column is kept unless the evidence for a PII category is convincing, since
// an unwanted keep is fixable by configuration while a wrongly transformed
// identifier or amount is not.
package piiscan

import (
	"strings"

	"github.com/samber/lo"

	"github.com/yugabyte/yb-anonymizer/src/anonymizer"
	"github.com/yugabyte/yb-anonymizer/src/schemareg"
)

// Fixed payloads proposed for columns that should not carry even fake
// realistic values.
const (
	FixedAddressPayload = "ANONYMIZED ADDRESS"
	FixedSecretPayload  = "REDACTED_SECRET"
)

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// ColumnProposal is the engine's verdict for one column.
type ColumnProposal struct {
	Column     string
	Strategy   anonymizer.Strategy
	Confidence Confidence
	Reason     string
}

// ClassificationEvidence is the transient input for one column: name tokens,
// declared type category, and whatever sample values the scan collected.
// TypeKnown is false for schemas synthesized from INSERT/COPY column lists,
// where no CREATE TABLE declared a type.
type ClassificationEvidence struct {
	Name      string
	Category  schemareg.TypeCategory
	TypeKnown bool
	Samples   []string
}

type category int

const (
	catNone category = iota
	catIdentifier
	catTemporal
	catMonetary
	catEmail
	catPhone
	catFirstName
	catLastName
	catFullName
	catAddress
	catSecret
	catFreeText
)

// ProposeTable classifies every column of one table in declaration order.
func ProposeTable(schema *schemareg.TableSchema, samples *SampleSet) []ColumnProposal {
	proposals := make([]ColumnProposal, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		ev := ClassificationEvidence{
			Name:      col.Name,
			Category:  col.Category,
			TypeKnown: !schema.Synthetic,
			Samples:   samples.Of(col.Name),
		}
		proposals = append(proposals, Propose(ev))
	}
	return proposals
}

// Propose runs the heuristic for one column.
func Propose(ev ClassificationEvidence) ColumnProposal {
	name := strings.ToLower(ev.Name)

	// Referential-integrity priority: id columns and uuid/temporal types are
	// kept no matter what the rest of the name says.
	if name == "id" || strings.HasSuffix(name, "_id") {
		return keepProposal(ev, ConfidenceHigh, "identifier column")
	}
	if ev.TypeKnown && (ev.Category == schemareg.TypeCategoryUuid || ev.Category == schemareg.TypeCategoryTemporal) {
		return keepProposal(ev, ConfidenceHigh, "declared type "+string(ev.Category))
	}

	// Numeric and boolean columns are kept: replacing their values with
	// formatted strings would break the column on reload.
	if ev.TypeKnown && (ev.Category == schemareg.TypeCategoryNumeric || ev.Category == schemareg.TypeCategoryBoolean) {
		return keepProposal(ev, ConfidenceHigh, "declared type "+string(ev.Category))
	}

	nameCat, nameReason := classifyName(name)
	if nameCat == catIdentifier || nameCat == catTemporal || nameCat == catMonetary {
		return keepProposal(ev, ConfidenceHigh, nameReason)
	}

	// PII strategies are only proposed for text-like columns; anything with
	// an unrecognized declared type (bytea, json, enums, arrays) is kept.
	if ev.TypeKnown && ev.Category != schemareg.TypeCategoryText {
		return keepProposal(ev, ConfidenceLow, "unrecognized declared type, review manually")
	}

	structCat, matched, sampled := classifyStructure(ev.Samples)

	// A positive structural match overrides a conflicting name-based guess:
	// the data outranks the label.
	if structCat != catNone && structCat != nameCat {
		return ColumnProposal{
			Column:     ev.Name,
			Strategy:   strategyForCategory(structCat),
			Confidence: ConfidenceHigh,
			Reason:     structuralReason(structCat, matched, sampled),
		}
	}

	if nameCat != catNone {
		confidence := ConfidenceHigh
		if nameCat == catFullName && nameReason == reasonBareNameToken {
			confidence = ConfidenceLow
		}
		// Sampled evidence flatly contradicting an email/phone name guess
		// lowers confidence without discarding the guess.
		if (nameCat == catEmail || nameCat == catPhone) && sampled >= minStructuralSamples && matched == 0 {
			confidence = ConfidenceLow
		}
		return ColumnProposal{
			Column:     ev.Name,
			Strategy:   strategyForCategory(nameCat),
			Confidence: confidence,
			Reason:     nameReason,
		}
	}

	return keepProposal(ev, ConfidenceLow, "no confident classification")
}

func keepProposal(ev ClassificationEvidence, confidence Confidence, reason string) ColumnProposal {
	return ColumnProposal{
		Column:     ev.Name,
		Strategy:   anonymizer.NewKeep(),
		Confidence: confidence,
		Reason:     reason,
	}
}

func strategyForCategory(cat category) anonymizer.Strategy {
	switch cat {
	case catEmail:
		return anonymizer.NewEmail()
	case catPhone:
		return anonymizer.NewPhone()
	case catFirstName:
		return anonymizer.NewFirstName()
	case catLastName:
		return anonymizer.NewLastName()
	case catFullName:
		return anonymizer.NewFullName()
	case catAddress:
		return anonymizer.NewFixed(FixedAddressPayload)
	case catSecret:
		return anonymizer.NewFixed(FixedSecretPayload)
	case catFreeText:
		return anonymizer.NewMask()
	default:
		return anonymizer.NewKeep()
	}
}

const reasonBareNameToken = "column name contains the bare name token"

// classifyName matches the lowercased column name against the category
// keyword sets, in priority order. Identifier, temporal and monetary hits
// come first so that email_verified_at lands on temporal, not email.
func classifyName(name string) (category, string) {
	tokens := nameTokens(name)
	hasTok := func(kws ...string) bool {
		return lo.Some(tokens, kws)
	}
	containsAny := func(kws ...string) bool {
		return lo.SomeBy(kws, func(kw string) bool { return strings.Contains(name, kw) })
	}

	switch {
	case containsAny("uuid", "guid"):
		return catIdentifier, "column name matches identifier keywords"
	case containsAny("date", "time") || strings.HasSuffix(name, "_at") || strings.HasSuffix(name, "_on") ||
		hasTok("dob", "birthday"):
		return catTemporal, "column name matches date/time keywords"
	case containsAny("amount", "price", "total", "balance", "cost", "currency") || hasTok("sum"):
		return catMonetary, "column name matches monetary keywords"
	case containsAny("email", "e_mail"):
		return catEmail, "column name matches email keywords"
	case containsAny("phone", "mobile") || hasTok("tel", "cell", "fax", "msisdn"):
		return catPhone, "column name matches phone keywords"
	case containsAny("first_name", "firstname", "given_name", "givenname") || hasTok("fname"):
		return catFirstName, "column name matches first-name keywords"
	case containsAny("last_name", "lastname", "surname", "family_name", "familyname") || hasTok("lname"):
		return catLastName, "column name matches last-name keywords"
	case containsAny("full_name", "fullname"):
		return catFullName, "column name matches full-name keywords"
	case strings.Contains(name, "name") && !containsAny("user", "file", "domain", "host", "table", "column"):
		return catFullName, reasonBareNameToken
	case containsAny("address", "street") || hasTok("city"):
		return catAddress, "column name matches address keywords"
	case containsAny("password", "passwd", "secret", "token") || hasTok("key", "apikey", "pwd"):
		return catSecret, "column name matches credential keywords"
	case containsAny("description", "comment") || hasTok("note", "notes", "bio", "about", "summary", "remarks"):
		return catFreeText, "column name matches free-text keywords"
	default:
		return catNone, ""
	}
}

// nameTokens splits a column name into lowercase tokens on underscores,
// dashes, spaces and digits, for the keywords too short to substring-match
// safely (tel would otherwise hit hotel).
func nameTokens(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || (r >= '0' && r <= '9')
	})
}
