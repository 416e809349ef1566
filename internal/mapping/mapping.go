// Package mapping validates and pre-fills account to category assignments.
package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/Veraticus/susa-must-flow/internal/model"
)

// ErrInvalidMapping indicates an assignment the backend would not accept.
var ErrInvalidMapping = errors.New("invalid mapping")

// SuggestionThreshold is the minimum similarity for a suggestion.
const SuggestionThreshold = 0.5

// Report is the outcome of validating a set of assignments.
type Report struct {
	// Mappings holds the assignments to submit, keyed by account code.
	Mappings map[string]string
	// Unmapped lists the accounts left without a category.
	Unmapped []model.UnmappedAccount
}

// Complete reports whether every account has a category.
func (r Report) Complete() bool {
	return len(r.Unmapped) == 0
}

// Warning describes the consequence of submitting with unmapped accounts.
func (r Report) Warning() string {
	switch len(r.Unmapped) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("Account %s is not mapped. It will be excluded from %s and %s.",
			r.Unmapped[0].Konto, model.FieldPersonnelCosts, model.FieldOverheadCosts)
	default:
		return fmt.Sprintf("%d accounts are not mapped. They will be excluded from %s and %s.",
			len(r.Unmapped), model.FieldPersonnelCosts, model.FieldOverheadCosts)
	}
}

// Validate checks assignments against a pre-analysis. Blank categories count
// as unmapped. Category names match case-insensitively and are rewritten to
// their canonical spelling.
func Validate(pre *model.PreAnalysisResult, assignments map[string]string) (Report, error) {
	known := make(map[string]bool, len(pre.UnmappedAccounts))
	for _, a := range pre.UnmappedAccounts {
		known[a.Konto] = true
	}

	report := Report{Mappings: make(map[string]string, len(assignments))}

	accounts := make([]string, 0, len(assignments))
	for konto := range assignments {
		accounts = append(accounts, konto)
	}
	sort.Strings(accounts)

	for _, konto := range accounts {
		category := strings.TrimSpace(assignments[konto])
		if !known[konto] {
			return Report{}, fmt.Errorf("%w: account %s is not awaiting a category", ErrInvalidMapping, konto)
		}
		if category == "" {
			continue
		}
		canonical, ok := canonicalCategory(pre.AvailableCategories, category)
		if !ok {
			if best, score := Closest(category, pre.AvailableCategories); score >= SuggestionThreshold {
				return Report{}, fmt.Errorf("%w: unknown category %q for account %s (did you mean %q?)",
					ErrInvalidMapping, category, konto, best)
			}
			return Report{}, fmt.Errorf("%w: unknown category %q for account %s", ErrInvalidMapping, category, konto)
		}
		report.Mappings[konto] = canonical
	}

	for _, a := range pre.UnmappedAccounts {
		if _, ok := report.Mappings[a.Konto]; !ok {
			report.Unmapped = append(report.Unmapped, a)
		}
	}
	return report, nil
}

func canonicalCategory(categories []string, name string) (string, bool) {
	for _, c := range categories {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// Suggestion is a proposed category for one account.
type Suggestion struct {
	Category string
	Score    float64
}

// Suggest proposes a category for each account whose label resembles one of
// the available categories. Accounts without a close match are omitted.
func Suggest(pre *model.PreAnalysisResult) map[string]Suggestion {
	out := make(map[string]Suggestion)
	for _, account := range pre.UnmappedAccounts {
		var best Suggestion
		for _, category := range pre.AvailableCategories {
			score := labelScore(account.Bezeichnung, category)
			if score > best.Score {
				best = Suggestion{Category: category, Score: score}
			}
		}
		if best.Score >= SuggestionThreshold {
			out[account.Konto] = best
		}
	}
	return out
}

// Closest returns the candidate most similar to input and its similarity.
func Closest(input string, candidates []string) (string, float64) {
	var best string
	var bestScore float64
	for _, c := range candidates {
		if s := similarity(normalize(input), normalize(c)); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

// labelScore compares a label with a category as a whole and word by word,
// so "Sonstige Kosten" still matches "Overhead-Kosten".
func labelScore(label, category string) float64 {
	score := similarity(normalize(label), normalize(category))
	for _, lw := range words(label) {
		for _, cw := range words(category) {
			if s := similarity(lw, cw); s > score {
				score = s
			}
		}
	}
	return score
}

func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func words(s string) []string {
	fields := strings.FieldsFunc(normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

// ParseAssignments parses konto=Kategorie pairs as given on the command line.
func ParseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		konto, category, ok := strings.Cut(arg, "=")
		konto = strings.TrimSpace(konto)
		if !ok || konto == "" {
			return nil, fmt.Errorf("%w: %q is not of the form konto=Kategorie", ErrInvalidMapping, arg)
		}
		if _, dup := out[konto]; dup {
			return nil, fmt.Errorf("%w: account %s assigned twice", ErrInvalidMapping, konto)
		}
		out[konto] = strings.TrimSpace(category)
	}
	return out, nil
}
