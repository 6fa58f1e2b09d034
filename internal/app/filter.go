package app

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"lender_directory/internal/domain"
)

// Filter returns the lenders satisfying every dimension present in opts,
// sorted by name (case-insensitive, stable). The input slice and its
// elements are never modified.
func Filter(lenders []domain.Lender, opts domain.FilterOptions) []domain.Lender {
	preds := predicates(opts)

	out := make([]domain.Lender, 0, len(lenders))
next:
	for _, l := range lenders {
		for _, keep := range preds {
			if !keep(l) {
				continue next
			}
		}
		out = append(out, l.Clone())
	}

	sortByName(out, opts.SortDesc)
	return out
}

type predicate func(l domain.Lender) bool

func predicates(opts domain.FilterOptions) []predicate {
	var ps []predicate

	if term := strings.ToLower(opts.SearchTerm); term != "" {
		ps = append(ps, func(l domain.Lender) bool {
			return strings.Contains(strings.ToLower(l.Name), term) ||
				strings.Contains(strings.ToLower(l.AdditionalInfo), term)
		})
	}

	// Range bounds keep a lender whose range can reach the bound.
	if v := opts.MinLoan; v != nil {
		ps = append(ps, func(l domain.Lender) bool { return l.Loan.Max >= *v })
	}
	if v := opts.MaxLoan; v != nil {
		ps = append(ps, func(l domain.Lender) bool { return l.Loan.Min <= *v })
	}
	if v := opts.MinRate; v != nil {
		ps = append(ps, func(l domain.Lender) bool { return l.Rate.Max >= *v })
	}
	if v := opts.MaxRate; v != nil {
		ps = append(ps, func(l domain.Lender) bool { return l.Rate.Min <= *v })
	}
	if v := opts.MinTerm; v != nil {
		ps = append(ps, func(l domain.Lender) bool { return l.Term.Max >= *v })
	}
	if v := opts.MaxTerm; v != nil {
		ps = append(ps, func(l domain.Lender) bool { return l.Term.Min <= *v })
	}

	// LTV is a single ceiling per lender: direct comparison.
	if v := opts.MaxLTV; v != nil {
		ps = append(ps, func(l domain.Lender) bool { return l.MaxLoanToValue <= *v })
	}

	if len(opts.LoanTypes) > 0 {
		want := append([]domain.LoanType(nil), opts.LoanTypes...)
		ps = append(ps, func(l domain.Lender) bool {
			for _, t := range want {
				if l.HasLoanType(t) {
					return true
				}
			}
			return false
		})
	}

	if loc := opts.Location; loc != "" {
		ps = append(ps, func(l domain.Lender) bool { return l.CoversLocation(loc) })
	}

	return ps
}

// sortByName orders lenders the way a user reads a directory. A collator
// holds scratch buffers, so each call gets its own.
func sortByName(ls []domain.Lender, desc bool) {
	c := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(ls, func(i, j int) bool {
		cmp := c.CompareString(ls[i].Name, ls[j].Name)
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}
