package httpserver

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"lender_directory/internal/domain"
)

// parseFilter turns query parameters into FilterOptions. Blank numeric
// parameters impose no bound; malformed ones are rejected.
func parseFilter(q url.Values) (domain.FilterOptions, error) {
	opts := domain.FilterOptions{
		SearchTerm: strings.TrimSpace(q.Get("q")),
		Location:   strings.TrimSpace(q.Get("location")),
	}

	bounds := []struct {
		key string
		dst **float64
	}{
		{"minLoan", &opts.MinLoan},
		{"maxLoan", &opts.MaxLoan},
		{"minRate", &opts.MinRate},
		{"maxRate", &opts.MaxRate},
		{"minTerm", &opts.MinTerm},
		{"maxTerm", &opts.MaxTerm},
		{"maxLTV", &opts.MaxLTV},
	}
	for _, b := range bounds {
		raw := strings.TrimSpace(q.Get(b.key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.FilterOptions{}, fmt.Errorf("%s: %q is not a number", b.key, raw)
		}
		*b.dst = &v
	}

	for _, raw := range q["loanType"] {
		for _, part := range strings.Split(raw, ",") {
			t := domain.LoanType(strings.TrimSpace(part))
			if t == "" {
				continue
			}
			if !t.Valid() {
				return domain.FilterOptions{}, fmt.Errorf("loanType: unknown value %q", t)
			}
			opts.LoanTypes = append(opts.LoanTypes, t)
		}
	}

	switch strings.ToLower(q.Get("sort")) {
	case "", "asc":
	case "desc":
		opts.SortDesc = true
	default:
		return domain.FilterOptions{}, fmt.Errorf("sort: must be asc or desc")
	}
	return opts, nil
}
