package app_test

import (
	"reflect"
	"testing"

	"lender_directory/internal/app"
	"lender_directory/internal/domain"
)

func f64(v float64) *float64 { return &v }

func names(ls []domain.Lender) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.Name)
	}
	return out
}

func sampleLenders() []domain.Lender {
	return []domain.Lender{
		{
			ID: "1", Name: "zenith Finance", AdditionalInfo: "Specialist in heavy plant",
			Loan: domain.Range{Min: 25000, Max: 500000}, Rate: domain.Range{Min: 0.8, Max: 1.2},
			Term: domain.Range{Min: 6, Max: 60}, MaxLoanToValue: 80,
			LoanTypes:       []domain.LoanType{domain.AssetFinance},
			CoveredLocation: []string{"England"},
		},
		{
			ID: "2", Name: "Acme Bridging",
			Loan: domain.Range{Min: 100000, Max: 5000000}, Rate: domain.Range{Min: 0.45, Max: 0.9},
			Term: domain.Range{Min: 1, Max: 18}, MaxLoanToValue: 70,
			LoanTypes:       []domain.LoanType{domain.BridgingLoans, domain.DevelopmentFinance},
			CoveredLocation: []string{"England", "Wales"},
		},
		{
			ID: "3", Name: "borough Bank",
			Loan: domain.Range{Min: 1000, Max: 50000}, Rate: domain.Range{Min: 5, Max: 12},
			Term: domain.Range{Min: 12, Max: 72}, MaxLoanToValue: 0,
			LoanTypes:       []domain.LoanType{domain.BusinessLoans},
			CoveredLocation: []string{"Scotland"},
		},
	}
}

func TestFilter_NoOptionsSortsByNameIgnoringCase(t *testing.T) {
	got := names(app.Filter(sampleLenders(), domain.FilterOptions{}))
	want := []string{"Acme Bridging", "borough Bank", "zenith Finance"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	desc := names(app.Filter(sampleLenders(), domain.FilterOptions{SortDesc: true}))
	if !reflect.DeepEqual(desc, []string{"zenith Finance", "borough Bank", "Acme Bridging"}) {
		t.Fatalf("desc = %v", desc)
	}
}

func TestFilter_RangesMatchOnOverlap(t *testing.T) {
	cases := []struct {
		name string
		opts domain.FilterOptions
		want []string
	}{
		{"min loan above every max", domain.FilterOptions{MinLoan: f64(6000000)}, []string{}},
		{"min loan inside one range", domain.FilterOptions{MinLoan: f64(600000)}, []string{"Acme Bridging"}},
		{"max loan below some mins", domain.FilterOptions{MaxLoan: f64(20000)}, []string{"borough Bank"}},
		{"loan window", domain.FilterOptions{MinLoan: f64(40000), MaxLoan: f64(90000)}, []string{"borough Bank", "zenith Finance"}},
		{"bound equal to edge", domain.FilterOptions{MinLoan: f64(500000)}, []string{"Acme Bridging", "zenith Finance"}},
		{"rate ceiling", domain.FilterOptions{MaxRate: f64(0.5)}, []string{"Acme Bridging"}},
		{"rate floor", domain.FilterOptions{MinRate: f64(2)}, []string{"borough Bank"}},
		{"term window", domain.FilterOptions{MinTerm: f64(20), MaxTerm: f64(24)}, []string{"borough Bank", "zenith Finance"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := names(app.Filter(sampleLenders(), tc.opts))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilter_LTVIsACeiling(t *testing.T) {
	got := names(app.Filter(sampleLenders(), domain.FilterOptions{MaxLTV: f64(70)}))
	if !reflect.DeepEqual(got, []string{"Acme Bridging", "borough Bank"}) {
		t.Fatalf("got %v", got)
	}
}

func TestFilter_LoanTypesAreOred(t *testing.T) {
	opts := domain.FilterOptions{LoanTypes: []domain.LoanType{domain.DevelopmentFinance, domain.AssetFinance}}
	got := names(app.Filter(sampleLenders(), opts))
	if !reflect.DeepEqual(got, []string{"Acme Bridging", "zenith Finance"}) {
		t.Fatalf("got %v", got)
	}
}

func TestFilter_SearchAndLocation(t *testing.T) {
	got := names(app.Filter(sampleLenders(), domain.FilterOptions{SearchTerm: "PLANT"}))
	if !reflect.DeepEqual(got, []string{"zenith Finance"}) {
		t.Fatalf("search in additional info: %v", got)
	}
	got = names(app.Filter(sampleLenders(), domain.FilterOptions{SearchTerm: "bank"}))
	if !reflect.DeepEqual(got, []string{"borough Bank"}) {
		t.Fatalf("search in name: %v", got)
	}
	got = names(app.Filter(sampleLenders(), domain.FilterOptions{Location: "Wales"}))
	if !reflect.DeepEqual(got, []string{"Acme Bridging"}) {
		t.Fatalf("location: %v", got)
	}
	got = names(app.Filter(sampleLenders(), domain.FilterOptions{Location: "Wales", MaxLTV: f64(60)}))
	if len(got) != 0 {
		t.Fatalf("dimensions are anded: %v", got)
	}
}

func TestFilter_StableForEqualNames(t *testing.T) {
	in := []domain.Lender{{ID: "b", Name: "Acme"}, {ID: "a", Name: "acme"}, {ID: "c", Name: "ACME"}}
	got := app.Filter(in, domain.FilterOptions{})
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	if !reflect.DeepEqual(ids, []string{"b", "a", "c"}) {
		t.Fatalf("ties reordered: %v", ids)
	}
}

func TestFilter_IdempotentAndNonMutating(t *testing.T) {
	in := sampleLenders()
	before := sampleLenders()
	opts := domain.FilterOptions{MinLoan: f64(30000), LoanTypes: []domain.LoanType{domain.AssetFinance, domain.BusinessLoans}}

	once := app.Filter(in, opts)
	twice := app.Filter(once, opts)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("filter is not idempotent: %v vs %v", names(once), names(twice))
	}
	if !reflect.DeepEqual(in, before) {
		t.Fatal("input was modified")
	}

	once[0].LoanTypes[0] = "changed"
	if in[2].LoanTypes[0] != domain.BusinessLoans {
		t.Fatal("result shares slices with the input")
	}
}
