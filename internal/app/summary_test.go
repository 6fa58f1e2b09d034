package app_test

import (
	"fmt"
	"testing"
	"time"

	"lender_directory/internal/app"
	"lender_directory/internal/domain"
)

func TestSummary_EmptyListHasZeroAverages(t *testing.T) {
	s := app.Summary(nil, []string{"gone"})
	if s.TotalLenders != 0 || s.AvgMinRate != 0 || s.AvgMaxLoan != 0 || s.FavouriteCount != 0 {
		t.Fatalf("summary = %+v", s)
	}
	if len(s.TopLoanTypes) != 5 || len(s.RecentLenders) != 0 {
		t.Fatalf("top=%d recent=%d", len(s.TopLoanTypes), len(s.RecentLenders))
	}
}

func TestSummary(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var lenders []domain.Lender
	for i := 0; i < 7; i++ {
		l := domain.Lender{
			ID:        fmt.Sprintf("l%d", i),
			Name:      fmt.Sprintf("Lender %d", i),
			Rate:      domain.Range{Min: 0.5 + float64(i)*0.1, Max: 2},
			Loan:      domain.Range{Min: 1000, Max: 100000 * float64(i+1)},
			LoanTypes: []domain.LoanType{domain.BridgingLoans},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if i%2 == 0 {
			l.LoanTypes = append(l.LoanTypes, domain.AssetFinance)
			l.CriteriaSheets = []domain.CriteriaSheet{{ID: "s" + l.ID}}
		}
		if i == 3 {
			l.LoanTypes = append(l.LoanTypes, domain.TradeFinance)
		}
		lenders = append(lenders, l)
	}

	s := app.Summary(lenders, []string{"l1", "l4", "deleted"})

	if s.TotalLenders != 7 || s.TotalCriteriaSheets != 4 || s.FavouriteCount != 2 {
		t.Fatalf("counts = %+v", s)
	}
	// rates 0.5..1.1, mean 0.8; loans 100k..700k, mean 400k
	if s.AvgMinRate != 0.8 || s.AvgMaxLoan != 400000 {
		t.Fatalf("averages = %v / %v", s.AvgMinRate, s.AvgMaxLoan)
	}

	want := []app.LoanTypeCount{
		{Type: domain.BridgingLoans, Count: 7},
		{Type: domain.AssetFinance, Count: 4},
		{Type: domain.TradeFinance, Count: 1},
		{Type: domain.BusinessLoans, Count: 0},
		{Type: domain.InvoiceFinance, Count: 0},
	}
	if len(s.TopLoanTypes) != len(want) {
		t.Fatalf("top = %+v", s.TopLoanTypes)
	}
	for i := range want {
		if s.TopLoanTypes[i] != want[i] {
			t.Fatalf("top[%d] = %+v, want %+v", i, s.TopLoanTypes[i], want[i])
		}
	}

	if len(s.RecentLenders) != 5 || s.RecentLenders[0].ID != "l6" || s.RecentLenders[4].ID != "l2" {
		t.Fatalf("recent = %v", names(s.RecentLenders))
	}
	s.RecentLenders[0].LoanTypes[0] = "changed"
	if lenders[6].LoanTypes[0] != domain.BridgingLoans {
		t.Fatal("recent lenders share slices with the input")
	}
}
