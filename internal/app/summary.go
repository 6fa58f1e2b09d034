package app

import (
	"math"
	"sort"

	"lender_directory/internal/domain"
)

const summaryTop = 5

type LoanTypeCount struct {
	Type  domain.LoanType `json:"type"`
	Count int             `json:"count"`
}

// DashboardSummary is the at-a-glance view of the directory for one user.
type DashboardSummary struct {
	TotalLenders        int             `json:"totalLenders"`
	TopLoanTypes        []LoanTypeCount `json:"topLoanTypes"`
	AvgMinRate          float64         `json:"avgMinRate"`
	AvgMaxLoan          float64         `json:"avgMaxLoan"`
	TotalCriteriaSheets int             `json:"totalCriteriaSheets"`
	FavouriteCount      int             `json:"favouriteCount"`
	RecentLenders       []domain.Lender `json:"recentLenders"`
}

// Summary aggregates lenders. Averages are zero for an empty list; only
// favourite ids that name a listed lender are counted.
func Summary(lenders []domain.Lender, favIDs []string) DashboardSummary {
	s := DashboardSummary{
		TotalLenders:  len(lenders),
		TopLoanTypes:  make([]LoanTypeCount, 0, len(domain.AllLoanTypes)),
		RecentLenders: []domain.Lender{},
	}

	for _, t := range domain.AllLoanTypes {
		n := 0
		for _, l := range lenders {
			if l.HasLoanType(t) {
				n++
			}
		}
		s.TopLoanTypes = append(s.TopLoanTypes, LoanTypeCount{Type: t, Count: n})
	}
	// ties keep display order
	sort.SliceStable(s.TopLoanTypes, func(i, j int) bool {
		return s.TopLoanTypes[i].Count > s.TopLoanTypes[j].Count
	})
	if len(s.TopLoanTypes) > summaryTop {
		s.TopLoanTypes = s.TopLoanTypes[:summaryTop]
	}

	ids := make(map[string]bool, len(lenders))
	var sumRate, sumLoan float64
	for _, l := range lenders {
		ids[l.ID] = true
		sumRate += l.Rate.Min
		sumLoan += l.Loan.Max
		s.TotalCriteriaSheets += len(l.CriteriaSheets)
	}
	if n := float64(len(lenders)); n > 0 {
		s.AvgMinRate = math.Round(sumRate/n*100) / 100
		s.AvgMaxLoan = math.Round(sumLoan / n)
	}

	for _, id := range favIDs {
		if ids[id] {
			s.FavouriteCount++
		}
	}

	recent := make([]domain.Lender, len(lenders))
	for i, l := range lenders {
		recent[i] = l.Clone()
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > summaryTop {
		recent = recent[:summaryTop]
	}
	s.RecentLenders = append(s.RecentLenders, recent...)
	return s
}
