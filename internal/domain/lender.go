package domain

import "time"

type LoanType string

const (
	BusinessLoans       LoanType = "Business Loans"
	InvoiceFinance      LoanType = "Invoice Finance"
	TradeFinance        LoanType = "Trade Finance"
	AssetFinance        LoanType = "Asset Finance"
	CommercialMortgages LoanType = "Commercial Mortgages"
	BridgingLoans       LoanType = "Bridging Loans"
	BTLMortgages        LoanType = "BTL Mortgages"
	DevelopmentFinance  LoanType = "Development Finance"
)

// AllLoanTypes is the closed set of loan types a lender may offer, in display order.
var AllLoanTypes = []LoanType{
	BusinessLoans,
	InvoiceFinance,
	TradeFinance,
	AssetFinance,
	CommercialMortgages,
	BridgingLoans,
	BTLMortgages,
	DevelopmentFinance,
}

func (t LoanType) Valid() bool {
	for _, v := range AllLoanTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Range is an inclusive (min, max) pair.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Lender struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Logo        string `json:"logo,omitempty"`
	WebsiteLink string `json:"websiteLink"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`

	Rate               Range `json:"rate"`
	Loan               Range `json:"loan"`
	Term               Range `json:"term"`
	Age                Range `json:"age"`
	LoanProcessingTime Range `json:"loanProcessingTime"`
	DecisionTime       Range `json:"decisionTime"`

	MinTradingPeriod float64 `json:"minTradingPeriod"`
	MaxLoanToValue   float64 `json:"maxLoanToValue"`

	PersonalGuarantee     bool   `json:"personalGuarantee"`
	EarlyRepaymentCharges bool   `json:"earlyRepaymentCharges"`
	InterestTreatment     string `json:"interestTreatment"`

	CoveredLocation []string        `json:"coveredLocation"`
	LoanTypes       []LoanType      `json:"loanTypes"`
	CriteriaSheets  []CriteriaSheet `json:"criteriaSheets"`
	AdditionalInfo  string          `json:"additionalInfo,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy that shares no slices with l.
func (l Lender) Clone() Lender {
	out := l
	out.CoveredLocation = append([]string(nil), l.CoveredLocation...)
	out.LoanTypes = append([]LoanType(nil), l.LoanTypes...)
	out.CriteriaSheets = append([]CriteriaSheet(nil), l.CriteriaSheets...)
	return out
}

func (l Lender) HasLoanType(t LoanType) bool {
	for _, v := range l.LoanTypes {
		if v == t {
			return true
		}
	}
	return false
}

func (l Lender) CoversLocation(loc string) bool {
	for _, v := range l.CoveredLocation {
		if v == loc {
			return true
		}
	}
	return false
}

// CriteriaSheet is a PDF attached to exactly one lender.
type CriteriaSheet struct {
	ID         string    `json:"id"`
	LenderID   string    `json:"lenderId"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	UploadDate time.Time `json:"uploadDate"`
}

// Document is a file waiting to be attached to a lender.
type Document struct {
	Name        string `json:"name"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data"`
}

// LenderInput carries everything needed to create a lender. Documents are
// uploaded after the lender row exists.
type LenderInput struct {
	Name        string `json:"name"`
	Logo        string `json:"logo,omitempty"`
	WebsiteLink string `json:"websiteLink"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`

	Rate               Range `json:"rate"`
	Loan               Range `json:"loan"`
	Term               Range `json:"term"`
	Age                Range `json:"age"`
	LoanProcessingTime Range `json:"loanProcessingTime"`
	DecisionTime       Range `json:"decisionTime"`

	MinTradingPeriod float64 `json:"minTradingPeriod"`
	MaxLoanToValue   float64 `json:"maxLoanToValue"`

	PersonalGuarantee     bool   `json:"personalGuarantee"`
	EarlyRepaymentCharges bool   `json:"earlyRepaymentCharges"`
	InterestTreatment     string `json:"interestTreatment"`

	CoveredLocation []string   `json:"coveredLocation"`
	LoanTypes       []LoanType `json:"loanTypes"`
	AdditionalInfo  string     `json:"additionalInfo,omitempty"`

	Documents []Document `json:"documents,omitempty"`
}

// Lender projects the input onto a Lender without identity or timestamps.
func (in LenderInput) Lender() Lender {
	return Lender{
		Name:                  in.Name,
		Logo:                  in.Logo,
		WebsiteLink:           in.WebsiteLink,
		Phone:                 in.Phone,
		Email:                 in.Email,
		Rate:                  in.Rate,
		Loan:                  in.Loan,
		Term:                  in.Term,
		Age:                   in.Age,
		LoanProcessingTime:    in.LoanProcessingTime,
		DecisionTime:          in.DecisionTime,
		MinTradingPeriod:      in.MinTradingPeriod,
		MaxLoanToValue:        in.MaxLoanToValue,
		PersonalGuarantee:     in.PersonalGuarantee,
		EarlyRepaymentCharges: in.EarlyRepaymentCharges,
		InterestTreatment:     in.InterestTreatment,
		CoveredLocation:       append([]string(nil), in.CoveredLocation...),
		LoanTypes:             append([]LoanType(nil), in.LoanTypes...),
		AdditionalInfo:        in.AdditionalInfo,
	}
}

// LenderPatch is a sparse update: nil fields are left untouched.
type LenderPatch struct {
	Name        *string `json:"name,omitempty"`
	Logo        *string `json:"logo,omitempty"`
	WebsiteLink *string `json:"websiteLink,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty"`

	Rate               *Range `json:"rate,omitempty"`
	Loan               *Range `json:"loan,omitempty"`
	Term               *Range `json:"term,omitempty"`
	Age                *Range `json:"age,omitempty"`
	LoanProcessingTime *Range `json:"loanProcessingTime,omitempty"`
	DecisionTime       *Range `json:"decisionTime,omitempty"`

	MinTradingPeriod *float64 `json:"minTradingPeriod,omitempty"`
	MaxLoanToValue   *float64 `json:"maxLoanToValue,omitempty"`

	PersonalGuarantee     *bool   `json:"personalGuarantee,omitempty"`
	EarlyRepaymentCharges *bool   `json:"earlyRepaymentCharges,omitempty"`
	InterestTreatment     *string `json:"interestTreatment,omitempty"`

	CoveredLocation *[]string   `json:"coveredLocation,omitempty"`
	LoanTypes       *[]LoanType `json:"loanTypes,omitempty"`
	AdditionalInfo  *string     `json:"additionalInfo,omitempty"`

	Documents []Document `json:"documents,omitempty"`
}

// Apply returns l with every non-nil patch field applied.
func (p LenderPatch) Apply(l Lender) Lender {
	out := l.Clone()
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setRange := func(dst *Range, v *Range) {
		if v != nil {
			*dst = *v
		}
	}
	setStr(&out.Name, p.Name)
	setStr(&out.Logo, p.Logo)
	setStr(&out.WebsiteLink, p.WebsiteLink)
	setStr(&out.Phone, p.Phone)
	setStr(&out.Email, p.Email)
	setRange(&out.Rate, p.Rate)
	setRange(&out.Loan, p.Loan)
	setRange(&out.Term, p.Term)
	setRange(&out.Age, p.Age)
	setRange(&out.LoanProcessingTime, p.LoanProcessingTime)
	setRange(&out.DecisionTime, p.DecisionTime)
	if p.MinTradingPeriod != nil {
		out.MinTradingPeriod = *p.MinTradingPeriod
	}
	if p.MaxLoanToValue != nil {
		out.MaxLoanToValue = *p.MaxLoanToValue
	}
	if p.PersonalGuarantee != nil {
		out.PersonalGuarantee = *p.PersonalGuarantee
	}
	if p.EarlyRepaymentCharges != nil {
		out.EarlyRepaymentCharges = *p.EarlyRepaymentCharges
	}
	setStr(&out.InterestTreatment, p.InterestTreatment)
	if p.CoveredLocation != nil {
		out.CoveredLocation = append([]string(nil), (*p.CoveredLocation)...)
	}
	if p.LoanTypes != nil {
		out.LoanTypes = append([]LoanType(nil), (*p.LoanTypes)...)
	}
	setStr(&out.AdditionalInfo, p.AdditionalInfo)
	return out
}

// FilterOptions is a transient query. A nil bound or empty value imposes no constraint.
type FilterOptions struct {
	SearchTerm string     `json:"searchTerm,omitempty"`
	MinLoan    *float64   `json:"minLoan,omitempty"`
	MaxLoan    *float64   `json:"maxLoan,omitempty"`
	MinRate    *float64   `json:"minRate,omitempty"`
	MaxRate    *float64   `json:"maxRate,omitempty"`
	MinTerm    *float64   `json:"minTerm,omitempty"`
	MaxTerm    *float64   `json:"maxTerm,omitempty"`
	MaxLTV     *float64   `json:"maxLTV,omitempty"`
	LoanTypes  []LoanType `json:"loanTypes,omitempty"`
	Location   string     `json:"location,omitempty"`
	SortDesc   bool       `json:"sortDesc,omitempty"`
}
