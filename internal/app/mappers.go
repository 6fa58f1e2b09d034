package app

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"lender_directory/internal/domain"
)

/********** column registry (single source of truth) **********/

// lenderColumn binds one store column to one domain field. get reads the
// field for writes, set stores a coerced row value, patch returns the value
// to write when the patch touches the field.
type lenderColumn struct {
	name  string
	get   func(l *domain.Lender) any
	set   func(l *domain.Lender, v any) error
	patch func(p *domain.LenderPatch) (any, bool)
}

func strColumn(name string, field func(l *domain.Lender) *string, pf func(p *domain.LenderPatch) *string, nullable bool) lenderColumn {
	return lenderColumn{
		name: name,
		get: func(l *domain.Lender) any {
			s := *field(l)
			if nullable && s == "" {
				return nil
			}
			return s
		},
		set: func(l *domain.Lender, v any) error {
			s, err := asString(v)
			*field(l) = s
			return err
		},
		patch: func(p *domain.LenderPatch) (any, bool) {
			v := pf(p)
			if v == nil {
				return nil, false
			}
			if nullable && *v == "" {
				return nil, true
			}
			return *v, true
		},
	}
}

func numColumn(name string, field func(l *domain.Lender) *float64, pf func(p *domain.LenderPatch) *float64) lenderColumn {
	return lenderColumn{
		name: name,
		get:  func(l *domain.Lender) any { return *field(l) },
		set: func(l *domain.Lender, v any) error {
			f, err := asFloat(v)
			*field(l) = f
			return err
		},
		patch: func(p *domain.LenderPatch) (any, bool) {
			if v := pf(p); v != nil {
				return *v, true
			}
			return nil, false
		},
	}
}

// rangeColumns expands one domain.Range into its min_ and max_ columns.
func rangeColumns(suffix string, field func(l *domain.Lender) *domain.Range, pf func(p *domain.LenderPatch) *domain.Range) []lenderColumn {
	return []lenderColumn{
		numColumn("min_"+suffix,
			func(l *domain.Lender) *float64 { return &field(l).Min },
			func(p *domain.LenderPatch) *float64 {
				if r := pf(p); r != nil {
					return &r.Min
				}
				return nil
			}),
		numColumn("max_"+suffix,
			func(l *domain.Lender) *float64 { return &field(l).Max },
			func(p *domain.LenderPatch) *float64 {
				if r := pf(p); r != nil {
					return &r.Max
				}
				return nil
			}),
	}
}

func boolColumn(name string, field func(l *domain.Lender) *bool, pf func(p *domain.LenderPatch) *bool) lenderColumn {
	return lenderColumn{
		name: name,
		get:  func(l *domain.Lender) any { return *field(l) },
		set: func(l *domain.Lender, v any) error {
			b, err := asBool(v)
			*field(l) = b
			return err
		},
		patch: func(p *domain.LenderPatch) (any, bool) {
			if v := pf(p); v != nil {
				return *v, true
			}
			return nil, false
		},
	}
}

var lenderColumns = func() []lenderColumn {
	cols := []lenderColumn{
		strColumn("name",
			func(l *domain.Lender) *string { return &l.Name },
			func(p *domain.LenderPatch) *string { return p.Name }, false),
		strColumn("logo",
			func(l *domain.Lender) *string { return &l.Logo },
			func(p *domain.LenderPatch) *string { return p.Logo }, true),
		strColumn("website_link",
			func(l *domain.Lender) *string { return &l.WebsiteLink },
			func(p *domain.LenderPatch) *string { return p.WebsiteLink }, false),
		strColumn("phone",
			func(l *domain.Lender) *string { return &l.Phone },
			func(p *domain.LenderPatch) *string { return p.Phone }, false),
		strColumn("email",
			func(l *domain.Lender) *string { return &l.Email },
			func(p *domain.LenderPatch) *string { return p.Email }, false),
	}
	cols = append(cols, rangeColumns("rate",
		func(l *domain.Lender) *domain.Range { return &l.Rate },
		func(p *domain.LenderPatch) *domain.Range { return p.Rate })...)
	cols = append(cols, rangeColumns("loan",
		func(l *domain.Lender) *domain.Range { return &l.Loan },
		func(p *domain.LenderPatch) *domain.Range { return p.Loan })...)
	cols = append(cols, rangeColumns("term",
		func(l *domain.Lender) *domain.Range { return &l.Term },
		func(p *domain.LenderPatch) *domain.Range { return p.Term })...)
	cols = append(cols, rangeColumns("age",
		func(l *domain.Lender) *domain.Range { return &l.Age },
		func(p *domain.LenderPatch) *domain.Range { return p.Age })...)
	cols = append(cols, rangeColumns("loan_processing_time",
		func(l *domain.Lender) *domain.Range { return &l.LoanProcessingTime },
		func(p *domain.LenderPatch) *domain.Range { return p.LoanProcessingTime })...)
	cols = append(cols, rangeColumns("decision_time",
		func(l *domain.Lender) *domain.Range { return &l.DecisionTime },
		func(p *domain.LenderPatch) *domain.Range { return p.DecisionTime })...)
	cols = append(cols,
		numColumn("min_trading_period",
			func(l *domain.Lender) *float64 { return &l.MinTradingPeriod },
			func(p *domain.LenderPatch) *float64 { return p.MinTradingPeriod }),
		numColumn("max_loan_to_value",
			func(l *domain.Lender) *float64 { return &l.MaxLoanToValue },
			func(p *domain.LenderPatch) *float64 { return p.MaxLoanToValue }),
		boolColumn("personal_guarantee",
			func(l *domain.Lender) *bool { return &l.PersonalGuarantee },
			func(p *domain.LenderPatch) *bool { return p.PersonalGuarantee }),
		boolColumn("early_repayment_charges",
			func(l *domain.Lender) *bool { return &l.EarlyRepaymentCharges },
			func(p *domain.LenderPatch) *bool { return p.EarlyRepaymentCharges }),
		strColumn("interest_treatment",
			func(l *domain.Lender) *string { return &l.InterestTreatment },
			func(p *domain.LenderPatch) *string { return p.InterestTreatment }, false),
		lenderColumn{
			name: "covered_location",
			get:  func(l *domain.Lender) any { return append([]string{}, l.CoveredLocation...) },
			set: func(l *domain.Lender, v any) error {
				s, err := asStrings(v)
				l.CoveredLocation = s
				return err
			},
			patch: func(p *domain.LenderPatch) (any, bool) {
				if p.CoveredLocation == nil {
					return nil, false
				}
				return append([]string{}, (*p.CoveredLocation)...), true
			},
		},
		lenderColumn{
			name: "loan_types",
			get:  func(l *domain.Lender) any { return loanTypeStrings(l.LoanTypes) },
			set: func(l *domain.Lender, v any) error {
				s, err := asStrings(v)
				l.LoanTypes = make([]domain.LoanType, 0, len(s))
				for _, t := range s {
					l.LoanTypes = append(l.LoanTypes, domain.LoanType(t))
				}
				return err
			},
			patch: func(p *domain.LenderPatch) (any, bool) {
				if p.LoanTypes == nil {
					return nil, false
				}
				return loanTypeStrings(*p.LoanTypes), true
			},
		},
		strColumn("additional_info",
			func(l *domain.Lender) *string { return &l.AdditionalInfo },
			func(p *domain.LenderPatch) *string { return p.AdditionalInfo }, true),
	)
	return cols
}()

func loanTypeStrings(ts []domain.LoanType) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, string(t))
	}
	return out
}

/********** lender mapping **********/

// lenderToRow maps a lender onto an insertable row. id and timestamps are
// left to the store.
func lenderToRow(l domain.Lender) domain.Row {
	row := make(domain.Row, len(lenderColumns))
	for _, c := range lenderColumns {
		row[c.name] = c.get(&l)
	}
	return row
}

// patchToRow builds the sparse update: only touched columns plus updated_at.
func patchToRow(p domain.LenderPatch, now time.Time) domain.Row {
	row := domain.Row{"updated_at": now}
	for _, c := range lenderColumns {
		if v, ok := c.patch(&p); ok {
			row[c.name] = v
		}
	}
	return row
}

// lenderFromRow maps a stored row back to a lender. Missing columns keep
// their zero value; values of the wrong shape are reported as an error.
func lenderFromRow(row domain.Row) (domain.Lender, error) {
	var l domain.Lender
	var errs []string
	id, err := asString(row["id"])
	if err != nil || id == "" {
		return l, fmt.Errorf("lender row without id: %v", row["id"])
	}
	l.ID = id
	for _, c := range lenderColumns {
		v, ok := row[c.name]
		if !ok || v == nil {
			continue
		}
		if err := c.set(&l, v); err != nil {
			errs = append(errs, c.name+": "+err.Error())
		}
	}
	l.CreatedAt, _ = asTime(row["created_at"])
	l.UpdatedAt, _ = asTime(row["updated_at"])
	if l.CoveredLocation == nil {
		l.CoveredLocation = []string{}
	}
	if l.LoanTypes == nil {
		l.LoanTypes = []domain.LoanType{}
	}
	l.CriteriaSheets = []domain.CriteriaSheet{}
	if len(errs) > 0 {
		return l, fmt.Errorf("lender %s: %s", id, strings.Join(errs, "; "))
	}
	return l, nil
}

/********** criteria sheet mapping **********/

func sheetFromRow(row domain.Row) domain.CriteriaSheet {
	var s domain.CriteriaSheet
	s.ID, _ = asString(row["id"])
	s.LenderID, _ = asString(row["lender_id"])
	s.Name, _ = asString(row["name"])
	s.URL, _ = asString(row["url"])
	s.UploadDate, _ = asTime(row["upload_date"])
	return s
}

func sheetsFromRows(rows []domain.Row) []domain.CriteriaSheet {
	out := make([]domain.CriteriaSheet, 0, len(rows))
	for _, r := range rows {
		out = append(out, sheetFromRow(r))
	}
	// stable presentation: oldest upload first, then id
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UploadDate.Equal(out[j].UploadDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadDate.Before(out[j].UploadDate)
	})
	return out
}

/********** user mapping **********/

func userFromRow(row domain.Row) domain.User {
	var u domain.User
	u.ID, _ = asString(row["id"])
	u.Username, _ = asString(row["username"])
	u.IsAdmin, _ = asBool(row["is_admin"])
	u.CreatedAt, _ = asTime(row["created_at"])
	if t, err := asTime(row["last_login"]); err == nil && !t.IsZero() {
		u.LastLogin = &t
	}
	return u
}

/********** flexible coercion (drivers disagree on value types) **********/

func asString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case fmt.Stringer:
		return t.String(), nil
	case [16]byte: // uuid columns scanned raw
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16]), nil
	case int64, int, float64:
		return fmt.Sprint(t), nil
	}
	return "", fmt.Errorf("not a string: %T", v)
}

func asFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case []byte:
		return parseFloat(string(t))
	case string:
		return parseFloat(t)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func asBool(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case int:
		return t != 0, nil
	case float64:
		return t != 0, nil
	case []byte:
		return strconv.ParseBool(string(t))
	case string:
		return strconv.ParseBool(t)
	}
	return false, fmt.Errorf("not a bool: %T", v)
}

// asStrings accepts native slices, []any (pgx arrays, decoded JSON) and JSON
// text (MySQL JSON columns).
func asStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return append([]string{}, t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			s, err := asString(it)
			if err != nil {
				return out, err
			}
			out = append(out, s)
		}
		return out, nil
	case []byte:
		return decodeJSONStrings(t)
	case string:
		return decodeJSONStrings([]byte(t))
	}
	return []string{}, fmt.Errorf("not a string list: %T", v)
}

func decodeJSONStrings(b []byte) ([]string, error) {
	out := []string{}
	if len(strings.TrimSpace(string(b))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return []string{}, err
	}
	return out, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return t.UTC(), nil
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	}
	return time.Time{}, fmt.Errorf("not a time: %T", v)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}
