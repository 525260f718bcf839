package domain

// FormID identifies a regulatory reserving return form, e.g. "RRQ291".
type FormID string

// Form describes a return form and the table that carries its data. Forms
// with an empty Table are narrative or summary forms this engine does not
// populate with rows.
type Form struct {
	ID    FormID    `json:"form_id"`
	Title string    `json:"title"`
	Table TableName `json:"table,omitempty"`
}

var annualForms = []Form{
	{"RRA010", "Control", TableControl},
	{"RRA020", "Exchange rates", TableExchangeRates},
	{"RRA071", "Reserving class mapping", ""},
	{"RRA081", "Reserving class information", ""},
	{"RRA091", "LPT and RITC", ""},
	{"RRA193", "Net claims development", TableClaims},
	{"RRA291", "Gross premium and IBNR", TableIBNRGross},
	{"RRA292", "Net premium and IBNR", TableIBNRNet},
	{"RRA293", "Outstanding and IBNR by pure year", TableClaims},
	{"RRA294", "Catastrophe IBNR", TableIBNRGross},
	{"RRA295", "Unallocated loss adjustment expenses", TableIBNRGross},
	{"RRA391", "Initial expected loss ratios", TableIBNRAnalysis},
	{"RRA910", "Additional information", ""},
	{"RRA990", "Validation summary", ""},
}

var quarterlyBaseForms = []Form{
	{"RRQ010", "Control", TableControl},
	{"RRQ020", "Exchange rates", TableExchangeRates},
	{"RRQ193", "Net claims development", TableClaims},
	{"RRQ291", "Gross premium and IBNR", TableIBNRGross},
	{"RRQ292", "Net premium and IBNR", TableIBNRNet},
	{"RRQ990", "Validation summary", ""},
}

// Q4 returns carry the year-end forms on top of the quarterly base set.
var quarterlyQ4Forms = []Form{
	{"RRQ293", "Outstanding and IBNR by pure year", TableClaims},
	{"RRQ294", "Catastrophe IBNR", TableIBNRGross},
	{"RRQ295", "Unallocated loss adjustment expenses", TableIBNRGross},
}

// AnnualForms returns the full annual form set.
func AnnualForms() []Form { return append([]Form(nil), annualForms...) }

// QuarterlyBaseForms returns the forms required in every quarterly return.
func QuarterlyBaseForms() []Form { return append([]Form(nil), quarterlyBaseForms...) }

// QuarterlyQ4Forms returns the forms added to a Q4 quarterly return.
func QuarterlyQ4Forms() []Form { return append([]Form(nil), quarterlyQ4Forms...) }

// LookupForm finds a form in the catalog.
func LookupForm(id FormID) (Form, bool) {
	for _, set := range [][]Form{annualForms, quarterlyBaseForms, quarterlyQ4Forms} {
		for _, f := range set {
			if f.ID == id {
				return f, true
			}
		}
	}
	return Form{}, false
}

// FormSubmission is one FORM_MANIFEST row: a required form and the rows
// supplied for it.
type FormSubmission struct {
	FormID   FormID    `json:"form_id"`
	Title    string    `json:"title"`
	Table    TableName `json:"table,omitempty"`
	RowCount int       `json:"row_count"`
}
