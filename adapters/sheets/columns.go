package sheets

import "strings"

// ClientColumns names the header cells of a client tab.
type ClientColumns struct {
	Name       string `yaml:"name"`
	Anchor     string `yaml:"anchor"`
	Status     string `yaml:"status"`
	StopDate   string `yaml:"stop_date"`
	LastBilled string `yaml:"last_billed"`
	Base       string `yaml:"base"`
	Extra      string `yaml:"extra"`
	Discount   string `yaml:"discount"`
}

// InvoiceColumns names the header cells of the invoice tab.
type InvoiceColumns struct {
	Reference   string `yaml:"reference"`
	Date        string `yaml:"date"`
	Client      string `yaml:"client"`
	Base        string `yaml:"base"`
	Extra       string `yaml:"extra"`
	Discount    string `yaml:"discount"`
	Total       string `yaml:"total"`
	Status      string `yaml:"status"`
	ServiceType string `yaml:"service_type"`
	Note        string `yaml:"note"`
}

// HomeCareColumns is the layout of the home-care client tab.
var HomeCareColumns = ClientColumns{
	Name:       "Client Name",
	Anchor:     "Service Start Date",
	Status:     "Status",
	StopDate:   "Service End Date",
	LastBilled: "Last Billed Date",
	Base:       "Monthly Rate",
	Extra:      "Extra Charges",
	Discount:   "Discount",
}

// AdmissionColumns is the layout of the patient-admission tab.
var AdmissionColumns = ClientColumns{
	Name:       "Patient Name",
	Anchor:     "Admission Date",
	Status:     "Status",
	StopDate:   "Discharge Date",
	LastBilled: "Last Billed Date",
	Base:       "Monthly Rate",
	Extra:      "Extra Charges",
	Discount:   "Discount",
}

// DefaultInvoiceColumns is the layout of the shared invoice tab.
var DefaultInvoiceColumns = InvoiceColumns{
	Reference:   "Invoice ID",
	Date:        "Date",
	Client:      "Client Name",
	Base:        "Base Amount",
	Extra:       "Extra Charges",
	Discount:    "Discount",
	Total:       "Total Amount",
	Status:      "Status",
	ServiceType: "Service Type",
	Note:        "Notes",
}

// WithDefaults fills empty names from def.
func (c ClientColumns) WithDefaults(def ClientColumns) ClientColumns {
	fill(&c.Name, def.Name)
	fill(&c.Anchor, def.Anchor)
	fill(&c.Status, def.Status)
	fill(&c.StopDate, def.StopDate)
	fill(&c.LastBilled, def.LastBilled)
	fill(&c.Base, def.Base)
	fill(&c.Extra, def.Extra)
	fill(&c.Discount, def.Discount)
	return c
}

// WithDefaults fills empty names from def.
func (c InvoiceColumns) WithDefaults(def InvoiceColumns) InvoiceColumns {
	fill(&c.Reference, def.Reference)
	fill(&c.Date, def.Date)
	fill(&c.Client, def.Client)
	fill(&c.Base, def.Base)
	fill(&c.Extra, def.Extra)
	fill(&c.Discount, def.Discount)
	fill(&c.Total, def.Total)
	fill(&c.Status, def.Status)
	fill(&c.ServiceType, def.ServiceType)
	fill(&c.Note, def.Note)
	return c
}

func fill(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

// activeStatuses are the status cell values that mean billable.
var activeStatuses = map[string]bool{
	"active":   true,
	"admitted": true,
	"ongoing":  true,
	"yes":      true,
	"y":        true,
	"true":     true,
	"1":        true,
}

// IsActiveStatus reports whether a status cell marks the client as active.
func IsActiveStatus(s string) bool {
	return activeStatuses[strings.ToLower(strings.TrimSpace(s))]
}
