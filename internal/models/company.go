package models

// OptOutMethod is how a company accepts likeness opt-out requests.
type OptOutMethod string

const (
	MethodEmail    OptOutMethod = "email"    // automatable: we send the notice
	MethodWebForm  OptOutMethod = "web_form" // user fills the company's form
	MethodSettings OptOutMethod = "settings" // toggle inside the company's product
)

// CompanyModel is one entry in the registry of AI companies that can be
// asked to exclude a contributor's likeness from training.
type CompanyModel struct {
	Base
	Slug         string       `json:"slug"           gorm:"uniqueIndex;not null"`
	Name         string       `json:"name"           gorm:"not null"`
	OptOutMethod OptOutMethod `json:"opt_out_method" gorm:"default:email"`
	OptOutEmail  string       `json:"opt_out_email"`
	PolicyURL    string       `json:"policy_url"`
	Active       bool         `json:"active"         gorm:"default:true"`
}

func (CompanyModel) TableName() string { return "companies" }

// Automatable reports whether a notice can be dispatched without user action.
func (c *CompanyModel) Automatable() bool {
	return c.OptOutMethod == MethodEmail && c.OptOutEmail != ""
}
