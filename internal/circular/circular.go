// Package circular holds the canonical admission requirement structure and the
// normalizer that builds it from raw model output.
package circular

// ApplicationPeriod is the application window announced by the circular.
type ApplicationPeriod struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// GPARequirement is the aggregate GPA threshold set.
type GPARequirement struct {
	SSC            *float64 `json:"ssc"`
	HSC            *float64 `json:"hsc"`
	Total          *float64 `json:"total"`
	With4thSubject *bool    `json:"with4thSubject"`
}

// YearRequirement lists the allowed passing years. Both lists are never nil.
type YearRequirement struct {
	SSCYears []string `json:"sscYears"`
	HSCYears []string `json:"hscYears"`
}

// Department is a department (or unit) scoped requirement set.
type Department struct {
	Name                     string   `json:"departmentName"`
	Code                     *string  `json:"departmentCode"`
	MinGPASSC                *float64 `json:"minGpaSSC"`
	MinGPAHSC                *float64 `json:"minGpaHSC"`
	MinGPATotal              *float64 `json:"minGpaTotal"`
	RequiredSubjects         []string `json:"requiredSubjects"`
	SpecialConditions        *string  `json:"specialConditions"`
	SeatsTotal               *int     `json:"seatsTotal"`
	SeatsQuotaFreedomFighter *int     `json:"seatsQuotaFreedomFighter"`
	SeatsQuotaTribal         *int     `json:"seatsQuotaTribal"`
	SeatsQuotaOther          *int     `json:"seatsQuotaOther"`
	AdmissionTestSubjects    []string `json:"admissionTestSubjects"`
	AdmissionTestFormat      *string  `json:"admissionTestFormat"`
}

// Circular is the canonical requirement object extracted from one admission circular.
// Every list field is non-nil after Normalize.
type Circular struct {
	UniversityName string `json:"universityName"`
	// CircularLink is always the URL that was requested, never a value proposed by the model.
	CircularLink string `json:"circularLink"`
	WebsiteID    string `json:"websiteId"`

	ApplicationPeriod ApplicationPeriod `json:"applicationPeriod"`

	ExamDate     *string `json:"examDate"`
	ExamTime     *string `json:"examTime"`
	ExamVenue    *string `json:"examVenue"`
	ExamDuration *string `json:"examDuration"`

	GeneralGPA  GPARequirement  `json:"generalGpaRequirements"`
	Years       YearRequirement `json:"yearRequirements"`
	Departments []Department    `json:"departmentWiseRequirements"`

	ApplicationFee *string `json:"applicationFee"`
	RawSummary     *string `json:"rawSummary"`

	AgeLimitMin            *int    `json:"ageLimitMin"`
	AgeLimitMax            *int    `json:"ageLimitMax"`
	NationalityRequirement *string `json:"nationalityRequirement"`
	GenderRequirement      *string `json:"genderRequirement"`

	ContactEmail   *string `json:"contactEmail"`
	ContactPhone   *string `json:"contactPhone"`
	ContactAddress *string `json:"contactAddress"`

	RequiredDocuments []string `json:"requiredDocuments"`

	QuotaFreedomFighter *int    `json:"quotaFreedomFighter"`
	QuotaTribal         *int    `json:"quotaTribal"`
	QuotaOther          *string `json:"quotaOther"`

	AdditionalNotes *string `json:"additionalNotes"`
}

// EnsureLists replaces nil list fields with empty lists, including department subject lists.
func (c *Circular) EnsureLists() {
	if c == nil {
		return
	}
	if c.Years.SSCYears == nil {
		c.Years.SSCYears = []string{}
	}
	if c.Years.HSCYears == nil {
		c.Years.HSCYears = []string{}
	}
	if c.RequiredDocuments == nil {
		c.RequiredDocuments = []string{}
	}
	if c.Departments == nil {
		c.Departments = []Department{}
	}
	for i := range c.Departments {
		c.Departments[i].EnsureLists()
	}
}

// EnsureLists replaces nil subject lists with empty lists.
func (d *Department) EnsureLists() {
	if d == nil {
		return
	}
	if d.RequiredSubjects == nil {
		d.RequiredSubjects = []string{}
	}
	if d.AdmissionTestSubjects == nil {
		d.AdmissionTestSubjects = []string{}
	}
}
