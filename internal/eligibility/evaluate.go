package eligibility

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/circular"
)

// predicate accumulates sub-checks of one requirement. A failure is final; an
// undecidable sub-check turns a pass into unknown.
type predicate struct {
	evaluated bool
	unknown   bool
	failed    bool
}

func (p *predicate) pass() {
	p.evaluated = true
}

func (p *predicate) fail() {
	p.evaluated = true
	p.failed = true
}

func (p *predicate) undecided() {
	p.evaluated = true
	p.unknown = true
}

func (p predicate) value() *bool {
	switch {
	case !p.evaluated:
		return nil
	case p.failed:
		return boolPtr(false)
	case p.unknown:
		return nil
	default:
		return boolPtr(true)
	}
}

type evaluation struct {
	status  Status
	reasons []string
}

func (e *evaluation) failWith(reason string) {
	e.status = StatusNotEligible
	e.reasons = append(e.reasons, reason)
}

// Evaluate compares the applicant with the snapshot and, when given, one of its
// departments. It is deterministic for a fixed now. Zero thresholds count as
// unspecified. The returned check has no ID yet.
func Evaluate(applicant Applicant, snapshot *analysis.Snapshot, department *analysis.DepartmentRow, now time.Time) Check {
	check := Check{
		ApplicantID: applicant.ID,
		Status:      StatusEligible,
		CreatedAt:   now,
	}
	if snapshot == nil {
		return check
	}
	check.SnapshotID = snapshot.ID
	if department != nil {
		id := department.ID
		check.DepartmentID = &id
	}

	c := snapshot.Circular
	eval := &evaluation{status: StatusEligible}

	var generalGPA predicate
	checkGPA(eval, &generalGPA, "SSC", applicant.SSCGPA, c.GeneralGPA.SSC)
	checkGPA(eval, &generalGPA, "HSC", applicant.HSCGPA, c.GeneralGPA.HSC)
	check.MeetsGeneralGPA = generalGPA.value()

	var years predicate
	checkYear(eval, &years, "SSC", applicant.SSCYear, c.Years.SSCYears)
	checkYear(eval, &years, "HSC", applicant.HSCYear, c.Years.HSCYears)
	check.MeetsYearRequirement = years.value()

	if department != nil {
		check.MeetsDepartmentGPA, check.GPADifference = checkDepartmentGPA(eval, applicant, department)
	}

	check.MeetsAgeRequirement = checkAge(eval, applicant.DateOfBirth, c.AgeLimitMin, c.AgeLimitMax, now)
	check.MeetsNationalityRequirement = checkNationality(eval, applicant.Nationality, c.NationalityRequirement)

	check.Status = eval.status
	check.MissingRequirements = strings.Join(eval.reasons, "; ")
	return check
}

func checkGPA(eval *evaluation, p *predicate, level, applicantGPA string, minimum *float64) {
	if !specified(minimum) || strings.TrimSpace(applicantGPA) == "" {
		return
	}
	gpa, ok := circular.ParseGPA(applicantGPA)
	if !ok {
		p.undecided()
		return
	}
	if gpa < *minimum {
		p.fail()
		eval.failWith(fmt.Sprintf("%s GPA requirement not met: %s < %s", level, formatNumber(gpa), formatNumber(*minimum)))
		return
	}
	p.pass()
}

func checkYear(eval *evaluation, p *predicate, level, applicantYear string, allowed []string) {
	year := strings.TrimSpace(applicantYear)
	if len(allowed) == 0 || year == "" {
		return
	}
	if !slices.Contains(allowed, year) {
		p.fail()
		eval.failWith(fmt.Sprintf("%s year %s not in allowed years: [%s]", level, year, strings.Join(allowed, ", ")))
		return
	}
	p.pass()
}

func checkDepartmentGPA(eval *evaluation, applicant Applicant, department *analysis.DepartmentRow) (*bool, *float64) {
	minimum := department.MinGPATotal
	if !specified(minimum) || strings.TrimSpace(applicant.SSCGPA) == "" || strings.TrimSpace(applicant.HSCGPA) == "" {
		return nil, nil
	}
	ssc, sscOK := circular.ParseGPA(applicant.SSCGPA)
	hsc, hscOK := circular.ParseGPA(applicant.HSCGPA)
	if !sscOK || !hscOK {
		return nil, nil
	}

	total := ssc + hsc
	if total < *minimum {
		eval.failWith(fmt.Sprintf("Department GPA requirement not met: %s < %s", formatNumber(total), formatNumber(*minimum)))
		return boolPtr(false), nil
	}
	diff := total - *minimum
	return boolPtr(true), &diff
}

func checkAge(eval *evaluation, dateOfBirth *time.Time, minAge, maxAge *int, now time.Time) *bool {
	hasMin := minAge != nil && *minAge != 0
	hasMax := maxAge != nil && *maxAge != 0
	if (!hasMin && !hasMax) || dateOfBirth == nil {
		return nil
	}

	age := AgeAt(*dateOfBirth, now)
	switch {
	case hasMin && age < *minAge:
		eval.failWith(fmt.Sprintf("Age requirement not met: %d < %d", age, *minAge))
		return boolPtr(false)
	case hasMax && age > *maxAge:
		eval.failWith(fmt.Sprintf("Age requirement not met: %d > %d", age, *maxAge))
		return boolPtr(false)
	default:
		return boolPtr(true)
	}
}

func checkNationality(eval *evaluation, applicantNationality string, requirement *string) *bool {
	if requirement == nil || strings.TrimSpace(*requirement) == "" || strings.TrimSpace(applicantNationality) == "" {
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(applicantNationality), strings.TrimSpace(*requirement)) {
		eval.failWith("Nationality requirement not met")
		return boolPtr(false)
	}
	return boolPtr(true)
}

// AgeAt returns the age in whole years on the calendar date of now.
func AgeAt(dateOfBirth, now time.Time) int {
	age := now.Year() - dateOfBirth.Year()
	if now.Month() < dateOfBirth.Month() || (now.Month() == dateOfBirth.Month() && now.Day() < dateOfBirth.Day()) {
		age--
	}
	return age
}

func specified(v *float64) bool {
	return v != nil && *v != 0
}

// formatNumber renders whole numbers with one decimal place ("3.0") and other
// values in their shortest form.
func formatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func boolPtr(v bool) *bool {
	return &v
}
