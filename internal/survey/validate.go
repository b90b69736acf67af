package survey

// validate.go holds the section validators shared by every intake path.
//
// A validator receives the raw answers for one section and returns the
// sanitized answers plus any field errors. Sanitizing trims text, collapses
// whitespace in names, maps enum labels to codes and dedupes lists, so a
// record that validates can be persisted without further cleanup.

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	defaultMaxLen = 255
	maxListItems  = 50
	maxItemLen    = 200
)

var (
	validate     = validator.New()
	namePattern  = regexp.MustCompile(`^[\p{L}\p{M}' .\-]+$`)
	phoneCleaner = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "")
)

// SectionValidator validates and sanitizes the answers of one section.
type SectionValidator func(in Record) (Record, FieldErrors)

var validators = map[Section]SectionValidator{
	SectionBasicInfo:      validateFields(SectionBasicInfo, nil),
	SectionOfficeData:     validateFields(SectionOfficeData, nil),
	SectionWorkExperience: validateFields(SectionWorkExperience, checkWorkExperience),
	SectionCompetencies:   validateFields(SectionCompetencies, nil),
	SectionEducation:      validateFields(SectionEducation, checkEducation),
	SectionDSWDTraining:   validateFields(SectionDSWDTraining, checkTraining),
	SectionETEEAPInterest: validateFields(SectionETEEAPInterest, nil),
	SectionConsent:        validateFields(SectionConsent, checkConsent),
}

// ValidateSection runs the validator registered for s.
func ValidateSection(s Section, in Record) (Record, FieldErrors) {
	v, ok := validators[s]
	if !ok {
		errs := FieldErrors{}
		errs.Add("section", fmt.Sprintf("unknown section %q", s))
		return NewRecord(), errs
	}
	return v(in)
}

// ValidateAll runs the seven form section validators over a full record and
// merges their results. Consent is checked separately by callers.
func ValidateAll(in Record) (Record, FieldErrors) {
	out := NewRecord()
	errs := FieldErrors{}
	for _, s := range FormSections {
		clean, e := ValidateSection(s, in)
		out.Merge(clean)
		errs.Merge(e)
	}
	return out, errs
}

// validateFields builds a validator that checks every catalog field of the
// section and then applies an optional cross-field check.
func validateFields(s Section, cross func(Record, FieldErrors)) SectionValidator {
	return func(in Record) (Record, FieldErrors) {
		out := NewRecord()
		errs := FieldErrors{}

		for _, f := range SectionFields(s) {
			if f.Kind == KindMulti {
				if list := checkList(f, in.List(f.Key), errs); len(list) > 0 {
					out.SetList(f.Key, list)
				}
				continue
			}
			if v, ok := checkScalar(f, in.Get(f.Key), errs); ok && v != "" {
				out.Set(f.Key, v)
			}
		}

		if cross != nil {
			cross(out, errs)
		}
		return out, errs
	}
}

func checkScalar(f Field, raw string, errs FieldErrors) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		if f.Required {
			errs.Add(f.Key, "This field is required.")
			return "", false
		}
		return "", true
	}

	switch f.Kind {
	case KindEnum, KindBool:
		code, ok := NormalizeOption(f, v)
		if !ok {
			errs.Add(f.Key, "Please select a valid option.")
			return "", false
		}
		return code, true
	}

	maxLen := f.MaxLen
	if maxLen == 0 {
		maxLen = defaultMaxLen
	}
	if utf8.RuneCountInString(v) > maxLen {
		errs.Add(f.Key, fmt.Sprintf("Must be at most %d characters.", maxLen))
		return "", false
	}

	switch f.Format {
	case FormatName:
		v = CollapseSpace(v)
		if !namePattern.MatchString(v) {
			errs.Add(f.Key, "Only letters, spaces, hyphens, apostrophes and periods are allowed.")
			return "", false
		}
	case FormatEmail:
		v = NormalizeEmail(v)
		if err := validate.Var(v, "email"); err != nil {
			errs.Add(f.Key, "Please enter a valid email address.")
			return "", false
		}
	case FormatPhone:
		digits := phoneCleaner.Replace(v)
		if err := validate.Var(digits, "number,min=10,max=13"); err != nil {
			errs.Add(f.Key, "Please enter a valid mobile number.")
			return "", false
		}
		v = digits
	}
	return v, true
}

func checkList(f Field, raw []string, errs FieldErrors) []string {
	list := Dedupe(raw)
	if len(list) > maxListItems {
		errs.Add(f.Key, fmt.Sprintf("Select at most %d items.", maxListItems))
		return nil
	}
	for _, item := range list {
		if utf8.RuneCountInString(item) > maxItemLen {
			errs.Add(f.Key, fmt.Sprintf("Each item must be at most %d characters.", maxItemLen))
			return nil
		}
	}
	if f.Required && len(list) == 0 {
		errs.Add(f.Key, "Select at least one item.")
	}
	return list
}

func checkWorkExperience(out Record, errs FieldErrors) {
	for _, k := range WorkExperienceFields {
		if _, failed := errs[k]; failed || out.Get(k) != "" {
			return
		}
	}
	errs.Add(FieldYearsInGovernment, "Provide at least one of years in government, years in DSWD, or years in social work.")
}

var degreeLevels = map[string]bool{"bachelors": true, "masters": true, "doctorate": true}

func checkEducation(out Record, errs FieldErrors) {
	if degreeLevels[out.Get(FieldHighestEducation)] && out.Get(FieldDegreeProgram) == "" {
		errs.Add(FieldDegreeProgram, "Degree program is required for this educational attainment.")
	}
}

func checkTraining(out Record, errs FieldErrors) {
	if out.Get(FieldAttendedTraining) == "no" && len(out.List(FieldCoursesTaken)) > 0 {
		errs.Add(FieldCoursesTaken, "Courses can only be listed when DSWD training was attended.")
	}
}

func checkConsent(out Record, errs FieldErrors) {
	if _, failed := errs[FieldConsentGiven]; failed {
		return
	}
	if out.Get(FieldConsentGiven) != "yes" {
		errs.Add(FieldConsentGiven, "Consent is required to continue.")
	}
}
