// Package survey defines the survey field catalog, the per-section validators
// shared by the interactive form, the JSON API and the CSV importer, and the
// normalization helpers that turn human-readable labels back into internal codes.
//
// # Field Catalog
//
// Every answerable field has an internal key (used in JSON, the database and
// the draft store) and a canonical export label (used as the CSV header). The
// catalog order is the column order of the CSV template and data export.
//
// # Sections
//
// Fields are grouped into the seven form sections. Each section has exactly one
// validator; a submission is valid only when every section validates.
package survey

import "strings"

// Section identifies one step of the multi-step survey form.
type Section string

const (
	SectionConsent        Section = "consent"
	SectionBasicInfo      Section = "basic_info"
	SectionOfficeData     Section = "office_data"
	SectionWorkExperience Section = "work_experience"
	SectionCompetencies   Section = "competencies"
	SectionEducation      Section = "education"
	SectionDSWDTraining   Section = "dswd_training"
	SectionETEEAPInterest Section = "eteeap_interest"
)

// FormSections lists the answer sections in form order (consent excluded).
var FormSections = []Section{
	SectionBasicInfo,
	SectionOfficeData,
	SectionWorkExperience,
	SectionCompetencies,
	SectionEducation,
	SectionDSWDTraining,
	SectionETEEAPInterest,
}

// WizardSteps is the order of steps in the draft wizard.
var WizardSteps = append([]Section{SectionConsent}, FormSections...)

// StepIndex returns the 1-based wizard position of a section, or 0 if unknown.
func StepIndex(s Section) int {
	for i, step := range WizardSteps {
		if step == s {
			return i + 1
		}
	}
	return 0
}

// Kind is the value shape of a field.
type Kind int

const (
	KindText Kind = iota
	KindEnum
	KindBool
	KindMulti
)

// Option is one allowed value of an enum field.
type Option struct {
	Code  string
	Label string
}

// Field describes one survey field.
type Field struct {
	Key      string  // internal key: "last_name"
	Label    string  // canonical export label: "Last Name"
	Section  Section // owning form section
	Kind     Kind
	Required bool     // must be non-empty in every submission
	MaxLen   int      // max runes for text values (0 = default)
	Options  []Option // allowed values for KindEnum / KindBool
	Format   Format   // extra text format check
}

// Format selects an additional check for text fields.
type Format int

const (
	FormatNone Format = iota
	FormatName
	FormatEmail
	FormatPhone
)

// Field keys referenced by name elsewhere in the code.
const (
	FieldLastName           = "last_name"
	FieldFirstName          = "first_name"
	FieldMiddleName         = "middle_name"
	FieldNameExtension      = "name_extension"
	FieldEmail              = "email"
	FieldPhone              = "phone"
	FieldSex                = "sex"
	FieldAgeRange           = "age_range"
	FieldOfficeType         = "office_type"
	FieldOfficeAssignment   = "office_assignment"
	FieldPosition           = "position"
	FieldEmploymentStatus   = "employment_status"
	FieldProgramAssignments = "program_assignments"
	FieldYearsInGovernment  = "years_in_government"
	FieldYearsInDSWD        = "years_in_dswd"
	FieldYearsInSocialWork  = "years_in_social_work"
	FieldTasksPerformed     = "tasks_performed"
	FieldExpertiseAreas     = "expertise_areas"
	FieldCompetencyLevel    = "competency_level"
	FieldHighestEducation   = "highest_education"
	FieldDegreeProgram      = "degree_program"
	FieldAttendedTraining   = "attended_dswd_training"
	FieldCoursesTaken       = "courses_taken"
	FieldETEEAPAware        = "eteeap_aware"
	FieldETEEAPInterest     = "eteeap_interest"
	FieldTargetDegree       = "target_degree"
	FieldMotivations        = "motivations"
	FieldBarriers           = "barriers"
	FieldComments           = "additional_comments"
	FieldConsentGiven       = "consent_given"
)

var yesNo = []Option{{"yes", "Yes"}, {"no", "No"}}

var yearBuckets = []Option{
	{"lt_1", "Less than 1 year"},
	{"1_5", "1-5 years"},
	{"6_10", "6-10 years"},
	{"11_15", "11-15 years"},
	{"16_20", "16-20 years"},
	{"over_20", "More than 20 years"},
}

// catalog is the ordered field list. Order is the CSV column order.
var catalog = []Field{
	// basic_info
	{Key: FieldLastName, Label: "Last Name", Section: SectionBasicInfo, Kind: KindText, Required: true, MaxLen: 100, Format: FormatName},
	{Key: FieldFirstName, Label: "First Name", Section: SectionBasicInfo, Kind: KindText, Required: true, MaxLen: 100, Format: FormatName},
	{Key: FieldMiddleName, Label: "Middle Name", Section: SectionBasicInfo, Kind: KindText, MaxLen: 100, Format: FormatName},
	{Key: FieldNameExtension, Label: "Name Extension", Section: SectionBasicInfo, Kind: KindText, MaxLen: 10, Format: FormatName},
	{Key: FieldEmail, Label: "Email Address", Section: SectionBasicInfo, Kind: KindText, Required: true, MaxLen: 254, Format: FormatEmail},
	{Key: FieldPhone, Label: "Mobile Number", Section: SectionBasicInfo, Kind: KindText, MaxLen: 20, Format: FormatPhone},
	{Key: FieldSex, Label: "Sex", Section: SectionBasicInfo, Kind: KindEnum, Required: true, Options: []Option{
		{"male", "Male"},
		{"female", "Female"},
		{"prefer_not_to_say", "Prefer not to say"},
	}},
	{Key: FieldAgeRange, Label: "Age Range", Section: SectionBasicInfo, Kind: KindEnum, Required: true, Options: []Option{
		{"18_24", "18-24"},
		{"25_34", "25-34"},
		{"35_44", "35-44"},
		{"45_54", "45-54"},
		{"55_above", "55 and above"},
	}},

	// office_data
	{Key: FieldOfficeType, Label: "Office Type", Section: SectionOfficeData, Kind: KindEnum, Required: true, Options: []Option{
		{"central_office", "Central Office"},
		{"field_office", "Field Office"},
		{"attached_agency", "Attached Agency"},
	}},
	{Key: FieldOfficeAssignment, Label: "Office / Bureau / Field Office", Section: SectionOfficeData, Kind: KindText, Required: true, MaxLen: 200},
	{Key: FieldPosition, Label: "Position / Designation", Section: SectionOfficeData, Kind: KindText, Required: true, MaxLen: 150},
	{Key: FieldEmploymentStatus, Label: "Employment Status", Section: SectionOfficeData, Kind: KindEnum, Required: true, Options: []Option{
		{"permanent", "Permanent"},
		{"casual", "Casual"},
		{"contractual", "Contractual"},
		{"cos_jo", "Contract of Service / Job Order"},
	}},
	{Key: FieldProgramAssignments, Label: "Program/Unit Assignments", Section: SectionOfficeData, Kind: KindMulti},

	// work_experience
	{Key: FieldYearsInGovernment, Label: "Years in Government Service", Section: SectionWorkExperience, Kind: KindEnum, Options: yearBuckets},
	{Key: FieldYearsInDSWD, Label: "Years in DSWD", Section: SectionWorkExperience, Kind: KindEnum, Options: yearBuckets},
	{Key: FieldYearsInSocialWork, Label: "Years in Social Work Practice", Section: SectionWorkExperience, Kind: KindEnum, Options: yearBuckets},
	{Key: FieldTasksPerformed, Label: "Tasks Performed", Section: SectionWorkExperience, Kind: KindMulti},

	// competencies
	{Key: FieldExpertiseAreas, Label: "Areas of Expertise", Section: SectionCompetencies, Kind: KindMulti},
	{Key: FieldCompetencyLevel, Label: "Self-Rated Competency Level", Section: SectionCompetencies, Kind: KindEnum, Options: []Option{
		{"beginner", "Beginner"},
		{"intermediate", "Intermediate"},
		{"advanced", "Advanced"},
		{"expert", "Expert"},
	}},

	// education
	{Key: FieldHighestEducation, Label: "Highest Educational Attainment", Section: SectionEducation, Kind: KindEnum, Required: true, Options: []Option{
		{"high_school", "High School Graduate"},
		{"vocational", "Vocational / Technical"},
		{"college_undergraduate", "College Undergraduate"},
		{"bachelors", "Bachelor's Degree"},
		{"masters", "Master's Degree"},
		{"doctorate", "Doctorate"},
	}},
	{Key: FieldDegreeProgram, Label: "Degree Program / Course", Section: SectionEducation, Kind: KindText, MaxLen: 200},

	// dswd_training
	{Key: FieldAttendedTraining, Label: "Attended DSWD Training", Section: SectionDSWDTraining, Kind: KindBool, Options: yesNo},
	{Key: FieldCoursesTaken, Label: "DSWD Courses Taken", Section: SectionDSWDTraining, Kind: KindMulti},

	// eteeap_interest
	{Key: FieldETEEAPAware, Label: "Aware of ETEEAP", Section: SectionETEEAPInterest, Kind: KindBool, Required: true, Options: yesNo},
	{Key: FieldETEEAPInterest, Label: "Interest in ETEEAP", Section: SectionETEEAPInterest, Kind: KindEnum, Required: true, Options: []Option{
		{"very_interested", "Very interested"},
		{"interested", "Interested"},
		{"undecided", "Undecided"},
		{"not_interested", "Not interested"},
	}},
	{Key: FieldTargetDegree, Label: "Preferred Degree Program", Section: SectionETEEAPInterest, Kind: KindText, MaxLen: 200},
	{Key: FieldMotivations, Label: "Motivations", Section: SectionETEEAPInterest, Kind: KindMulti},
	{Key: FieldBarriers, Label: "Barriers", Section: SectionETEEAPInterest, Kind: KindMulti},
	{Key: FieldComments, Label: "Comments", Section: SectionETEEAPInterest, Kind: KindText, MaxLen: 2000},

	// consent
	{Key: FieldConsentGiven, Label: "Consent Given", Section: SectionConsent, Kind: KindBool, Required: true, Options: yesNo},
}

var byKey = func() map[string]Field {
	m := make(map[string]Field, len(catalog))
	for _, f := range catalog {
		m[f.Key] = f
	}
	return m
}()

// Fields returns the catalog in column order.
func Fields() []Field {
	out := make([]Field, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the field with the given internal key.
func Lookup(key string) (Field, bool) {
	f, ok := byKey[key]
	return f, ok
}

// SectionFields returns the fields belonging to one section, in catalog order.
func SectionFields(s Section) []Field {
	var out []Field
	for _, f := range catalog {
		if f.Section == s {
			out = append(out, f)
		}
	}
	return out
}

// ScalarFields returns all non-multi fields (database columns of responses).
func ScalarFields() []Field {
	var out []Field
	for _, f := range catalog {
		if f.Kind != KindMulti {
			out = append(out, f)
		}
	}
	return out
}

// MultiFields returns the multi-value fields (stored as child rows).
func MultiFields() []Field {
	var out []Field
	for _, f := range catalog {
		if f.Kind == KindMulti {
			out = append(out, f)
		}
	}
	return out
}

// OptionLabel returns the display label for an option code, or the code itself.
func (f Field) OptionLabel(code string) string {
	for _, o := range f.Options {
		if o.Code == code {
			return o.Label
		}
	}
	return code
}

// HasOption reports whether code is one of the field's option codes.
func (f Field) HasOption(code string) bool {
	for _, o := range f.Options {
		if o.Code == code {
			return true
		}
	}
	return false
}

// WorkExperienceFields are the bucket fields of which at least one must be answered.
var WorkExperienceFields = []string{FieldYearsInGovernment, FieldYearsInDSWD, FieldYearsInSocialWork}

// IsSection reports whether s names a wizard step.
func IsSection(s string) bool {
	return StepIndex(Section(strings.TrimSpace(s))) > 0
}
