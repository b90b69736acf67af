package survey

// ExampleRecord returns an illustrative, fully valid response. It is written
// as the sample row of the CSV import template.
func ExampleRecord() Record {
	r := NewRecord()
	r.Set(FieldLastName, "Dela Cruz")
	r.Set(FieldFirstName, "Juan")
	r.Set(FieldMiddleName, "Santos")
	r.Set(FieldEmail, "juan.delacruz@example.gov.ph")
	r.Set(FieldPhone, "09171234567")
	r.Set(FieldSex, "male")
	r.Set(FieldAgeRange, "35_44")
	r.Set(FieldOfficeType, "field_office")
	r.Set(FieldOfficeAssignment, "Field Office VII")
	r.Set(FieldPosition, "Social Welfare Officer II")
	r.Set(FieldEmploymentStatus, "permanent")
	r.SetList(FieldProgramAssignments, []string{"4Ps", "Sustainable Livelihood Program"})
	r.Set(FieldYearsInGovernment, "6_10")
	r.Set(FieldYearsInDSWD, "6_10")
	r.SetList(FieldTasksPerformed, []string{"Case management", "Community organizing"})
	r.SetList(FieldExpertiseAreas, []string{"Case management", "Family development sessions"})
	r.Set(FieldCompetencyLevel, "intermediate")
	r.Set(FieldHighestEducation, "college_undergraduate")
	r.Set(FieldAttendedTraining, "yes")
	r.SetList(FieldCoursesTaken, []string{"Basic Social Case Management"})
	r.Set(FieldETEEAPAware, "yes")
	r.Set(FieldETEEAPInterest, "very_interested")
	r.Set(FieldTargetDegree, "BS Social Work")
	r.SetList(FieldMotivations, []string{"Career advancement", "Professional licensure"})
	r.SetList(FieldBarriers, []string{"Time constraints"})
	r.Set(FieldConsentGiven, "yes")
	return r
}
