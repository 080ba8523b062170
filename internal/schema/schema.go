package schema

import "strings"

// Canonical field names for the standardized candidate schema.
const (
	FieldLinkedinURL = "linkedin_url"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldLocation    = "location"
	FieldCompanyName = "company_name"
	FieldTitle       = "title"
	FieldExperience  = "experience_text"
	FieldEducation   = "education_text"
	FieldSummary     = "summary"
	FieldSkills      = "skills"
)

// RequiredColumns must be present in standardized output.
var RequiredColumns = []string{
	FieldLinkedinURL,
	FieldFirstName,
	FieldLastName,
	FieldLocation,
	FieldCompanyName,
	FieldTitle,
}

// OptionalColumns can be empty.
var OptionalColumns = []string{
	FieldExperience,
	FieldEducation,
	FieldSummary,
	FieldSkills,
}

// AllColumns lists every canonical column in output order.
var AllColumns = append(append([]string{}, RequiredColumns...), OptionalColumns...)

// Descriptions give the LLM context about each canonical field.
var Descriptions = map[string]string{
	FieldLinkedinURL: "LinkedIn profile URL (e.g., https://linkedin.com/in/username)",
	FieldFirstName:   "Candidate's first name",
	FieldLastName:    "Candidate's last name",
	FieldLocation:    "Geographic location (city, state, country format preferred)",
	FieldCompanyName: "Current or most recent company name",
	FieldTitle:       "Current or most recent job title",
	FieldExperience:  "Text description of work experience, including roles and companies",
	FieldEducation:   "Text description of education, including degree, major, school, and graduation year",
	FieldSummary:     "Professional summary or bio text",
	FieldSkills:      "Comma-separated list of skills or technologies",
}

// Synonyms maps each canonical field to the header spellings observed across
// known export formats. Every canonical name is its own synonym so that
// re-ingesting standardized output yields the identity mapping.
var Synonyms = map[string][]string{
	FieldLinkedinURL: {"linkedin_url", "LinkedIn URL", "LinkedIn", "linkedin", "profile_url"},
	FieldFirstName:   {"first_name", "First Name", "First", "fname", "given_name"},
	FieldLastName:    {"last_name", "Last Name", "Last", "lname", "surname", "family_name"},
	FieldLocation:    {"location", "Location", "City", "city", "Location (City)", "address"},
	FieldCompanyName: {"company_name", "Company", "Current Company", "Employer", "company"},
	FieldTitle:       {"title", "Title", "Job Title", "Position", "role", "current_title"},
	FieldExperience:  {"experience_text", "Experience", "Work History", "Employment History", "background"},
	FieldEducation:   {"education_text", "Education", "Education History", "School", "degrees", "candidate_educations_degree", "candidate_education_major", "candidate_education_school"},
	FieldSummary:     {"summary", "Summary", "Bio", "About", "description", "overview", "Notes"},
	FieldSkills:      {"skills", "Skills", "Technologies", "tech_skills", "competencies"},
}

// IsRequired reports whether the canonical field must be populated for a
// record to be considered complete.
func IsRequired(field string) bool {
	for _, col := range RequiredColumns {
		if col == field {
			return true
		}
	}
	return false
}

// IsCanonical reports whether name is a canonical column name.
func IsCanonical(name string) bool {
	for _, col := range AllColumns {
		if col == name {
			return true
		}
	}
	return false
}

// Description returns a formatted schema description suitable for LLM prompts.
func Description() string {
	var b strings.Builder
	b.WriteString("Standard Candidate Schema:\n\nREQUIRED COLUMNS (must be present):\n")
	for _, col := range RequiredColumns {
		b.WriteString("- " + col + ": " + Descriptions[col] + "\n")
	}
	b.WriteString("\nOPTIONAL COLUMNS (can be empty):\n")
	for _, col := range OptionalColumns {
		b.WriteString("- " + col + ": " + Descriptions[col] + "\n")
	}
	return b.String()
}
