package candidate

import (
	"regexp"
	"strings"

	"github.com/talentsift/talentsift/internal/schema"
)

// Record is one normalized candidate in the canonical schema. The shape is
// fixed: ingestion converts the open-ended row maps into named fields at
// the normalization boundary, so everything downstream deals in a closed
// set of attributes.
type Record struct {
	LinkedinURL    string `json:"linkedin_url,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	Location       string `json:"location,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	Title          string `json:"title,omitempty"`
	ExperienceText string `json:"experience_text,omitempty"`
	EducationText  string `json:"education_text,omitempty"`
	Summary        string `json:"summary,omitempty"`
	Skills         string `json:"skills,omitempty"`

	// SourceFile and FileIndex point back at the originating upload.
	// FileIndex follows ingestion order and breaks dedup ties.
	SourceFile string `json:"-"`
	FileIndex  int    `json:"-"`
	RowIndex   int    `json:"-"`

	// Incomplete marks records that were emitted with one or more required
	// fields missing. The insufficient-data decision belongs to evaluation,
	// not ingestion.
	Incomplete bool `json:"-"`
}

// FromFields builds a Record from a map keyed by canonical field name.
// Unknown names are dropped. This is the single conversion point from
// dynamic row shapes to the fixed record shape.
func FromFields(fields map[string]string) *Record {
	rec := &Record{}
	for field, value := range fields {
		rec.Set(field, value)
	}
	return rec
}

// Get returns the value of a canonical field, empty when unset or unknown.
func (r *Record) Get(field string) string {
	switch field {
	case schema.FieldLinkedinURL:
		return r.LinkedinURL
	case schema.FieldFirstName:
		return r.FirstName
	case schema.FieldLastName:
		return r.LastName
	case schema.FieldLocation:
		return r.Location
	case schema.FieldCompanyName:
		return r.CompanyName
	case schema.FieldTitle:
		return r.Title
	case schema.FieldExperience:
		return r.ExperienceText
	case schema.FieldEducation:
		return r.EducationText
	case schema.FieldSummary:
		return r.Summary
	case schema.FieldSkills:
		return r.Skills
	default:
		return ""
	}
}

// Set assigns a canonical field by name, ignoring unknown names.
func (r *Record) Set(field, value string) {
	switch field {
	case schema.FieldLinkedinURL:
		r.LinkedinURL = value
	case schema.FieldFirstName:
		r.FirstName = value
	case schema.FieldLastName:
		r.LastName = value
	case schema.FieldLocation:
		r.Location = value
	case schema.FieldCompanyName:
		r.CompanyName = value
	case schema.FieldTitle:
		r.Title = value
	case schema.FieldExperience:
		r.ExperienceText = value
	case schema.FieldEducation:
		r.EducationText = value
	case schema.FieldSummary:
		r.Summary = value
	case schema.FieldSkills:
		r.Skills = value
	}
}

var linkedinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)linkedin\.com/in/([^/?#]+)`),
	regexp.MustCompile(`(?i)^/?in/([^/?#]+)`),
}

// IdentityKey derives the dedup key from the record's LinkedIn URL: the
// lowercased profile username, or empty when no well-formed URL is present.
// A partial or ambiguous value never produces a key.
func (r *Record) IdentityKey() string {
	return NormalizeProfileURL(r.LinkedinURL)
}

// NormalizeProfileURL extracts the lowercased LinkedIn username from the
// supported URL shapes (with or without scheme, www, trailing path). Values
// that do not look like a profile URL yield an empty key.
func NormalizeProfileURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	for _, pattern := range linkedinPatterns {
		if m := pattern.FindStringSubmatch(url); m != nil {
			return strings.ToLower(strings.TrimSpace(m[1]))
		}
	}
	return ""
}

// CompletenessScore weighs populated required fields at 2 points and optional
// fields at 1 point, so a record with all ten fields scores 16.
func (r *Record) CompletenessScore() int {
	score := 0
	for _, field := range schema.RequiredColumns {
		if strings.TrimSpace(r.Get(field)) != "" {
			score += 2
		}
	}
	for _, field := range schema.OptionalColumns {
		if strings.TrimSpace(r.Get(field)) != "" {
			score++
		}
	}
	return score
}

// MissingRequired lists required canonical fields without a value.
func (r *Record) MissingRequired() []string {
	var missing []string
	for _, field := range schema.RequiredColumns {
		if strings.TrimSpace(r.Get(field)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// DisplayName builds a loggable name from the record's name fields.
func (r *Record) DisplayName() string {
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		return "(unnamed)"
	}
	return name
}

// HasContent reports whether any canonical field carries a value at all.
func (r *Record) HasContent() bool {
	for _, field := range schema.AllColumns {
		if strings.TrimSpace(r.Get(field)) != "" {
			return true
		}
	}
	return false
}
