package schema

// SourceType identifies a known export format.
type SourceType string

const (
	SourceSeekout    SourceType = "seekout"
	SourcePin        SourceType = "pin"
	SourceWrangle    SourceType = "wrangle"
	SourcePinWrangle SourceType = "pin_wrangle"
	SourceClay       SourceType = "clay"
	SourceRecruitCRM SourceType = "recruitcrm"
	SourceUnknown    SourceType = "unknown"
)

// SourcePatterns holds column-name fragments that fingerprint a source type.
var SourcePatterns = map[SourceType][]string{
	SourceSeekout:    {"SeekOut", "seekout", "SO_", "_candidateName_dc5u3_2", "_candidateDisplayName_dc5u3_17"},
	SourcePin:        {"candidate.linkedin", "candidate.firstName", "candidate.experiences.0"},
	SourceWrangle:    {"Name", "Title", "Company", "Linkedin"},
	SourcePinWrangle: {"Pin Wrangle", "pin_wrangle", "PW_", "pwrangle"},
	SourceClay:       {"clay", "Clay"},
	SourceRecruitCRM: {"candidate_", "Candidate_", "recruitcrm"},
}
