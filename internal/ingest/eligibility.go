package ingest

import "strings"

// eligibilityLabels maps the feed's two-digit applicant eligibility codes
// onto descriptive strings. Unknown codes pass through unchanged.
var eligibilityLabels = map[string]string{
	"00": "State governments",
	"01": "County governments",
	"02": "City or township governments",
	"04": "Special district governments",
	"05": "Independent school districts",
	"06": "Public and State controlled institutions of higher education",
	"07": "Native American tribal governments (Federally recognized)",
	"08": "Public housing authorities/Indian housing authorities",
	"11": "Native American tribal organizations (other than Federally recognized tribal governments)",
	"12": "Nonprofits having a 501(c)(3) status with the IRS, other than institutions of higher education",
	"13": "Nonprofits that do not have a 501(c)(3) status with the IRS, other than institutions of higher education",
	"20": "Private institutions of higher education",
	"21": "Individuals",
	"22": "For profit organizations other than small businesses",
	"23": "Small businesses",
	"25": "Others",
	"99": "Unrestricted",
}

// expandEligibility expands applicant codes to labels, preserving input
// order and dropping case-insensitive duplicates. Some feed records carry
// comma-separated code lists inside a single element.
func expandEligibility(codes []string) []string {
	var out []string
	for _, field := range codes {
		for _, code := range strings.Split(field, ",") {
			code = strings.TrimSpace(code)
			if code == "" {
				continue
			}
			label, ok := eligibilityLabels[code]
			if !ok {
				label = code
			}
			out = mergeUniqueFold(out, []string{label})
		}
	}
	return out
}

// activityLabels maps CategoryOfFundingActivity codes onto tags.
var activityLabels = map[string]string{
	"ACA": "affordable care act",
	"AG":  "agriculture",
	"AR":  "arts",
	"BC":  "business and commerce",
	"CD":  "community development",
	"CP":  "consumer protection",
	"DPR": "disaster prevention and relief",
	"ED":  "education",
	"ELT": "employment, labor and training",
	"EN":  "energy",
	"ENV": "environment",
	"FN":  "food and nutrition",
	"HL":  "health",
	"HO":  "housing",
	"HU":  "humanities",
	"ISS": "income security and social services",
	"IS":  "information and statistics",
	"LJL": "law, justice and legal services",
	"NR":  "natural resources",
	"RA":  "recovery act",
	"RD":  "regional development",
	"ST":  "science and technology",
	"T":   "transportation",
	"O":   "other",
}

// activityKeywords backs category inference when the feed only says
// "other" (or nothing). First keyword hit per tag wins.
var activityKeywords = []struct {
	tag      string
	keywords []string
}{
	{"health", []string{"health", "medical", "disease", "clinical"}},
	{"education", []string{"education", "school", "student", "teacher"}},
	{"science and technology", []string{"research", "science", "technology", "engineering"}},
	{"environment", []string{"environment", "climate", "conservation", "wildlife"}},
	{"agriculture", []string{"agricultur", "farm", "crop", "livestock"}},
	{"energy", []string{"energy", "solar", "renewable"}},
	{"arts", []string{"arts", "museum", "cultural"}},
	{"housing", []string{"housing", "homeless"}},
}

// inferActivityCategories resolves the feed's activity codes into an
// ordered tag set. When the codes resolve to nothing beyond "other", the
// title is scanned for category keywords.
func inferActivityCategories(codes []string, title string) []string {
	var out []string
	for _, field := range codes {
		for _, code := range strings.Split(field, "|") {
			code = strings.TrimSpace(strings.ToUpper(code))
			if code == "" {
				continue
			}
			label, ok := activityLabels[code]
			if !ok {
				label = strings.ToLower(code)
			}
			if label == "other" {
				continue
			}
			out = mergeUniqueFold(out, []string{label})
		}
	}

	if len(out) > 0 {
		return out
	}

	titleLower := strings.ToLower(title)
	for _, entry := range activityKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(titleLower, kw) {
				out = mergeUniqueFold(out, []string{entry.tag})
				break
			}
		}
	}

	if len(out) == 0 {
		out = []string{"other"}
	}
	return out
}

// fundingTypeLabels maps FundingInstrumentType codes to names.
var fundingTypeLabels = map[string]string{
	"G":  "grant",
	"CA": "cooperative agreement",
	"PC": "procurement contract",
	"O":  "other",
}

func expandFundingType(code string) string {
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return ""
	}
	if label, ok := fundingTypeLabels[code]; ok {
		return label
	}
	return strings.ToLower(code)
}

// categoryLabels maps OpportunityCategory codes to names.
var categoryLabels = map[string]string{
	"D": "discretionary",
	"M": "mandatory",
	"C": "continuation",
	"E": "earmark",
	"O": "other",
}

func expandCategory(code string) string {
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return ""
	}
	if label, ok := categoryLabels[code]; ok {
		return label
	}
	return strings.ToLower(code)
}
