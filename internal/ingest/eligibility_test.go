package ingest

import (
	"reflect"
	"testing"
)

func TestExpandEligibility(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
		want  []string
	}{
		{
			name:  "Known codes",
			codes: []string{"12", "21"},
			want: []string{
				"Nonprofits having a 501(c)(3) status with the IRS, other than institutions of higher education",
				"Individuals",
			},
		},
		{
			name:  "Comma packed single element",
			codes: []string{"00,01"},
			want:  []string{"State governments", "County governments"},
		},
		{
			name:  "Unknown code passes through",
			codes: []string{"42"},
			want:  []string{"42"},
		},
		{
			name:  "Duplicates dropped",
			codes: []string{"99", "99"},
			want:  []string{"Unrestricted"},
		},
		{
			name:  "Empty input",
			codes: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandEligibility(tt.codes)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestInferActivityCategories(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
		title string
		want  []string
	}{
		{
			name:  "Direct code mapping",
			codes: []string{"HL"},
			want:  []string{"health"},
		},
		{
			name:  "Pipe separated codes",
			codes: []string{"AG|EN"},
			want:  []string{"agriculture", "energy"},
		},
		{
			name:  "Other falls back to title keywords",
			codes: []string{"O"},
			title: "Clinical Research in Rural Health Systems",
			want:  []string{"health", "science and technology"},
		},
		{
			name:  "No codes no keywords defaults to other",
			codes: nil,
			title: "FY2024 Program Announcement",
			want:  []string{"other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inferActivityCategories(tt.codes, tt.title)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestExpandFundingType(t *testing.T) {
	for raw, want := range map[string]string{
		"G": "grant", "CA": "cooperative agreement", "g": "grant",
		"": "", "XX": "xx",
	} {
		if got := expandFundingType(raw); got != want {
			t.Errorf("expandFundingType(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestExpandCategory(t *testing.T) {
	for raw, want := range map[string]string{
		"D": "discretionary", "M": "mandatory", "": "", "Z": "z",
	} {
		if got := expandCategory(raw); got != want {
			t.Errorf("expandCategory(%q) = %q, want %q", raw, got, want)
		}
	}
}
