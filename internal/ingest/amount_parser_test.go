package ingest

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantNil bool
	}{
		{name: "Plain number", raw: "1500000", want: 1500000},
		{name: "Dollar sign and commas", raw: "$1,500,000", want: 1500000},
		{name: "Cents dropped", raw: "1500000.00", want: 1500000},
		{name: "Comma and cents", raw: "1,000.50", want: 1000},
		{name: "Currency prefix", raw: "USD 250,000", want: 250000},
		{name: "Empty", raw: "", wantNil: true},
		{name: "No digits", raw: "TBD", wantNil: true},
		{name: "Zero", raw: "0", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAmount(tt.raw)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("expected nil, got %d", *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %d, got nil", tt.want)
			}
			if *got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, *got)
			}
		})
	}
}

func TestParseCostSharing(t *testing.T) {
	for raw, want := range map[string]bool{
		"Yes": true, "yes": true, "Y": true, "true": true,
		"No": false, "": false, "N": false, "maybe": false,
	} {
		if got := parseCostSharing(raw); got != want {
			t.Errorf("parseCostSharing(%q) = %v, want %v", raw, got, want)
		}
	}
}
