package analysis

import "testing"

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    WindowFunc
		wantErr bool
	}{
		{"hann", "hann", Hann, false},
		{"hanning alias", "Hanning", Hann, false},
		{"case insensitive", "BLACKMAN", Blackman, false},
		{"bartlett hann", "bartletthann", BartlettHann, false},
		{"nuttall", "nuttall", Nuttall, false},
		{"unknown defaults to hann", "gauss", Hann, true},
		{"empty", "", Hann, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWindowFunc(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWindowFunc(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestApplyWindowTapersEnds(t *testing.T) {
	coeffs := make([]float64, 64)
	applyWindow(coeffs, Hann)

	if coeffs[0] > 1e-9 {
		t.Errorf("Hann window start = %v, want ~0", coeffs[0])
	}
	mid := coeffs[32]
	if mid < 0.9 {
		t.Errorf("Hann window midpoint = %v, want near 1", mid)
	}
}
