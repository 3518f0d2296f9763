package scorer

import "testing"

func TestParseQualityClampsToRange(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int
		wantErr bool
	}{
		{"plain integer", "8", 8, false},
		{"integer in sentence", "I'd rate this an 8 out of 10 for effort.", 8, false},
		{"above range clamps", "15", 10, false},
		{"below range clamps", "-3", 0, false},
		{"no integer errors", "not a number", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQuality(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
