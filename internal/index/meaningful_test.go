package index

import "testing"

func TestMeaningful(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"filler token", "ok", false},
		{"filler token upper", "OK", false},
		{"thanks", "Thanks!", false},
		{"greeting opener", "hi there", false},
		{"hello opener long", "hello, could you please help me with this database question", false},
		{"too short", "revenue query", false},
		{"exactly 20 chars", "12345678901234567890", false},
		{"short multibyte", "按地區顯示營收總額", false},
		{"long multibyte", "請按地區與產品類別顯示上一季的營收總額明細", true},
		{"analytical request", "show me total revenue grouped by region for last quarter", true},
		{"padded analytical", "  show me total revenue grouped by region for last quarter  ", true},
		{"empty", "", false},
		{"yes", "yes", false},
		{"long non-filler", "the orders table joins customers on customer_id", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Meaningful(tt.content); got != tt.want {
				t.Errorf("Meaningful(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}
