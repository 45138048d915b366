package wal

import "testing"

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Record
	}{
		{"put", "PUT alpha 42", Record{Op: OpPut, Key: "alpha", Value: "42"}},
		{"put_ttl", "PUT_TTL beta 100 1000", Record{Op: OpPutTTL, Key: "beta", Value: "100", ExpireAtMs: 1000}},
		{"remove", "REMOVE gamma", Record{Op: OpRemove, Key: "gamma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLine(tt.line)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeLine_Malformed(t *testing.T) {
	lines := []string{
		"",
		"PUT onlykey",
		"PUT_TTL a b notanumber",
		"REMOVE",
		"UNKNOWN a b",
	}
	for _, line := range lines {
		if _, err := DecodeLine(line); err == nil {
			t.Errorf("expected error decoding %q", line)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	line := EncodePutTTL("k", "v", 12345)
	rec, err := DecodeLine(line)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Op != OpPutTTL || rec.Key != "k" || rec.Value != "v" || rec.ExpireAtMs != 12345 {
		t.Errorf("round trip mismatch: %+v", rec)
	}
}

func TestValidateToken(t *testing.T) {
	if err := ValidateToken(""); err == nil {
		t.Error("expected error for empty token")
	}
	if err := ValidateToken("has space"); err == nil {
		t.Error("expected error for token with whitespace")
	}
	if err := ValidateToken("clean"); err != nil {
		t.Errorf("unexpected error for clean token: %v", err)
	}
}
