package preserve

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------------
// Coerce Tests
// ----------------------------------------------------------------------------

func TestCoerce_Empty(t *testing.T) {
	for _, typ := range []ColumnType{Integer, Timestamp, Decimal, Bool} {
		t.Run(typ.String(), func(t *testing.T) {
			v, err := Coerce(typ, "  ")
			if err != nil {
				t.Fatalf("Coerce(%s, blank) error: %v", typ, err)
			}
			if v != nil {
				t.Errorf("Coerce(%s, blank) = %v, want nil", typ, v)
			}
		})
	}

	v, err := Coerce(Text, "")
	if err != nil || v != "" {
		t.Errorf("Coerce(text, \"\") = %v, %v; want empty string", v, err)
	}
}

func TestCoerce_UnsupportedType(t *testing.T) {
	if _, err := Coerce(ColumnType(42), "1"); err == nil {
		t.Error("expected error for unsupported type")
	}
}

// ----------------------------------------------------------------------------
// ToInteger Tests
// ----------------------------------------------------------------------------

func TestToInteger(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "positive", input: "90000001", want: 90000001},
		{name: "negative", input: "-12", want: -12},
		{name: "padded", input: " 42 ", want: 42},
		{name: "large id", input: "2147483648000", want: 2147483648000},
		{name: "decimal", input: "1.5", wantErr: true},
		{name: "word", input: "many", wantErr: true},
		{name: "thousands", input: "1,000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToInteger(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToInteger(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ToInteger(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToTimestamp Tests
// ----------------------------------------------------------------------------

func TestToTimestamp(t *testing.T) {
	want := time.Date(2011, 4, 1, 12, 30, 5, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "api format", input: "2011-04-01 12:30:05", want: want},
		{name: "rfc3339", input: "2011-04-01T12:30:05Z", want: want},
		{name: "rfc3339 offset", input: "2011-04-01T14:30:05+02:00", want: want},
		{name: "no zone", input: "2011-04-01T12:30:05", want: want},
		{name: "date only", input: "2011-04-01", want: time.Date(2011, 4, 1, 0, 0, 0, 0, time.UTC)},
		{name: "us format", input: "04/01/2011", wantErr: true},
		{name: "garbage", input: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(tt.want) {
				t.Errorf("ToTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("ToTimestamp(%q) location = %v, want UTC", tt.input, got.Location())
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToDecimal Tests
// ----------------------------------------------------------------------------

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "1234.56", want: "1234.56"},
		{name: "negative", input: "-0.01", want: "-0.01"},
		{name: "thousands", input: "1,234,567.89", want: "1234567.89"},
		{name: "integer", input: "500", want: "500"},
		{name: "exact cents", input: "0.10", want: "0.1"},
		{name: "word", input: "lots", wantErr: true},
		{name: "NaN", input: "NaN", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDecimal(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToDecimal(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ToDecimal(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToBool Tests
// ----------------------------------------------------------------------------

func TestToBool(t *testing.T) {
	for _, in := range []string{"1", "true", "True", "T", "yes", "y"} {
		if got, err := ToBool(in); err != nil || !got {
			t.Errorf("ToBool(%q) = %v, %v; want true", in, got, err)
		}
	}
	for _, in := range []string{"0", "false", "FALSE", "f", "no", "N"} {
		if got, err := ToBool(in); err != nil || got {
			t.Errorf("ToBool(%q) = %v, %v; want false", in, got, err)
		}
	}
	if _, err := ToBool("maybe"); err == nil {
		t.Error("ToBool(maybe) expected error")
	}
}
