package fixedpoint

import (
	"encoding/json"
	"testing"
)

func TestFromWhole(t *testing.T) {
	a, err := FromWhole(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Raw() != 100*scaleFactor {
		t.Errorf("raw = %d, want %d", a.Raw(), 100*scaleFactor)
	}
}

func TestAddOverflow(t *testing.T) {
	if _, err := Max.Add(FromRaw(1)); err == nil {
		t.Error("expected overflow error")
	}
}

func TestSatAdd(t *testing.T) {
	got := Max.SatAdd(FromRaw(1))
	if !got.Equal(Max) {
		t.Errorf("SatAdd should saturate at Max, got %v", got)
	}
}

func TestSubUnderflow(t *testing.T) {
	if _, err := FromRaw(1).Sub(FromRaw(2)); err == nil {
		t.Error("expected underflow error")
	}
}

func TestSatSub(t *testing.T) {
	got := FromRaw(1).SatSub(FromRaw(2))
	if !got.IsZero() {
		t.Errorf("SatSub should saturate at zero, got %v", got)
	}
}

func TestMulDivBasic(t *testing.T) {
	// 100 * 2 / 4 = 50
	a := FromRaw(100 * scaleFactor)
	num := FromRaw(2 * scaleFactor)
	den := FromRaw(4 * scaleFactor)
	got, err := MulDiv(a, num, den)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := FromRaw(50 * scaleFactor)
	if !got.Equal(want) {
		t.Errorf("MulDiv = %v, want %v", got, want)
	}
}

func TestMulDivZeroDenominator(t *testing.T) {
	if _, err := MulDiv(FromRaw(1), FromRaw(1), Zero); err == nil {
		t.Error("expected division-by-zero error")
	}
}

func TestMulDivNoIntermediateOverflow(t *testing.T) {
	// Both operands near Max; the naive a.raw*num.raw would overflow
	// uint64, but the big.Int intermediate in MulDiv must not.
	a := Max
	num := Max
	den := Max
	got, err := MulDiv(a, num, den)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(Max) {
		t.Errorf("MulDiv = %v, want Max", got)
	}
}

func TestStringRendering(t *testing.T) {
	a := FromRaw(150_000_000) // 1.5 at scale 1e8
	if got, want := a.String(), "1.50000000"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMarshalJSON(t *testing.T) {
	a := FromRaw(150_000_000)
	body, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got, want := string(body), `"1.50000000"`; got != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestUnmarshalJSONRoundTrip(t *testing.T) {
	want, err := FromWhole(42)
	if err != nil {
		t.Fatalf("FromWhole() error = %v", err)
	}
	want = want.SatAdd(FromRaw(7))

	body, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Amount
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("round trip = %v, want %v", got, want)
	}
}

func TestUnmarshalJSONWholeNumber(t *testing.T) {
	var got Amount
	if err := json.Unmarshal([]byte(`"5"`), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want, _ := FromWhole(5)
	if !got.Equal(want) {
		t.Errorf("Unmarshal(\"5\") = %v, want %v", got, want)
	}
}

func TestUnmarshalJSONInvalid(t *testing.T) {
	var got Amount
	if err := json.Unmarshal([]byte(`"abc"`), &got); err == nil {
		t.Error("expected error for non-numeric amount")
	}
}

func TestMarshalJSONEmbeddedStruct(t *testing.T) {
	type wrapper struct {
		Amount Amount `json:"amount"`
	}
	w := wrapper{Amount: FromRaw(100_000_000)}
	body, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got, want := string(body), `{"amount":"1.00000000"}`; got != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}
