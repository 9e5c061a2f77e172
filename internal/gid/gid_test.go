package gid

import (
	"testing"
)

func TestToGlobalID(t *testing.T) {
	if got := ToGlobalID("500", "Order"); got != "gid://shopify/Order/500" {
		t.Fatalf("unexpected gid %q", got)
	}
}

func TestGlobalIDRoundTrip(t *testing.T) {
	types := []string{"Order", "Product", "ProductVariant", "MediaImage", "FulfillmentOrder"}
	ids := []string{"1", "42", "9007199254740993", "abc"}
	for _, typ := range types {
		for _, id := range ids {
			encoded := ToGlobalID(id, typ)
			if back := FromGlobalID(encoded); back != id {
				t.Errorf("FromGlobalID(%q) = %q, want %q", encoded, back, id)
			}
			if twice := ToGlobalID(encoded, typ); twice != encoded {
				t.Errorf("ToGlobalID is not idempotent: %q -> %q", encoded, twice)
			}
		}
	}
}

func TestFromGlobalIDEmpty(t *testing.T) {
	if got := FromGlobalID(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := FromGlobalID("123"); got != "123" {
		t.Fatalf("expected plain id passthrough, got %q", got)
	}
}

func TestIDClause(t *testing.T) {
	want := `id: "gid://shopify/Product/5"`
	if got := IDClause("5", "Product"); got != want {
		t.Fatalf("IDClause = %q, want %q", got, want)
	}
	if got := IDClause("gid://shopify/Product/5", "Product"); got != want {
		t.Fatalf("IDClause on encoded id = %q, want %q", got, want)
	}
}

func TestNumericID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"gid://shopify/Order/500", 500, true},
		{"gid://shopify/MailingAddress/77?model_name=CustomerAddress", 77, true},
		{"12", 12, true},
		{"gid://shopify/Order/abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := NumericID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NumericID(%q) = %d,%v want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStringify(t *testing.T) {
	if got := Stringify(float64(500)); got != "500" {
		t.Fatalf("float: %q", got)
	}
	if got := Stringify(int64(7)); got != "7" {
		t.Fatalf("int64: %q", got)
	}
	if got := Stringify(nil); got != "" {
		t.Fatalf("nil: %q", got)
	}
}
