package supplier

import (
	"reflect"
	"testing"
)

func TestToUF(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"SP", "SP"},
		{"sp", "SP"},
		{" mg ", "MG"},
		{"São Paulo", "SP"},
		{"ESPIRITO SANTO", "ES"},
		{"brasil", "BRASIL"},
		{"Nacional", "BRASIL"},
		{"XX", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := ToUF(c.in); got != c.want {
			t.Errorf("ToUF(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractUFsFromText(t *testing.T) {
	got := ExtractUFsFromText("Atende SP e RJ")
	if !reflect.DeepEqual(got, []string{"SP", "RJ"}) {
		t.Fatalf("got %v", got)
	}

	got = ExtractUFsFromText("SP/RJ | Bahia; (Ceará)")
	if !reflect.DeepEqual(got, []string{"SP", "RJ", "BA", "CE"}) {
		t.Fatalf("got %v", got)
	}

	if got := ExtractUFsFromText(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestHasUFNationwide(t *testing.T) {
	nationwide := Supplier{ServesBrazil: true}
	for _, uf := range append([]string{NationwideUF}, UFs...) {
		if !nationwide.HasUF(uf) {
			t.Fatalf("atendeBrasil supplier must match %s", uf)
		}
	}

	regional := Supplier{UFs: []string{"SP", "RJ"}}
	if !regional.HasUF("SP") || !regional.HasUF("RJ") {
		t.Fatal("declared UFs must match")
	}
	if regional.HasUF("MG") {
		t.Fatal("undeclared UF must not match")
	}
	if !regional.HasUF(NationwideUF) {
		t.Fatal("the BRASIL filter matches every supplier")
	}
}
