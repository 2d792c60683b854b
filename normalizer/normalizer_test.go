package normalizer

import "testing"

func TestNormalizeSpanishNames(t *testing.T) {
	cases := map[string]string{
		"Quilpué":          "quilpue",
		"QUILPUE":          "quilpue",
		"Viña del Mar":     "vina del mar",
		"Ñuñoa":            "nunoa",
		"Concepción":       "concepcion",
		"  Las   Condes  ": "las condes",
		"Valparaíso.":      "valparaiso",
		"maipú, chile":     "maipu chile",
		"O'Higgins":        "ohiggins",
	}

	for input, want := range cases {
		if got := Normalize(input); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Quilpué",
		"  FARMACIAS   en   Viña del Mar!!  ",
		"péñà-lölen",
		"",
		"   ",
		"123 norte",
		"san pedro de la paz",
	}

	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestNormalizeEmptyAndWhitespace(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Errorf("Normalize(\"\") = %q, want empty", got)
	}
	if got := Normalize("   \t\n "); got != "" {
		t.Errorf("Normalize(whitespace) = %q, want empty", got)
	}
	if got := Normalize("...!!!"); got != "" {
		t.Errorf("Normalize(punctuation only) = %q, want empty", got)
	}
}

func BenchmarkNormalize(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Normalize("Farmacias de turno en Viña del Mar, Región de Valparaíso")
	}
}
