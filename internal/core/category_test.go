package core

import "testing"

func TestClassify(t *testing.T) {
	cases := map[string]Category{
		"":                    LainLain,
		"   ":                 LainLain,
		"beli rokok":          Roko,
		"Roko 1 bungkus":      Roko,
		"isi bensin":          Bensin,
		"BBM motor":           Bensin,
		"ongkir":              Paket,
		"kurir jne":           Paket,
		"makan siang":         Makan,
		"mkn malam":           Makan,
		"kopi":                Minum,
		"es teh":              Minum,
		"snack sore":          Jajan,
		"cemilan":             Jajan,
		"lain-lain: parkir":   LainLain,
		"Lain-lain":           LainLain,
		"parkir":              LainLain,
		"  jajan ":            Jajan,
		"minum kopi":          Minum,
		"makan + kopi":        Makan,
		"rokok dan bensin":    Roko,
		"sewa pair of shoes":  Minum,
		"pulsa":               LainLain,
		"beli paket data hp":  Paket,
		"food court":          Makan,
		"drink":               Minum,
		"camilan anak":        Jajan,
		"fuel":                Bensin,
		"Paket":               Paket,
		"MAKAN":               Makan,
		"tolong rokokkan aku": Roko,
	}
	for in, want := range cases {
		if got := Classify(in); got != want {
			t.Fatalf("Classify(%q)=%s want %s", in, got, want)
		}
	}
}

func TestClassifyIsTotal(t *testing.T) {
	for _, s := range []string{"\x00", "😀", "12345", "-", "lain"} {
		got := Classify(s)
		if _, ok := ParseCategory(string(got)); !ok {
			t.Fatalf("Classify(%q) returned unknown category %q", s, got)
		}
	}
}

func TestParseCategory(t *testing.T) {
	if c, ok := ParseCategory(" lain-lain "); !ok || c != LainLain {
		t.Fatalf("got %q %v", c, ok)
	}
	if _, ok := ParseCategory("groceries"); ok {
		t.Fatalf("unexpected match")
	}
}
