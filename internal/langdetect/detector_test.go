package langdetect

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		text     string
		wantLang string
		wantConf float64
	}{
		{"sí", "es", 0.9},
		{"Si, gracias", "es", 0.9},
		{"hola amigo", "es", 0.9},
		{"sim", "pt", 0.9},
		{"obrigado!", "pt", 0.9},
		{"yes please", "en", 0.8},
		{"Hello there", "en", 0.8},
		{"thanks", "en", 0.8},
		{"asdf qwerty", Unknown, 0},
		{"", Unknown, 0},
		{"   ", Unknown, 0},
	}
	for _, c := range cases {
		lang, conf := Detect(c.text)
		if lang != c.wantLang || conf != c.wantConf {
			t.Errorf("Detect(%q) = (%q, %v), want (%q, %v)", c.text, lang, conf, c.wantLang, c.wantConf)
		}
	}
}

func TestDetectDoesNotMatchSubstrings(t *testing.T) {
	// "simple" contains "sim" but is not a Portuguese cue.
	if lang, _ := Detect("simple question"); lang != Unknown {
		t.Fatalf("substring matched: %q", lang)
	}
	// "yesterday" contains "yes".
	if lang, _ := Detect("yesterday"); lang != Unknown {
		t.Fatalf("substring matched: %q", lang)
	}
}
