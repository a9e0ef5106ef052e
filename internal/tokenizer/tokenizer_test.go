package tokenizer

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", []string{}},
		{"whitespace only", "  \t\n ", []string{}},
		{"simple lowercase", "hello world", []string{"hello", "world"}},
		{"with punctuation", "Hello, World!", []string{"hello", "world"}},
		{"ticker", "AAPL", []string{"aapl"}},
		{"class share ticker", "BRK.B", []string{"brk.b"}},
		{"ampersand symbol", "S&P 500", []string{"s&p", "500"}},
		{"slash symbol", "P/E ratio", []string{"p/e", "ratio"}},
		{"decimal", "yield 3.14", []string{"yield", "3.14"}},
		{"percent", "15% growth", []string{"15%", "growth"}},
		{"percent without number", "% growth", []string{"growth"}},
		{"comparison", "pe<15", []string{"pe", "15"}},
		{"diacritics", "Société Générale", []string{"societe", "generale"}},
		{"decomposed diacritics", "Cre\u0300me", []string{"creme"}},
		{"typographic apostrophe", "O’Neil", []string{"o'neil"}},
		{"possessive", "Apple's", []string{"apple's"}},
		{"trailing joiner", "end.", []string{"end"}},
		{"doubled joiner", "a..b", []string{"a", "b"}},
		{"string with hyphen", "state-of-the-art", []string{"state", "of", "the", "art"}},
		{"no camelCase split", "MicroStrategy", []string{"microstrategy"}},
		{"string with underscore", "my_variable_name", []string{"my", "variable", "name"}},
		{"only symbols", "!@#$%^", []string{}},
		{"only numbers", "12345 67890", []string{"12345", "67890"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenize_Idempotent(t *testing.T) {
	inputs := []string{
		"Apple Inc. (AAPL)",
		"BRK.B vs S&P-500 P/E...",
		"pe>=15 and dividend_yield above 2.5%",
		"Société Générale’s 3.14% margin",
		"a.\u0301b .x. y.",
		"Crème brûlée İstanbul",
		"  MicroStrategy / Microsoft  ",
		"'quoted' &&& //// ....",
		"",
	}

	for _, s := range inputs {
		first := Tokenize(s)
		second := Tokenize(strings.Join(first, " "))
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Tokenize not idempotent for %q: %v then %v", s, first, second)
		}
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	s := "Microsoft Corporation MSFT 2024 earnings"
	want := Tokenize(s)
	for i := 0; i < 10; i++ {
		if got := Tokenize(s); !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: got %v, want %v", i, got, want)
		}
	}
}

func TestAnalyze(t *testing.T) {
	text := "Apple Inc. AAPL"
	got := Analyze("name", text)

	if len(got) != 3 {
		t.Fatalf("Analyze(%q) returned %d tokens, want 3", text, len(got))
	}

	wantTexts := []string{"apple", "inc", "aapl"}
	for i, tok := range got {
		if tok.Text != wantTexts[i] {
			t.Errorf("token %d text = %q, want %q", i, tok.Text, wantTexts[i])
		}
		if tok.Position != i {
			t.Errorf("token %d position = %d", i, tok.Position)
		}
		if tok.Field != "name" {
			t.Errorf("token %d field = %q", i, tok.Field)
		}
		if text[tok.Start:tok.End] != tok.Raw {
			t.Errorf("token %d offsets [%d,%d) do not match raw %q", i, tok.Start, tok.End, tok.Raw)
		}
	}

	if got[2].Raw != "AAPL" {
		t.Errorf("raw form not preserved: %q", got[2].Raw)
	}
}

func TestAnalyze_SingleWordTokens(t *testing.T) {
	tokens := Analyze("name", "Apple Inc. Microsoft Corporation")
	want := []string{"apple", "inc", "microsoft", "corporation"}
	if len(tokens) != len(want) {
		t.Fatalf("Analyze() returned %d tokens, want %d", len(tokens), len(want))
	}
	for i, tok := range tokens {
		if tok.Text != want[i] {
			t.Errorf("token %d = %q, want %q", i, tok.Text, want[i])
		}
		if strings.ContainsAny(tok.Text, " _") {
			t.Errorf("token %d = %q spans more than one word", i, tok.Text)
		}
	}
}

func TestAnalyze_Empty(t *testing.T) {
	got := Analyze("name", "   ")
	if got == nil || len(got) != 0 {
		t.Errorf("Analyze of blank text = %v, want empty non-nil slice", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Apple Inc.", "apple inc"},
		{"  APPLE   inc ", "apple inc"},
		{"Société", "societe"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestVariations(t *testing.T) {
	tests := []struct {
		token string
		want  []string
	}{
		{"brk.b", []string{"brkb"}},
		{"s&p", []string{"sp"}},
		{"companies", []string{"company"}},
		{"stocks", []string{"stock"}},
		{"apple's", []string{"apple"}},
		{"business", nil},
		{"aapl", nil},
		{"gas", nil},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got := Variations(tt.token)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Variations(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}
