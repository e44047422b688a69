package processing

import (
	"strings"
	"testing"

	"github.com/dyike/AnalystCouncil/consts"
)

func TestStanceDeclaredLine(t *testing.T) {
	cases := map[string]string{
		"Some analysis.\n\nInvestment opinion: Strong Buy\n":             consts.StanceStrongBuy,
		"* **Investment opinion**: Cautious Buy\n* **Key points**: ...": consts.StanceBuy,
		"**Final opinion:** Sell. The stock trades well above value.":   consts.StanceSell,
		"Recommendation: strong sell":                                   consts.StanceStrongSell,
		"Verdict: Hold while the base forms.":                           consts.StanceHold,
	}
	for text, want := range cases {
		sig := NewStanceProcessor().Extract(text)
		if sig.Stance != want || !sig.Declared {
			t.Errorf("Extract(%q) = %+v, want %s declared", text, sig, want)
		}
	}
}

func TestStanceDeclaredLineWinsOverKeywords(t *testing.T) {
	text := "Bearish momentum, downside risk, overvalued on every metric, sell-side is negative.\n" +
		"Opinion: Buy"
	if got := Stance(text); got != consts.StanceBuy {
		t.Fatalf("expected declared Buy, got %s", got)
	}
}

func TestStanceKeywordScoring(t *testing.T) {
	sig := NewStanceProcessor().Extract("The company looks undervalued with real growth potential and upside. A bullish setup.")
	if sig.Stance != consts.StanceBuy || sig.Declared {
		t.Fatalf("unexpected signal %+v", sig)
	}
	if sig.Confidence <= 0 || sig.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", sig.Confidence)
	}
	if !strings.Contains(sig.Reasoning, "undervalued") {
		t.Fatalf("reasoning should quote the supporting sentence, got %q", sig.Reasoning)
	}

	if got := Stance("Bearish trend, overvalued, the downside dominates."); got != consts.StanceSell {
		t.Fatalf("expected Sell, got %s", got)
	}
}

func TestStanceUnclear(t *testing.T) {
	for _, text := range []string{"", "   ", "The quarterly report was published on Tuesday."} {
		if got := Stance(text); got != consts.StanceUnknown {
			t.Errorf("Stance(%q) = %s, want %s", text, got, consts.StanceUnknown)
		}
	}
}

func TestOneLine(t *testing.T) {
	if got := OneLine("a\n\n  b\tc", 0); got != "a b c" {
		t.Fatalf("OneLine collapse = %q", got)
	}
	if got := OneLine("abcdefghij", 8); got != "abcde..." {
		t.Fatalf("OneLine cut = %q", got)
	}
	if got := OneLine("가나다라마바", 4); got != "가..." {
		t.Fatalf("OneLine must cut on runes, got %q", got)
	}
	if got := OneLine("short", 10); got != "short" {
		t.Fatalf("OneLine short = %q", got)
	}
}
