package translation

import "testing"

func TestTranslate_FallsBackToMessageID(t *testing.T) {
	if got := Translate("Coin not found"); got != "Coin not found" {
		t.Fatalf("got %q", got)
	}
	if got := Translate("Alert #%d deleted", 7); got != "Alert #7 deleted" {
		t.Fatalf("got %q", got)
	}
}
