package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler(t *testing.T) {
	Conversions.WithLabelValues("google", "spotify", "ok").Inc()
	SongMatches.WithLabelValues("spotify", "missed").Add(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`melodari_conversions_total{result="ok",source="google",target="spotify"}`,
		`melodari_song_matches_total{result="missed",target="spotify"} 2`,
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestResult(t *testing.T) {
	if Result(nil) != "ok" {
		t.Error("expected ok for nil error")
	}
	if Result(errors.New("boom")) != "error" {
		t.Error("expected error for non-nil error")
	}
}
