package i18n

import (
	"context"
	"testing"
)

func ctxFor(langs ...string) context.Context {
	return WithLocalizer(context.Background(), NewLocalizer(langs...))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name  string
		langs []string
		id    string
		want  string
	}{
		{name: "english", langs: []string{"en"}, id: "ALREADY_ATTEMPTED", want: "You have already attempted this exam."},
		{name: "indonesian", langs: []string{"id"}, id: "ALREADY_ATTEMPTED", want: "Anda sudah mengerjakan ujian ini."},
		{name: "accept-language header", langs: []string{"id-ID,id;q=0.9,en;q=0.8"}, id: "UNKNOWN_ACTION", want: "Aksi tidak dikenal."},
		{name: "unsupported falls back", langs: []string{"fr"}, id: "UNKNOWN_ACTION", want: "Unknown action."},
		{name: "missing id", langs: []string{"en"}, id: "NoSuchMessage", want: "NoSuchMessage"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := T(ctxFor(tc.langs...), tc.id); got != tc.want {
				t.Errorf("T(%q) = %q, want %q", tc.id, got, tc.want)
			}
		})
	}
}

func TestTemplateData(t *testing.T) {
	got := Td(ctxFor("en"), "NoticeViolationWarning", map[string]any{"Count": 2, "Limit": 3})
	want := "Warning 2/3: leaving the exam window is not allowed. The exam is submitted automatically after 3 warnings."
	if got != want {
		t.Errorf("Td() = %q, want %q", got, want)
	}
}

func TestContextWithoutLocalizer(t *testing.T) {
	if got := T(context.Background(), "NOT_FOUND"); got != "Resource not found." {
		t.Errorf("T() = %q", got)
	}
}
