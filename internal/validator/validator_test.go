package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stemsi/exam-portal/internal/model"
)

type payload struct {
	Code  string `json:"code" binding:"required,notblank"`
	Title string `json:"title" binding:"required,max=5"`
}

func bindRequest(t *testing.T, body, lang string) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	Setup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if lang != "" {
		c.Request.Header.Set("Accept-Language", lang)
	}

	var dst payload
	return Bind(c, &dst)
}

func TestBind(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		lang       string
		wantFields []string
		wantText   map[string]string
	}{
		{name: "valid", body: `{"code":"ABC","title":"Quiz"}`},
		{
			name:       "blank code",
			body:       `{"code":"   ","title":"Quiz"}`,
			wantFields: []string{"code"},
			wantText:   map[string]string{"code": "code must not be blank"},
		},
		{
			name:       "blank code in indonesian",
			body:       `{"code":"  ","title":"Quiz"}`,
			lang:       "id-ID,id;q=0.9",
			wantFields: []string{"code"},
			wantText:   map[string]string{"code": "code tidak boleh kosong"},
		},
		{name: "too long and missing", body: `{"title":"Midterm"}`, wantFields: []string{"code", "title"}},
		{name: "malformed json", body: `{"code":`, wantFields: []string{"detail"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fields := bindRequest(t, tc.body, tc.lang)
			if len(tc.wantFields) == 0 {
				if fields != nil {
					t.Fatalf("unexpected errors: %v", fields)
				}
				return
			}
			if len(fields) != len(tc.wantFields) {
				t.Fatalf("fields = %v, want keys %v", fields, tc.wantFields)
			}
			for _, f := range tc.wantFields {
				if _, ok := fields[f]; !ok {
					t.Errorf("missing field %q in %v", f, fields)
				}
			}
			for f, want := range tc.wantText {
				if fields[f] != want {
					t.Errorf("%s = %q, want %q", f, fields[f], want)
				}
			}
		})
	}
}

func TestTranslatorFallback(t *testing.T) {
	Setup()
	if got := Translator("fr-FR").Locale(); got != "en" {
		t.Errorf("locale = %q, want en", got)
	}
	if got := Translator("", "id").Locale(); got != "id" {
		t.Errorf("locale = %q, want id", got)
	}
}

func TestCreateExamRejectsRepeatedCorrectAnswer(t *testing.T) {
	Setup()
	req := model.CreateExamRequest{
		Title:           "Chemistry",
		SecretCode:      "CHEM-01",
		DurationMinutes: 30,
		Questions: []model.QuestionInput{{
			Text:           "Which is a noble gas?",
			Options:        []model.Option{{ID: "o1", Text: "Oxygen"}, {ID: "o2", Text: "Argon"}},
			CorrectAnswers: []string{"o2", "o2"},
			Marks:          1,
		}},
	}

	err := binding.Validator.ValidateStruct(&req)
	if err == nil {
		t.Fatal("repeated correct answer accepted")
	}
	fields := TranslateErrors(err, Translator("en"))
	if _, ok := fields["correct_answers"]; !ok {
		t.Errorf("fields = %v, want correct_answers", fields)
	}

	req.Questions[0].CorrectAnswers = []string{"o2"}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		t.Errorf("single correct answer rejected: %v", err)
	}
}
