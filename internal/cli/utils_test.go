package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/tagsearch/internal/indexquery"
	"github.com/hyperjump/tagsearch/internal/models"
	"github.com/hyperjump/tagsearch/internal/sqlquery"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := &models.SearchResponse{
		Query:     "fox",
		PostIDs:   []int64{3, 1},
		Total:     2,
		Page:      1,
		Limit:     75,
		QueryTime: 42,
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "fox" || decoded.Total != 2 || len(decoded.PostIDs) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	response := &models.SearchResponse{
		Query:       "foz",
		Total:       0,
		Page:        1,
		Limit:       75,
		QueryTime:   10,
		Suggestions: []string{"fox", "fog"},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"Found 0 posts", "10ms", "page 1", "Did you mean: fox, fog"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	response = &models.SearchResponse{PostIDs: []int64{9, 8}, Total: 2, Page: 1, Limit: 2}
	if err := WriteSearchResults(&buf, response, OutputFormat("unknown")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "9 8") {
		t.Errorf("ids missing from text output:\n%s", buf.String())
	}
}

func TestWriteCompileResult_text(t *testing.T) {
	response := &models.CompileResponse{
		Query: "rating:s",
		SQL:   (&sqlquery.Relation{}).Where("posts.rating = ?", "s"),
		Index: &indexquery.Document{Must: []indexquery.Clause{indexquery.Term{Field: "rating", Value: "s"}}},
	}
	var buf bytes.Buffer
	if err := WriteCompileResult(&buf, response, OutputText); err != nil {
		t.Fatalf("WriteCompileResult(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"--- SQL ---", "WHERE (posts.rating = $1)", "$1 = s", "--- Index ---", `"rating"`} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteCompileResult_sqlOnlyJSON(t *testing.T) {
	response := &models.CompileResponse{
		Query: "fox",
		SQL:   &sqlquery.Relation{},
	}
	var buf bytes.Buffer
	if err := WriteCompileResult(&buf, response, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["index"]; ok {
		t.Error("index should be omitted")
	}
	if decoded["sql"].(map[string]any)["where"] != "TRUE" {
		t.Errorf("sql = %v", decoded["sql"])
	}
}

func TestWriteParseResult(t *testing.T) {
	response := &models.CompileResponse{Query: "fox", Model: json.RawMessage(`{"tags":{"must":["fox"]}}`)}
	var buf bytes.Buffer
	if err := WriteParseResult(&buf, response, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Query: fox") || !strings.Contains(buf.String(), `"must": [`) {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	response.Model = json.RawMessage(`{broken`)
	if err := WriteParseResult(&buf, response, OutputText); err == nil {
		t.Error("expected error for malformed model")
	}
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatus(&buf, &models.StatusResponse{Posts: 4, Tags: 7, IndexedPosts: 4}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Tags:          7") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}
