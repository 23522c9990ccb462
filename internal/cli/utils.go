// Package cli provides output helpers for the tagsearch command line.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/tagsearch/internal/models"
	"github.com/hyperjump/tagsearch/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// maxTextIDs bounds the ids listed in text output.
const maxTextIDs = 100

// ParseFormat validates a -format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d posts in %dms (page %d, %d per page)\n\n",
		response.Total, response.QueryTime, response.Page, response.Limit)
	if len(response.PostIDs) > 0 {
		fmt.Fprintln(w, utils.JoinIDs(response.PostIDs, maxTextIDs))
	}
	if len(response.Suggestions) > 0 {
		fmt.Fprintf(w, "Did you mean: %s\n", strings.Join(response.Suggestions, ", "))
	}
	return nil
}

// WriteParseResult writes a parsed query model.
func WriteParseResult(w io.Writer, response *models.CompileResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "Query: %s\n\n", response.Query)
	return writeIndented(w, response.Model)
}

// WriteCompileResult writes the compiled forms of a query.
func WriteCompileResult(w io.Writer, response *models.CompileResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "Query: %s\n", response.Query)
	if response.SQL != nil {
		raw, err := response.SQL.MarshalJSON()
		if err != nil {
			return err
		}
		var sql struct {
			Where string `json:"where"`
			Args  []any  `json:"args"`
		}
		if err := json.Unmarshal(raw, &sql); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n--- SQL ---\nWHERE %s\n", sql.Where)
		for i, arg := range sql.Args {
			fmt.Fprintf(w, "  $%d = %s\n", i+1, utils.Truncate(fmt.Sprint(arg), 200))
		}
	}
	if response.Index != nil {
		raw, err := response.Index.MarshalJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "\n--- Index ---")
		return writeIndented(w, raw)
	}
	return nil
}

// WriteStatus writes service statistics.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "Posts:         %d\n", status.Posts)
	fmt.Fprintf(w, "Tags:          %d\n", status.Tags)
	fmt.Fprintf(w, "Indexed posts: %d\n", status.IndexedPosts)
	fmt.Fprintf(w, "Disk usage:    %d bytes\n", status.DiskUsageBytes)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeIndented(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("failed to format json: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
