// Package parsevalue converts textual range expressions ("5", ">5", "5..10", "5,6,7") into
// typed range predicates used by the tag query compiler.
package parsevalue

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Op is a range comparison operator.
type Op string

const (
	Eq      Op = "eq"
	Gt      Op = "gt"
	Gte     Op = "gte"
	Lt      Op = "lt"
	Lte     Op = "lte"
	In      Op = "in"
	Between Op = "between"
)

// MaxInValues caps the number of values accepted in a comma list.
const MaxInValues = 100

// Type selects how the operands of a range are coerced.
type Type string

const (
	Integer  Type = "integer"
	Float    Type = "float"
	Filesize Type = "filesize"
	Ratio    Type = "ratio"
	Date     Type = "date"
	Age      Type = "age"
)

// Range is one parsed range predicate. Eq/Gt/Gte/Lt/Lte carry one value, Between carries
// min and max, In carries the list.
type Range struct {
	Op     Op
	Values []any
}

// Value returns the first operand.
func (r Range) Value() any {
	if len(r.Values) == 0 {
		return nil
	}
	return r.Values[0]
}

// MarshalJSON encodes the range as [op, value...], or [op, [values]] for In.
func (r Range) MarshalJSON() ([]byte, error) {
	if r.Op == In {
		return json.Marshal([]any{r.Op, r.Values})
	}
	out := make([]any, 0, len(r.Values)+1)
	out = append(out, r.Op)
	out = append(out, r.Values...)
	return json.Marshal(out)
}

// Error reports a range expression that could not be parsed.
type Error struct {
	Input string
	Type  Type
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s value %q: %v", e.Type, e.Input, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Parser parses range expressions relative to a clock.
type Parser struct {
	now func() time.Time
}

// NewParser returns a parser. A nil clock means time.Now.
func NewParser(now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{now: now}
}

// Now returns the parser's current time.
func (p *Parser) Now() time.Time { return p.now() }

// Range parses text as a range over values of type typ.
func (p *Parser) Range(text string, typ Type) (Range, error) {
	one := func(op Op, s string) (Range, error) {
		v, err := p.cast(s, typ)
		if err != nil {
			return Range{}, err
		}
		return Range{Op: op, Values: []any{v}}, nil
	}

	switch {
	case strings.HasPrefix(text, "<="):
		return one(Lte, text[2:])
	case strings.HasPrefix(text, ">="):
		return one(Gte, text[2:])
	case strings.HasPrefix(text, "<"):
		return one(Lt, text[1:])
	case strings.HasPrefix(text, ">"):
		return one(Gt, text[1:])
	case strings.Contains(text, ".."):
		left, right, _ := strings.Cut(text, "..")
		switch {
		case left == "" && right == "":
			return Range{}, &Error{Input: text, Type: typ, Err: fmt.Errorf("empty range")}
		case left == "":
			return one(Lte, right)
		case right == "":
			return one(Gte, left)
		}
		lo, err := p.cast(left, typ)
		if err != nil {
			return Range{}, err
		}
		hi, err := p.cast(right, typ)
		if err != nil {
			return Range{}, err
		}
		return Range{Op: Between, Values: []any{lo, hi}}, nil
	case strings.Contains(text, ","):
		parts := strings.Split(text, ",")
		if len(parts) > MaxInValues {
			parts = parts[:MaxInValues]
		}
		values := make([]any, 0, len(parts))
		for _, part := range parts {
			if part == "" {
				continue
			}
			v, err := p.cast(part, typ)
			if err != nil {
				return Range{}, err
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			return Range{}, &Error{Input: text, Type: typ, Err: fmt.Errorf("empty list")}
		}
		return Range{Op: In, Values: values}, nil
	default:
		return one(Eq, text)
	}
}

// RangeFudged widens an exact match into a ±5% band, since mpixels and filesize are
// rarely typed exactly.
func (p *Parser) RangeFudged(text string, typ Type) (Range, error) {
	r, err := p.Range(text, typ)
	if err != nil || r.Op != Eq {
		return r, err
	}
	switch v := r.Value().(type) {
	case int64:
		lo := int64(math.Max(float64(v)*0.95, 0))
		hi := int64(float64(v) * 1.05)
		return Range{Op: Between, Values: []any{lo, hi}}, nil
	case float64:
		return Range{Op: Between, Values: []any{math.Max(v*0.95, 0), v * 1.05}}, nil
	}
	return r, nil
}

// DateRange parses a date range, accepting the relative keywords today, yesterday, day,
// week, month, year and decade.
func (p *Parser) DateRange(text string) (Range, error) {
	now := p.now()
	switch strings.ToLower(text) {
	case "today":
		return Range{Op: Gte, Values: []any{startOfDay(now)}}, nil
	case "yesterday":
		return Range{Op: Between, Values: []any{startOfDay(now.AddDate(0, 0, -1)), startOfDay(now)}}, nil
	case "day":
		return Range{Op: Gte, Values: []any{now.AddDate(0, 0, -1)}}, nil
	case "week":
		return Range{Op: Gte, Values: []any{now.AddDate(0, 0, -7)}}, nil
	case "month":
		return Range{Op: Gte, Values: []any{now.AddDate(0, -1, 0)}}, nil
	case "year":
		return Range{Op: Gte, Values: []any{now.AddDate(-1, 0, 0)}}, nil
	case "decade":
		return Range{Op: Gte, Values: []any{now.AddDate(-10, 0, 0)}}, nil
	}
	return p.Range(text, Date)
}

// InvertRange flips the direction of one-sided comparisons and swaps between bounds. Age
// ranges are relative to now, so "age:<2d" means created after two days ago and "age:1d..3d"
// spans from three days ago to one day ago.
func InvertRange(r Range) Range {
	switch r.Op {
	case Between:
		if len(r.Values) == 2 {
			r.Values = []any{r.Values[1], r.Values[0]}
		}
	case Lt:
		r.Op = Gt
	case Lte:
		r.Op = Gte
	case Gt:
		r.Op = Lt
	case Gte:
		r.Op = Lte
	}
	return r
}

var (
	filesizePattern = regexp.MustCompile(`^(\d+(?:\.\d*)?|\.\d+)([kKmM]?)[bB]?$`)
	ratioPattern    = regexp.MustCompile(`^(\d+(?:\.\d+)?):(\d+(?:\.\d+)?)$`)
	agePattern      = regexp.MustCompile(`(?i)^(\d+)(s|seconds?|mi|mins?|minutes?|h|hours?|d|days?|w|weeks?|mo|months?|y|years?)?$`)
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (p *Parser) cast(s string, typ Type) (any, error) {
	s = strings.TrimSpace(s)
	fail := func(err error) (any, error) {
		return nil, &Error{Input: s, Type: typ, Err: err}
	}
	switch typ {
	case Integer:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fail(err)
		}
		return v, nil
	case Float:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fail(err)
		}
		return v, nil
	case Ratio:
		if m := ratioPattern.FindStringSubmatch(s); m != nil {
			num, _ := strconv.ParseFloat(m[1], 64)
			den, _ := strconv.ParseFloat(m[2], 64)
			if den == 0 {
				return fail(fmt.Errorf("zero denominator"))
			}
			return math.Round(num/den*100) / 100, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fail(err)
		}
		return v, nil
	case Filesize:
		m := filesizePattern.FindStringSubmatch(s)
		if m == nil {
			return fail(fmt.Errorf("not a file size"))
		}
		size, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return fail(err)
		}
		switch strings.ToLower(m[2]) {
		case "k":
			size *= 1024
		case "m":
			size *= 1024 * 1024
		}
		return int64(size), nil
	case Date:
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, p.now().Location()); err == nil {
				return t, nil
			}
		}
		return fail(fmt.Errorf("unrecognized date format"))
	case Age:
		m := agePattern.FindStringSubmatch(s)
		if m == nil {
			return fail(fmt.Errorf("not an age"))
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return fail(err)
		}
		return ageAgo(p.now(), n, strings.ToLower(m[2])), nil
	}
	return fail(fmt.Errorf("unknown range type"))
}

func ageAgo(now time.Time, n int, unit string) time.Time {
	switch {
	case unit == "s" || strings.HasPrefix(unit, "sec"):
		return now.Add(-time.Duration(n) * time.Second)
	case strings.HasPrefix(unit, "mi"):
		return now.Add(-time.Duration(n) * time.Minute)
	case strings.HasPrefix(unit, "h"):
		return now.Add(-time.Duration(n) * time.Hour)
	case strings.HasPrefix(unit, "w"):
		return now.AddDate(0, 0, -7*n)
	case strings.HasPrefix(unit, "mo"):
		return now.AddDate(0, -n, 0)
	case strings.HasPrefix(unit, "y"):
		return now.AddDate(-n, 0, 0)
	default:
		return now.AddDate(0, 0, -n)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayBounds returns the first and last instant of t's calendar day. Compilers use it to
// widen an exact date match to the whole day.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := startOfDay(t)
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
