package tagquery

import (
	"errors"
	"fmt"
)

// ErrCountExceeded is matched by errors.Is for queries naming too many tags.
var ErrCountExceeded = errors.New("tag count exceeded")

// CountExceededError reports a query with more plain tags than the configured limit, or a
// wildcard Pattern matching more tags than the wildcard limit.
type CountExceededError struct {
	Limit   int
	Count   int
	Pattern string
}

func (e *CountExceededError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("wildcard %q matches more than %d tags", e.Pattern, e.Limit)
	}
	return fmt.Sprintf("you cannot search for more than %d tags at a time (got %d)", e.Limit, e.Count)
}

func (e *CountExceededError) Is(target error) bool {
	return target == ErrCountExceeded
}
