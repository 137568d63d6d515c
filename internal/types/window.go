package types

import "fmt"

// GenerateWindow produces the retrieval window: an ordered sequence of
// count periods walking strictly backwards one month at a time, starting
// at start. The result always has length count with start as its first
// element.
//
// The generator is pure; it performs no I/O and is safe to call from
// anywhere. A count below 1 or an out-of-range start is rejected.
func GenerateWindow(start Period, count int) ([]Period, error) {
	if count < 1 {
		return nil, NewAppError(
			ErrCodeValidationInvalidCount,
			fmt.Sprintf("window count must be at least 1, got %d", count),
			nil,
		)
	}
	if err := start.Validate(); err != nil {
		return nil, err
	}

	window := make([]Period, 0, count)
	p := start
	for i := 0; i < count; i++ {
		window = append(window, p)
		p = p.StepBack()
	}
	return window, nil
}
