package pipeline

import "time"

// ExpandDates returns the inclusive sequence of ISO dates from first to
// last, in ascending order. When first is after last the sequence is empty.
func ExpandDates(first, last string) ([]string, error) {
	f, err := time.Parse(time.DateOnly, first)
	if err != nil {
		return nil, err
	}
	l, err := time.Parse(time.DateOnly, last)
	if err != nil {
		return nil, err
	}
	var dates []string
	for d := f; !d.After(l); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(time.DateOnly))
	}
	return dates, nil
}
