package oicp

import (
	"fmt"
	"strconv"
	"strings"
)

// Decimal is a wire decimal serialized with at most 3 fractional digits and a
// literal '.' separator. Partner backends reject locale-dependent separators,
// so formatting never goes through locale-aware code paths.
type Decimal float64

// String renders the canonical wire form, e.g. 12.5 → "12.5", 3 → "3".
func (d Decimal) String() string {
	s := strconv.FormatFloat(float64(d), 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// MarshalJSON emits the decimal as a JSON number in canonical form.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON accepts JSON numbers and numeric strings.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("oicp: invalid decimal %q", s)
	}
	*d = Decimal(v)
	return nil
}
