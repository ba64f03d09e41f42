package emmap

import (
	"fmt"
	"strings"
)

// parseSymmetryOperator parses one crystallographic symmetry operator
// string, e.g. "-X+1/2, Y, Z+1/4", into an affine 4×4 matrix over
// fractional coordinates with bottom row (0,0,0,1). Parsing is
// case-insensitive and ignores whitespace. Each comma-separated
// expression becomes one row: ±x/±y/±z terms set the linear part,
// ±p/q terms the translation column.
func parseSymmetryOperator(s string) ([4][4]float64, error) {
	var mat [4][4]float64
	mat[3][3] = 1

	exprs := strings.Split(s, ",")
	if len(exprs) != 3 {
		return mat, fmt.Errorf("%w: %d expressions in %q, want 3", ErrBadSymmetryOperator, len(exprs), strings.TrimSpace(s))
	}
	for row, expr := range exprs {
		if err := parseSymmetryExpr(expr, &mat[row]); err != nil {
			return mat, err
		}
	}
	return mat, nil
}

// parseSymmetryExpr parses one expression ("-x+1/2") into a matrix row.
func parseSymmetryExpr(expr string, row *[4]float64) error {
	s := strings.ToLower(expr)
	i := 0
	sawTerm := false
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == 0:
			i++
		case c == '+' || c == '-' || c == 'x' || c == 'y' || c == 'z' || c >= '0' && c <= '9':
			n, err := parseSymmetryTerm(s[i:], row)
			if err != nil {
				return err
			}
			i += n
			sawTerm = true
		default:
			return fmt.Errorf("%w: unexpected %q in %q", ErrBadSymmetryOperator, c, strings.TrimSpace(expr))
		}
	}
	if !sawTerm {
		return fmt.Errorf("%w: empty expression", ErrBadSymmetryOperator)
	}
	return nil
}

// parseSymmetryTerm consumes one signed term at the head of s and
// returns how many bytes it consumed.
func parseSymmetryTerm(s string, row *[4]float64) (int, error) {
	i := 0
	sign := 1.0
	for i < len(s) && (s[i] == '+' || s[i] == '-' || s[i] == ' ') {
		if s[i] == '-' {
			sign = -sign
		}
		i++
	}
	if i >= len(s) {
		return 0, fmt.Errorf("%w: dangling sign", ErrBadSymmetryOperator)
	}
	switch c := s[i]; {
	case c == 'x' || c == 'y' || c == 'z':
		row[int(c-'x')] = sign
		return i + 1, nil
	case c >= '0' && c <= '9':
		p, n := parseDigits(s[i:])
		i += n
		q := 1.0
		if i < len(s) && s[i] == '/' {
			i++
			if i >= len(s) || s[i] < '0' || s[i] > '9' {
				return 0, fmt.Errorf("%w: missing denominator", ErrBadSymmetryOperator)
			}
			var dn int
			q, dn = parseDigits(s[i:])
			i += dn
			if q == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrBadSymmetryOperator)
			}
		}
		row[3] += sign * p / q
		return i, nil
	default:
		return 0, fmt.Errorf("%w: unexpected %q", ErrBadSymmetryOperator, c)
	}
}

// parseDigits reads a run of ASCII digits and returns its value and width.
func parseDigits(s string) (float64, int) {
	v := 0.0
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		v = v*10 + float64(s[i]-'0')
		i++
	}
	return v, i
}
