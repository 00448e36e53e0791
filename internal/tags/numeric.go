package tags

import "strconv"

func parseIntAttr(s string) (int, error) {
	n, err := strconv.Atoi(s)
	return n, err
}

func parseFloatAttr(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err
}
