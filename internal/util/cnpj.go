// Package util provides small shared helpers.
package util

import "strings"

// NormalizeCNPJ strips everything but digits and truncates to the 14 digits
// of a full CNPJ.
func NormalizeCNPJ(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == 14 {
				break
			}
		}
	}
	return b.String()
}

// FormatCNPJ applies the 00.000.000/0000-00 mask progressively, so partial
// input renders the longest valid prefix of the mask.
func FormatCNPJ(value string) string {
	d := NormalizeCNPJ(value)
	switch {
	case len(d) > 12:
		return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
	case len(d) > 8:
		return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:]
	case len(d) > 5:
		return d[:2] + "." + d[2:5] + "." + d[5:]
	case len(d) > 2:
		return d[:2] + "." + d[2:]
	}
	return d
}
