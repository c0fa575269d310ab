package core

import (
	"regexp"
	"strings"
)

// Category is one of the fixed expense buckets.
type Category string

const (
	Roko     Category = "Roko"
	Bensin   Category = "Bensin"
	Paket    Category = "Paket"
	Makan    Category = "Makan"
	Minum    Category = "Minum"
	Jajan    Category = "Jajan"
	LainLain Category = "Lain-lain"
)

// Categories lists every category in display order.
var Categories = []Category{Roko, Bensin, Paket, Makan, Minum, Jajan, LainLain}

type categoryRule struct {
	pattern  *regexp.Regexp
	category Category
}

// Evaluated in order, first match wins. Word boundaries only bind the first
// and last branch of each alternation, so "air" also matches "pair".
var categoryRules = []categoryRule{
	{regexp.MustCompile(`^lain-lain`), LainLain},
	{regexp.MustCompile(`\brok|rokok|roko\b`), Roko},
	{regexp.MustCompile(`\bbensin|bbm|fuel\b`), Bensin},
	{regexp.MustCompile(`\bpaket|kurir|ongkir\b`), Paket},
	{regexp.MustCompile(`\bmakan|mkn|food\b`), Makan},
	{regexp.MustCompile(`\bminum|drink|air|kopi|teh\b`), Minum},
	{regexp.MustCompile(`\bjajan|snack|cemilan|camilan\b`), Jajan},
}

// Classify maps free text to a category. It is total: anything that matches
// no rule and is not a category name falls into Lain-lain.
func Classify(text string) Category {
	s := strings.ToLower(text)
	if strings.TrimSpace(s) == "" {
		return LainLain
	}
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(s) {
			return rule.category
		}
	}
	if c, ok := ParseCategory(s); ok {
		return c
	}
	return LainLain
}

// ParseCategory matches s against the category names, ignoring case and
// surrounding whitespace.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}
