package version

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Components is a dotted version split into its parts.
type Components []string

var ltsPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)

// Parse takes a release version and splits it into components.
//
// Example:
// Parse("2.289.1") = ["2", "289", "1"]
func Parse(version string) Components {
	return strings.FieldsFunc(version, func(r rune) bool {
		return r == '.' || r == '-' || unicode.IsSpace(r)
	})
}

// IsGreater takes two parsed versions and returns true
// if the first operand is greater than the second one.
//
// Numeric components are compared as numbers, so 8.10.0 is greater than 8.9.0.
// It can be used as a comparator in a sort-function.
func IsGreater(a, b Components) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		numA, errA := strconv.ParseUint(a[i], 10, 64)
		numB, errB := strconv.ParseUint(b[i], 10, 64)

		if errA == nil && errB == nil {
			if numA != numB {
				return numA > numB
			}

			continue
		}

		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}

	return len(a) > len(b)
}

// Less reports whether version a is ordered before version b.
func Less(a, b string) bool {
	return IsGreater(Parse(b), Parse(a))
}

// SortUnique deduplicates versions and sorts them in ascending order.
// The input slice is not modified.
func SortUnique(versions []string) []string {
	seen := make(map[string]struct{}, len(versions))
	unique := make([]string, 0, len(versions))
	for _, v := range versions {
		if _, dup := seen[v]; dup {
			continue
		}

		seen[v] = struct{}{}
		unique = append(unique, v)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return Less(unique[i], unique[j])
	})

	return unique
}

// IsLTS checks whether the version has the strict N.N.N shape of a long-term-support release.
// Weekly releases (N.N) never match.
func IsLTS(version string) bool {
	return ltsPattern.MatchString(version)
}

// LatestLTS walks versions in the given order and returns the last LTS-shaped entry.
// Non-LTS entries never reset the captured value. It returns "" if there are none.
func LatestLTS(versions []string) string {
	var lts string
	for _, v := range versions {
		if IsLTS(v) {
			lts = v
		}
	}

	return lts
}
