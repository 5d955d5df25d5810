package host

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// satisfies reports whether version matches every comparison in constraint, e.g.
// ">=0.1.6" or ">=0.1.0, <1.0.0". An empty constraint matches anything.
func satisfies(version, constraint string) (bool, error) {
	v := canonical(version)
	if !semver.IsValid(v) {
		return false, fmt.Errorf("invalid host version %q", version)
	}

	for _, part := range strings.FieldsFunc(constraint, func(r rune) bool { return r == ',' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		op := "="
		for _, candidate := range []string{">=", "<=", ">", "<", "="} {
			if rest, ok := strings.CutPrefix(part, candidate); ok {
				op, part = candidate, strings.TrimSpace(rest)
				break
			}
		}

		want := canonical(part)
		if !semver.IsValid(want) {
			return false, fmt.Errorf("invalid version constraint %q", constraint)
		}

		cmp := semver.Compare(v, want)
		var ok bool
		switch op {
		case ">=":
			ok = cmp >= 0
		case "<=":
			ok = cmp <= 0
		case ">":
			ok = cmp > 0
		case "<":
			ok = cmp < 0
		default:
			ok = cmp == 0
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}
