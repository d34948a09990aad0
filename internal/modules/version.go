package modules

import (
	"strconv"
	"strings"
)

// CompareVersions orders dotted versions numerically segment by segment:
// -1 if a < b, 0 if equal, 1 if a > b. Missing segments count as zero and a
// pre-release suffix (1.2-beta) sorts before the release.
func CompareVersions(a, b string) int {
	an, apre := splitVersion(a)
	bn, bpre := splitVersion(b)
	for i := 0; i < max(len(an), len(bn)); i++ {
		var x, y int
		if i < len(an) {
			x = an[i]
		}
		if i < len(bn) {
			y = bn[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	switch {
	case apre == bpre:
		return 0
	case apre == "":
		return 1
	case bpre == "":
		return -1
	case apre < bpre:
		return -1
	default:
		return 1
	}
}

func splitVersion(v string) ([]int, string) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	var pre string
	if i := strings.IndexAny(v, "-+ "); i >= 0 {
		v, pre = v[:i], v[i+1:]
	}
	var nums []int
	for _, seg := range strings.Split(v, ".") {
		n, err := strconv.Atoi(seg)
		if err != nil {
			n = 0
		}
		nums = append(nums, n)
	}
	return nums, pre
}
