// Package version represents the GameMaker engine version as a structured
// tuple with a partial order, including the LTS/non-LTS branch distinction
// spec.md §9 calls out: "a non-LTS version is ordered above an LTS version
// of the same numeric release."
package version

import "fmt"

// Branch distinguishes the long-term-support fork from mainline (GLOSSARY
// "LTS branch"). PreLTS is the initial assumption before detection runs;
// spec.md §4.8 says it is upgraded to LTS once the detected version reaches
// 2023.1 and is still tagged PreLTS.
type Branch uint8

const (
	PreLTS Branch = iota
	LTS
	NonLTS
)

// Version is (major, minor, release, build, branch). Branch is a separate
// field: ordering compares (Major, Minor, Release, Build) first, and only
// consults Branch to break a tie on equal numeric components.
type Version struct {
	Major, Minor, Release, Build int
	Branch                       Branch
}

// V is a convenience constructor for a plain (non-LTS-disambiguated)
// version tuple.
func V(major, minor, release, build int) Version {
	return Version{Major: major, Minor: minor, Release: release, Build: build}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Release, v.Build)
}

// numericCompare compares only the (Major, Minor, Release, Build) tuple,
// ignoring Branch.
func numericCompare(a, b Version) int {
	for _, pair := range [][2]int{
		{a.Major, b.Major}, {a.Minor, b.Minor},
		{a.Release, b.Release}, {a.Build, b.Build},
	} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func branchRank(b Branch) int {
	switch b {
	case NonLTS:
		return 1
	case LTS:
		return 0
	default: // PreLTS
		return 0
	}
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than
// b. On equal numeric tuples, a NonLTS branch sorts above an LTS (or
// PreLTS) branch, per spec.md §9.
func Compare(a, b Version) int {
	if c := numericCompare(a, b); c != 0 {
		return c
	}
	ra, rb := branchRank(a.Branch), branchRank(b.Branch)
	if ra == rb {
		return 0
	}
	if ra < rb {
		return -1
	}
	return 1
}

// AtLeast reports whether v >= other.
func (v Version) AtLeast(other Version) bool { return Compare(v, other) >= 0 }

// LessThan reports whether v < other.
func (v Version) LessThan(other Version) bool { return Compare(v, other) < 0 }

// Max returns whichever of a, b compares greater.
func Max(a, b Version) Version {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

// Well-known thresholds referenced throughout the element codecs and the
// version-detection probes.
var (
	V2                = V(2, 0, 0, 0)
	V2_2_1            = V(2, 2, 1, 0)
	V2_2_2_302        = Version{Major: 2, Minor: 2, Release: 2, Build: 302}
	V2_3              = V(2, 3, 0, 0)
	V2_3_1            = V(2, 3, 1, 0)
	V2_3_2            = V(2, 3, 2, 0)
	V2022_1           = V(2022, 1, 0, 0)
	V2022_2           = V(2022, 2, 0, 0)
	V2022_3           = V(2022, 3, 0, 0)
	V2022_5           = V(2022, 5, 0, 0)
	V2022_6           = V(2022, 6, 0, 0)
	V2022_9           = V(2022, 9, 0, 0)
	V2023_1           = V(2023, 1, 0, 0)
	V2023_2           = V(2023, 2, 0, 0)
	V2023_4           = V(2023, 4, 0, 0)
	V2023_6           = V(2023, 6, 0, 0)
	V2023_8           = V(2023, 8, 0, 0)
	V2024_2           = V(2024, 2, 0, 0)
	V2024_4           = V(2024, 4, 0, 0)
	V2024_6           = V(2024, 6, 0, 0)
	V2024_8           = V(2024, 8, 0, 0)
	V2024_11          = V(2024, 11, 0, 0)
	V2024_13          = V(2024, 13, 0, 0)
	V2024_14          = V(2024, 14, 0, 0)
)
