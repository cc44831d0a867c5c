package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionInfo represents parsed version components
type VersionInfo struct {
	Major int
	Minor int
	Patch int
	Build int
}

// Patch is a parsed --patch value: "1" or "2" for the latest release of a
// game, or a specific content version.
type Patch struct {
	// Game is 1 for Path of Exile and 2 for Path of Exile 2.
	Game int
	// Version is empty when the latest release was requested.
	Version string
}

// Latest reports whether the live version must be resolved from the patch server.
func (p Patch) Latest() bool {
	return p.Version == ""
}

// Major returns the major content version: 3 for PoE1, 4 for PoE2.
func (p Patch) Major() int {
	return p.Game + 2
}

func (p Patch) String() string {
	if p.Latest() {
		return strconv.Itoa(p.Game)
	}
	return p.Version
}

// ParsePatch parses "1", "2" or a specific version such as "3.25.3.4".
func ParsePatch(s string) (Patch, error) {
	switch s {
	case "1":
		return Patch{Game: 1}, nil
	case "2":
		return Patch{Game: 2}, nil
	}

	major, err := ParseGameVersion(s)
	if err != nil {
		return Patch{}, fmt.Errorf("parsing patch %q: %w", s, err)
	}
	if _, err := ParseVersionInfo(s); err != nil {
		return Patch{}, fmt.Errorf("parsing patch %q: %w", s, err)
	}

	return Patch{Game: major - 2, Version: s}, nil
}

// ParseGameVersion parses a game version string and returns the major version number
func ParseGameVersion(version string) (int, error) {
	if version == "" {
		return 0, fmt.Errorf("version string cannot be empty")
	}

	major, _, _ := strings.Cut(version, ".")
	majorVersion, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("invalid major version number: %s", major)
	}

	if majorVersion < 3 || majorVersion > 4 {
		return 0, fmt.Errorf("unsupported game version: %d (must be 3.x or 4.x)", majorVersion)
	}

	return majorVersion, nil
}

// ParseVersionInfo parses a full version string (e.g., "3.21.2.1") into components
func ParseVersionInfo(version string) (*VersionInfo, error) {
	if version == "" {
		return nil, fmt.Errorf("version string cannot be empty")
	}

	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid version format: %s (expected at least major.minor)", version)
	}

	fields := []*int{new(int), new(int), new(int), new(int)}
	names := []string{"major", "minor", "patch", "build"}
	for i, part := range parts {
		if i >= len(fields) {
			return nil, fmt.Errorf("invalid version format: %s (too many components)", version)
		}
		if part == "" && i >= 2 {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid %s version: %s", names[i], part)
		}
		*fields[i] = n
	}

	return &VersionInfo{
		Major: *fields[0],
		Minor: *fields[1],
		Patch: *fields[2],
		Build: *fields[3],
	}, nil
}

// CompareVersions compares two version strings
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersions(v1, v2 string) (int, error) {
	info1, err := ParseVersionInfo(v1)
	if err != nil {
		return 0, fmt.Errorf("error parsing version %s: %w", v1, err)
	}

	info2, err := ParseVersionInfo(v2)
	if err != nil {
		return 0, fmt.Errorf("error parsing version %s: %w", v2, err)
	}

	a := [4]int{info1.Major, info1.Minor, info1.Patch, info1.Build}
	b := [4]int{info2.Major, info2.Minor, info2.Patch, info2.Build}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1, nil
		case a[i] > b[i]:
			return 1, nil
		}
	}

	return 0, nil
}

// IsModernPoE checks if the version hashes paths with MurmurHash64A (≥3.21.2)
func IsModernPoE(version string) (bool, error) {
	cmp, err := CompareVersions(version, "3.21.2")
	if err != nil {
		return false, err
	}
	return cmp >= 0, nil
}
