package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Version is a service node software version (major, minor, patch).
type Version [3]int

// ParseVersion parses "a.b.c". Missing trailing components are zero.
func ParseVersion(s string) (Version, error) {
	var v Version
	s = strings.TrimSpace(s)
	if s == "" {
		return v, fmt.Errorf("empty version")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return v, fmt.Errorf("invalid version %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return v, fmt.Errorf("invalid version %q", s)
		}
		v[i] = n
	}
	return v, nil
}

func (v Version) IsZero() bool {
	return v == Version{}
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	for i := range v {
		switch {
		case v[i] < o[i]:
			return -1
		case v[i] > o[i]:
			return 1
		}
	}
	return 0
}

func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

// Value stores the version as "a.b.c".
func (v Version) Value() (driver.Value, error) {
	return v.String(), nil
}

func (v *Version) Scan(src any) error {
	var s string
	switch t := src.(type) {
	case nil:
		*v = Version{}
		return nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return fmt.Errorf("cannot scan %T into Version", src)
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (Version) GormDataType() string {
	return "string"
}
