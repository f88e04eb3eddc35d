// Package cmn provides common low-level types and utilities shared across
// the acquisition gateway's subsystems.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"strconv"
	"time"
)

// ParseRevalDuration sums a "N{w,d,h,m,s}" sequence (as emitted by a
// specfile <Pair reval="..."> attribute) into seconds. Each run of digits
// must be followed by exactly one unit letter; whitespace is not allowed.
func ParseRevalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	var total time.Duration
	var num int64
	haveDigits := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			num = num*10 + int64(c-'0')
			haveDigits = true
		case isRevalUnit(c):
			if !haveDigits {
				return 0, fmt.Errorf("reval %q: unit %q without a preceding digit", s, c)
			}
			total += time.Duration(num) * revalUnitSeconds(c) * time.Second
			num = 0
			haveDigits = false
		default:
			return 0, fmt.Errorf("reval %q: invalid character %q", s, c)
		}
	}
	if haveDigits {
		return 0, fmt.Errorf("reval %q: trailing digits without a unit", s)
	}
	return total, nil
}

func isRevalUnit(c byte) bool {
	switch c {
	case 'w', 'd', 'h', 'm', 's':
		return true
	}
	return false
}

func revalUnitSeconds(c byte) time.Duration {
	switch c {
	case 'w':
		return 7 * 24 * 3600
	case 'd':
		return 24 * 3600
	case 'h':
		return 3600
	case 'm':
		return 60
	case 's':
		return 1
	}
	return 0
}

// ParseOctal parses a "perm" attribute such as "0555" into a mode, rejecting
// any value with a write bit set (the permission invariant in map_info).
func ParseOctal(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("perm %q: %w", s, err)
	}
	const writeBits = 0222
	if uint32(v)&writeBits != 0 {
		return 0, fmt.Errorf("perm %q: write bit set, map_info must be unwritable", s)
	}
	return uint32(v), nil
}
