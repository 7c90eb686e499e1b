// Package slurm integrates with the batch scheduler: discovering the current
// job's identity and node set from the environment, expanding compressed
// node-list expressions, and submitting new jobs.
package slurm

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpandNodeList expands a compressed scheduler node-list expression such as
// "gpu[001-003,007],login1" into individual hostnames, preserving zero
// padding. Order follows the expression left to right.
func ExpandNodeList(expr string) ([]string, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("empty node list expression")
	}

	var nodes []string
	for _, group := range splitGroups(expr) {
		expanded, err := expandGroup(group)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, expanded...)
	}
	return nodes, nil
}

// splitGroups splits on commas that are not inside brackets.
func splitGroups(expr string) []string {
	var groups []string
	depth := 0
	start := 0
	for i, r := range expr {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				groups = append(groups, expr[start:i])
				start = i + 1
			}
		}
	}
	return append(groups, expr[start:])
}

func expandGroup(group string) ([]string, error) {
	group = strings.TrimSpace(group)
	open := strings.IndexByte(group, '[')
	if open < 0 {
		if group == "" {
			return nil, fmt.Errorf("empty node name in node list")
		}
		return []string{group}, nil
	}

	close := strings.IndexByte(group, ']')
	if close < open {
		return nil, fmt.Errorf("unbalanced brackets in node group %q", group)
	}

	prefix := group[:open]
	suffix := group[close+1:]
	body := group[open+1 : close]

	var nodes []string
	for _, token := range strings.Split(body, ",") {
		first, last, width, err := parseRange(token)
		if err != nil {
			return nil, fmt.Errorf("node group %q: %w", group, err)
		}
		for n := first; n <= last; n++ {
			nodes = append(nodes, fmt.Sprintf("%s%0*d%s", prefix, width, n, suffix))
		}
	}
	return nodes, nil
}

// parseRange parses "007" or "001-003", returning bounds and the zero-pad
// width taken from the first bound.
func parseRange(token string) (first, last, width int, err error) {
	token = strings.TrimSpace(token)
	lo, hi, isRange := strings.Cut(token, "-")

	first, err = strconv.Atoi(lo)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid range bound %q", lo)
	}
	width = len(lo)

	if !isRange {
		return first, first, width, nil
	}

	last, err = strconv.Atoi(hi)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid range bound %q", hi)
	}
	if last < first {
		return 0, 0, 0, fmt.Errorf("descending range %q", token)
	}
	return first, last, width, nil
}
