// Package hlc implements a hybrid logical clock: a wall-clock millisecond
// paired with a monotonic counter and a node id, giving a total order
// across processes with bounded clock skew.
package hlc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a single hybrid logical clock. New defaults an empty node id
// to "local"; a zero-value Clock is usable but encodes an empty node id.
type Clock struct {
	WallMS  int64
	Counter int64
	NodeID  string
}

// New returns a clock for the given node id.
func New(nodeID string) *Clock {
	if nodeID == "" {
		nodeID = "local"
	}
	return &Clock{NodeID: nodeID}
}

// nowMS is overridable in tests so Now's monotonic-advance behavior can
// be exercised deterministically.
var nowMS = func() int64 {
	return time.Now().UTC().UnixMilli()
}

// Now advances the clock and returns its string encoding.
func (c *Clock) Now() string {
	cur := nowMS()
	if cur > c.WallMS {
		c.WallMS = cur
		c.Counter = 0
	} else {
		c.Counter++
	}
	return c.encode()
}

// Merge folds a remote HLC string into this clock and returns the new
// string encoding. The result is strictly greater than both the prior
// local value and the remote value.
func (c *Clock) Merge(remote string) (string, error) {
	rWall, rCounter, _, err := Parse(remote)
	if err != nil {
		return "", fmt.Errorf("hlc: parse remote %q: %w", remote, err)
	}

	wall := max64(c.WallMS, rWall)
	var counter int64
	switch {
	case c.WallMS == rWall:
		counter = max64(c.Counter, rCounter) + 1
	case wall == c.WallMS:
		counter = c.Counter + 1
	default:
		counter = rCounter + 1
	}
	c.WallMS, c.Counter = wall, counter
	return c.encode(), nil
}

func (c *Clock) encode() string {
	return fmt.Sprintf("%d:%d:%s", c.WallMS, c.Counter, c.NodeID)
}

// Parse splits an encoded HLC string into its components.
func Parse(s string) (wallMS, counter int64, nodeID string, err error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, 0, "", fmt.Errorf("hlc: malformed value %q", s)
	}
	wallMS, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("hlc: malformed wall_ms in %q: %w", s, err)
	}
	counter, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("hlc: malformed counter in %q: %w", s, err)
	}
	return wallMS, counter, parts[2], nil
}

// Compare orders two encoded HLC strings lexically over (wall, counter,
// node). Malformed values sort as (0, 0, "") per the merge engine's
// fallback rule.
func Compare(a, b string) int {
	aw, ac, an := safeParse(a)
	bw, bc, bn := safeParse(b)
	switch {
	case aw != bw:
		return cmp64(aw, bw)
	case ac != bc:
		return cmp64(ac, bc)
	default:
		return strings.Compare(an, bn)
	}
}

func safeParse(s string) (int64, int64, string) {
	w, c, n, err := Parse(s)
	if err != nil {
		return 0, 0, ""
	}
	return w, c, n
}

func cmp64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
