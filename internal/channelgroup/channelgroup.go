// Package channelgroup implements the channel-group partitioning algebra
// described in the design: splitting N session channels into contiguous
// groups of a fixed size, naming each group, and resolving a single channel
// back to its group and within-group index.
package channelgroup

import (
	"fmt"
	"regexp"
	"strconv"
)

// Unknown is the reserved group label used when a segment's group cannot be
// determined from the request.
const Unknown = "unknown"

// Group is a contiguous, 1-based, inclusive range of channels.
type Group struct {
	Lower int
	Upper int
}

// Name renders the group as "chAA-BB" with zero-padded two-digit endpoints.
func (g Group) Name() string {
	return fmt.Sprintf("ch%02d-%02d", g.Lower, g.Upper)
}

// Contains reports whether channel lies within the group's inclusive range.
func (g Group) Contains(channel int) bool {
	return channel >= g.Lower && channel <= g.Upper
}

// Index returns channel's 0-based offset within the group.
func (g Group) Index(channel int) int {
	return channel - g.Lower
}

var namePattern = regexp.MustCompile(`^ch(\d+)-(\d+)$`)

// Parse decodes a "chAA-BB" label into a Group. It returns false for the
// reserved Unknown label, an empty label, or any string that doesn't match
// the expected shape — callers are expected to skip such segments rather
// than treat them as an error.
func Parse(label string) (Group, bool) {
	if label == "" || label == Unknown {
		return Group{}, false
	}
	match := namePattern.FindStringSubmatch(label)
	if match == nil {
		return Group{}, false
	}
	lower, err := strconv.Atoi(match[1])
	if err != nil {
		return Group{}, false
	}
	upper, err := strconv.Atoi(match[2])
	if err != nil {
		return Group{}, false
	}
	if lower <= 0 || upper < lower {
		return Group{}, false
	}
	return Group{Lower: lower, Upper: upper}, true
}

// Partition splits channels 1..totalChannels into contiguous groups of size
// groupSize, the last group holding any remainder. groupSize <= 0 or
// totalChannels <= 0 yields an empty partition.
func Partition(totalChannels, groupSize int) []Group {
	if totalChannels <= 0 || groupSize <= 0 {
		return nil
	}
	groups := make([]Group, 0, (totalChannels+groupSize-1)/groupSize)
	for lower := 1; lower <= totalChannels; lower += groupSize {
		upper := lower + groupSize - 1
		if upper > totalChannels {
			upper = totalChannels
		}
		groups = append(groups, Group{Lower: lower, Upper: upper})
	}
	return groups
}

// Resolve finds the unique group in a partition containing channel and
// returns its 0-based within-group index. ok is false if no group in the
// partition contains the channel.
func Resolve(groups []Group, channel int) (group Group, index int, ok bool) {
	for _, g := range groups {
		if g.Contains(channel) {
			return g, g.Index(channel), true
		}
	}
	return Group{}, 0, false
}

// GroupFor computes the single group (and within-group index) that channel
// falls into for a session with totalChannels channels partitioned at
// groupSize — a convenience wrapper around Partition+Resolve for callers
// that only need one channel's answer.
func GroupFor(totalChannels, groupSize, channel int) (Group, int, bool) {
	return Resolve(Partition(totalChannels, groupSize), channel)
}
