package client

import (
	"fmt"
	"strings"
	"time"

	"feedprobe/internal/feed"
)

// Lookup selects how the client checks whether an entry exists
type Lookup int

const (
	// LookupEntry addresses the entry directly
	LookupEntry Lookup = iota
	// LookupSimpleFilter queries the collection with an id/version filter
	LookupSimpleFilter
	// LookupCustomFilter adds a clause that never changes the result
	LookupCustomFilter
)

var lookupNames = map[Lookup]string{
	LookupEntry:        "entry",
	LookupSimpleFilter: "filter",
	LookupCustomFilter: "custom-filter",
}

func (l Lookup) String() string {
	if name, ok := lookupNames[l]; ok {
		return name
	}
	return fmt.Sprintf("lookup(%d)", int(l))
}

// ParseLookup parses a lookup name; empty selects LookupEntry
func ParseLookup(s string) (Lookup, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LookupEntry, nil
	}
	for l, name := range lookupNames {
		if name == s {
			return l, nil
		}
	}
	return LookupEntry, fmt.Errorf("unknown lookup %q (want entry, filter or custom-filter)", s)
}

// ConditionalPushResult describes what a conditional push did
type ConditionalPushResult struct {
	// Identity read from the package stream
	Identity feed.Identity `json:"identity"`

	// PackageAlreadyExists is true when the entry was found before pushing
	PackageAlreadyExists bool `json:"package_already_exists"`

	// PackageResult is the authoritative lookup: the existence check when no
	// push happened, otherwise the last poll
	PackageResult feed.Result[feed.Entry] `json:"-"`

	PushAttempted           bool          `json:"push_attempted"`
	PackagePushSuccessfully bool          `json:"package_push_successfully"`
	PushStatusCode          int           `json:"push_status_code,omitempty"`
	TimeToPush              time.Duration `json:"time_to_push,omitempty"`

	// TimeToBeAvailable is measured from push start and set only once the
	// entry was seen
	TimeToBeAvailable *time.Duration `json:"time_to_be_available,omitempty"`
}

// PushAndUnlistResult is a conditional push followed by a delete
type PushAndUnlistResult struct {
	ConditionalPushResult

	// UnlistStatusCode is zero when no delete response was received
	UnlistStatusCode int `json:"unlist_status_code,omitempty"`
}
