package types

import (
	"fmt"
	"time"
)

type StashType string

const (
	// StashTypeInternal is held by a workload run by this system.
	StashTypeInternal = StashType("INTERNAL")
	// StashTypeExternal is held by a third party.
	StashTypeExternal = StashType("EXTERNAL")
)

// Lease is the expiry deadline of a stash, both as an instant on this server and as the
// ISO time string reported by the holder side.
type Lease struct {
	ServerTime    time.Time `json:"serverTime"`
	HolderISOTime string    `json:"holderIsoTime,omitempty"`
}

// NewLease builds a lease from the holder's epoch millis and time zone offset in seconds.
func NewLease(holderMillis int64, holderZoneOffset int, holderISOTime string) *Lease {
	zone := time.FixedZone(zoneName(holderZoneOffset), holderZoneOffset)
	holderTime := time.UnixMilli(holderMillis).In(zone)
	if holderISOTime == "" {
		holderISOTime = holderTime.Format(time.RFC3339)
	}
	return &Lease{
		ServerTime:    holderTime.Local(),
		HolderISOTime: holderISOTime,
	}
}

// NewLeaseAfter returns a lease expiring the given number of seconds from now.
func NewLeaseAfter(seconds int) *Lease {
	expiry := time.Now().Add(time.Duration(seconds) * time.Second)
	return &Lease{
		ServerTime:    expiry,
		HolderISOTime: expiry.Format(time.RFC3339),
	}
}

func zoneName(offset int) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	if minutes > 0 {
		return fmt.Sprintf("GMT%s%02d:%02d", sign, hours, minutes)
	}
	return fmt.Sprintf("GMT%s%02d", sign, hours)
}

func (l *Lease) Expired(now time.Time) bool {
	if l == nil || l.ServerTime.IsZero() {
		return false
	}
	return !now.Before(l.ServerTime)
}

// StashInfo records who holds a resource, either as a reservation or as a lock.
type StashInfo struct {
	Holder string    `json:"holder"`
	Type   StashType `json:"type"`
	Lease  *Lease    `json:"lease,omitempty"`
	Key    string    `json:"key,omitempty"`
}

func NewStashInfo(stashType StashType, holder string, lease *Lease, key string) *StashInfo {
	return &StashInfo{
		Holder: holder,
		Type:   stashType,
		Lease:  lease,
		Key:    key,
	}
}

// NewStashInfoFromResult creates the internal stash for a successful backend result.
func NewStashInfoFromResult(result *StashResult, holder string) *StashInfo {
	info := &StashInfo{
		Holder: holder,
		Type:   StashTypeInternal,
	}
	if result != nil {
		info.Key = result.Key
		if result.Lease != nil {
			info.Lease = result.Lease.DeepCopy()
		}
	}
	return info
}

func (s *StashInfo) IsInternal() bool {
	return s != nil && s.Type == StashTypeInternal
}

func (s *StashInfo) String() string {
	if s == nil {
		return "<none>"
	}
	return fmt.Sprintf("%v(%v)", s.Holder, s.Type)
}
