package statesync

import (
	"fmt"
	"time"
)

// ResolutionStrategy selects how a detected conflict between local and
// server payloads is settled. Strategies are a closed enum so dispatch is
// exhaustive at compile time; configuration names are converted once, at
// registry load, via ParseStrategy.
type ResolutionStrategy int

const (
	// LastWriteWins keeps the side with the larger updated_at timestamp
	// (falling back to created_at, then zero).
	LastWriteWins ResolutionStrategy = iota

	// ServerWins unconditionally keeps the server payload.
	ServerWins

	// ClientWins unconditionally keeps the local payload.
	ClientWins

	// TimestampBased merges when the two sides are within
	// DefaultTimestampWindow of each other, otherwise behaves like
	// LastWriteWins.
	TimestampBased

	// MergeFields shallow-merges: the result starts from the server
	// payload and local fields fill in only where the server side is
	// absent or nil. This is a one-directional overlay, not a three-way
	// merge; a server-present non-nil field always wins.
	MergeFields

	// AppendOnly unions array-valued fields by unique id, preserving
	// server order and appending local-only items. Non-array fields fall
	// back to ServerWins.
	AppendOnly

	// ManualReview never resolves automatically; the conflict stays open
	// until an external caller supplies a resolution.
	ManualReview
)

func (s ResolutionStrategy) String() string {
	switch s {
	case LastWriteWins:
		return "last_write_wins"
	case ServerWins:
		return "server_wins"
	case ClientWins:
		return "client_wins"
	case TimestampBased:
		return "timestamp_based"
	case MergeFields:
		return "merge"
	case AppendOnly:
		return "append_only"
	case ManualReview:
		return "manual"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy converts a configuration name to a ResolutionStrategy.
func ParseStrategy(name string) (ResolutionStrategy, error) {
	switch name {
	case "last_write_wins", "lww":
		return LastWriteWins, nil
	case "server_wins":
		return ServerWins, nil
	case "client_wins":
		return ClientWins, nil
	case "timestamp_based":
		return TimestampBased, nil
	case "merge":
		return MergeFields, nil
	case "append_only":
		return AppendOnly, nil
	case "manual", "manual_review":
		return ManualReview, nil
	default:
		return 0, fmt.Errorf("unknown conflict resolution strategy %q", name)
	}
}

// Resolution is the outcome of applying a strategy to a conflict.
// When Resolved is false (ManualReview), Local and Server carry both
// sides so the caller can surface them for human resolution.
type Resolution struct {
	Data     Payload
	Resolved bool
	Decision string
	Local    Payload
	Server   Payload
}

// Resolve applies the strategy to local and server payloads. A missing
// side is not a conflict: the other side wins outright, regardless of
// strategy. Resolve never panics on nil input.
func Resolve(local, server Payload, strategy ResolutionStrategy) Resolution {
	if local == nil && server == nil {
		return Resolution{Resolved: true, Decision: "noop"}
	}
	if local == nil {
		return Resolution{Data: server, Resolved: true, Decision: "server_only"}
	}
	if server == nil {
		return Resolution{Data: local, Resolved: true, Decision: "local_only"}
	}

	switch strategy {
	case LastWriteWins:
		return resolveLastWriteWins(local, server)
	case ServerWins:
		return Resolution{Data: server, Resolved: true, Decision: "server_wins"}
	case ClientWins:
		return Resolution{Data: local, Resolved: true, Decision: "client_wins"}
	case TimestampBased:
		localTs := payloadTimestamp(local)
		serverTs := payloadTimestamp(server)
		diff := localTs - serverTs
		if diff < 0 {
			diff = -diff
		}
		if time.Duration(diff)*time.Millisecond < DefaultTimestampWindow {
			return resolveMerge(local, server)
		}
		return resolveLastWriteWins(local, server)
	case MergeFields:
		return resolveMerge(local, server)
	case AppendOnly:
		return resolveAppendOnly(local, server)
	case ManualReview:
		return Resolution{Resolved: false, Decision: "manual_review", Local: local, Server: server}
	default:
		// Unknown strategies cannot occur for registry-validated data
		// types; treat a stray value conservatively as server wins.
		return Resolution{Data: server, Resolved: true, Decision: "server_wins"}
	}
}

func resolveLastWriteWins(local, server Payload) Resolution {
	if payloadTimestamp(local) > payloadTimestamp(server) {
		return Resolution{Data: local, Resolved: true, Decision: "keep_local"}
	}
	return Resolution{Data: server, Resolved: true, Decision: "keep_server"}
}

// resolveMerge starts from the server payload and overlays local fields
// only where the server side is absent or nil.
func resolveMerge(local, server Payload) Resolution {
	merged := server.Clone()
	for k, v := range local {
		if existing, ok := merged[k]; !ok || existing == nil {
			merged[k] = v
		}
	}
	return Resolution{Data: merged, Resolved: true, Decision: "merge"}
}

// resolveAppendOnly unions array-valued fields present on both sides by
// unique "id", keeping server order and appending local-only items.
// Fields that are not arrays on both sides keep the server value.
func resolveAppendOnly(local, server Payload) Resolution {
	merged := server.Clone()
	unioned := false
	for k, sv := range server {
		sArr, sOK := sv.([]any)
		lArr, lOK := local[k].([]any)
		if !sOK || !lOK {
			continue
		}
		merged[k] = unionByID(sArr, lArr)
		unioned = true
	}
	if !unioned {
		return Resolution{Data: server, Resolved: true, Decision: "server_wins"}
	}
	return Resolution{Data: merged, Resolved: true, Decision: "append_only"}
}

func unionByID(server, local []any) []any {
	out := make([]any, 0, len(server)+len(local))
	seen := make(map[any]bool, len(server))
	for _, item := range server {
		out = append(out, item)
		if id, ok := itemID(item); ok {
			seen[id] = true
		}
	}
	for _, item := range local {
		id, ok := itemID(item)
		if ok && seen[id] {
			continue
		}
		out = append(out, item)
	}
	return out
}

func itemID(item any) (any, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return nil, false
	}
	id, ok := m["id"]
	return id, ok
}

// payloadTimestamp extracts the payload's modification time in epoch
// milliseconds: updated_at first, then created_at, then zero.
func payloadTimestamp(p Payload) int64 {
	for _, field := range []string{"updated_at", "created_at"} {
		if v, ok := p[field]; ok {
			if ts, ok := timestampValue(v); ok {
				return ts
			}
		}
	}
	return 0
}

func timestampValue(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case time.Time:
		return t.UnixMilli(), true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UnixMilli(), true
		}
	}
	return 0, false
}
