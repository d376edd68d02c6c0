package statesync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Conflict records a detected divergence between locally-held and
// server-held data for the same key. It stays in the manager's conflict
// registry until resolved, either automatically by the data type's
// strategy or explicitly via Manager.ResolveConflict.
type Conflict struct {
	// OperationID is the id of the operation that surfaced the conflict.
	OperationID string

	DataType string
	Key      string

	Local  Payload
	Server Payload

	LocalHash  string
	ServerHash string

	Strategy   ResolutionStrategy
	DetectedAt time.Time
}

// HashPayload returns a stable content hash of the payload. Map keys are
// sorted by encoding/json, so two deep-equal payloads always hash the
// same. A nil payload hashes to the empty string.
func HashPayload(p Payload) string {
	if p == nil {
		return ""
	}
	data, err := json.Marshal(p)
	if err != nil {
		// Payloads are JSON-compatible by contract; an unmarshalable value
		// still gets a deterministic sentinel so detection never panics.
		return "unhashable"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DetectConflict compares local and server payloads by content hash and
// returns a Conflict when they diverge, or nil when either side is
// missing or both hash identically.
func DetectConflict(opID, dataType, key string, local, server Payload, strategy ResolutionStrategy, now time.Time) *Conflict {
	if local == nil || server == nil {
		return nil
	}
	localHash := HashPayload(local)
	serverHash := HashPayload(server)
	if localHash == serverHash {
		return nil
	}
	return &Conflict{
		OperationID: opID,
		DataType:    dataType,
		Key:         key,
		Local:       local,
		Server:      server,
		LocalHash:   localHash,
		ServerHash:  serverHash,
		Strategy:    strategy,
		DetectedAt:  now,
	}
}

// hasDataChanged reports whether two payloads differ, ignoring the given
// top-level fields (typically volatile timestamps). Used to suppress
// no-op component updates.
func hasDataChanged(old, new Payload, ignoreFields []string) bool {
	return HashPayload(stripFields(old, ignoreFields)) != HashPayload(stripFields(new, ignoreFields))
}

func stripFields(p Payload, fields []string) Payload {
	if p == nil || len(fields) == 0 {
		return p
	}
	out := p.Clone()
	for _, f := range fields {
		delete(out, f)
	}
	return out
}
