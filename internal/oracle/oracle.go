// Package oracle defines the contract consumed from the external decryption
// oracle. The ledger never sees key material; it holds opaque ciphertext
// handles, asks the oracle to reveal them, and trusts decoded values only
// after proof verification.
package oracle

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Handle is an opaque reference to an encrypted value. It is meaningful only
// to the oracle and is immutable once issued.
type Handle string

// RequestID correlates an issued reveal request with the callback that
// eventually answers it.
type RequestID string

// Proof attests that a set of cleartexts is the genuine decryption for a
// request id. Its structure is owned by the oracle.
type Proof []byte

// Cleartexts is the ordered list of decrypted values delivered by a callback,
// positionally matching the handles of the original request.
type Cleartexts [][]byte

// Client is the reveal capability. RequestReveal is asynchronous: it returns
// once the oracle has accepted the request; the decrypted values arrive later
// through a callback driven by the oracle.
type Client interface {
	RequestReveal(ctx context.Context, handles []Handle) (RequestID, error)
	Verify(ctx context.Context, id RequestID, cleartexts Cleartexts, proof Proof) (bool, error)
}

// Arithmetic is the homomorphic capability used by the aggregator. Values are
// never observed in plaintext: AddUint64 returns a new handle whose hidden
// value is the sum.
type Arithmetic interface {
	EncryptUint64(ctx context.Context, value uint64) (Handle, error)
	AddUint64(ctx context.Context, ct Handle, delta uint64) (Handle, error)
}

// EncodeUint64 fixes the wire encoding of revealed numeric cleartexts.
func EncodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// DecodeUint64 parses a revealed numeric cleartext.
func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("numeric cleartext must be 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
