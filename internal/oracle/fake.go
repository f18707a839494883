package oracle

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// Fake is an in-process oracle simulator. It keeps plaintexts behind opaque
// handles and produces verifiable proofs, so the full reveal protocol can be
// exercised in tests and local runs without a real decryption network.
type Fake struct {
	mu      sync.Mutex
	plain   map[Handle][]byte
	pending map[RequestID][]Handle
}

func NewFake() *Fake {
	return &Fake{
		plain:   make(map[Handle][]byte),
		pending: make(map[RequestID][]Handle),
	}
}

// EncryptBytes mints a handle for arbitrary plaintext. Callers outside tests
// would receive handles from client-side encryption instead.
func (f *Fake) EncryptBytes(b []byte) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := Handle("ct_" + uuid.NewString())
	f.plain[h] = append([]byte(nil), b...)
	return h
}

func (f *Fake) EncryptUint64(_ context.Context, value uint64) (Handle, error) {
	return f.EncryptBytes(EncodeUint64(value)), nil
}

func (f *Fake) AddUint64(_ context.Context, ct Handle, delta uint64) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.plain[ct]
	if !ok {
		return "", fmt.Errorf("unknown handle %q", ct)
	}
	if len(raw) != 8 {
		return "", fmt.Errorf("handle %q does not hold a numeric value", ct)
	}
	sum := binary.BigEndian.Uint64(raw) + delta
	h := Handle("ct_" + uuid.NewString())
	f.plain[h] = EncodeUint64(sum)
	return h, nil
}

func (f *Fake) RequestReveal(_ context.Context, handles []Handle) (RequestID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range handles {
		if _, ok := f.plain[h]; !ok {
			return "", fmt.Errorf("unknown handle %q", h)
		}
	}
	id := RequestID(uuid.NewString())
	f.pending[id] = append([]Handle(nil), handles...)
	return id, nil
}

// Deliver produces the cleartexts and proof for an accepted request. The test
// or demo loop feeds them back through the service callback, playing the role
// of the oracle network.
func (f *Fake) Deliver(id RequestID) (Cleartexts, Proof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handles, ok := f.pending[id]
	if !ok {
		return nil, nil, fmt.Errorf("no pending request %q", id)
	}
	cleartexts := make(Cleartexts, len(handles))
	for i, h := range handles {
		cleartexts[i] = append([]byte(nil), f.plain[h]...)
	}
	return cleartexts, proofFor(id, cleartexts), nil
}

func (f *Fake) Verify(_ context.Context, id RequestID, cleartexts Cleartexts, proof Proof) (bool, error) {
	want := proofFor(id, cleartexts)
	return subtle.ConstantTimeCompare(want, proof) == 1, nil
}

// proofFor binds the request id and every cleartext (length-prefixed) into a
// single digest.
func proofFor(id RequestID, cleartexts Cleartexts) Proof {
	d := sha3.New256()
	d.Write([]byte(id))
	var lenBuf [8]byte
	for _, ct := range cleartexts {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(ct)))
		d.Write(lenBuf[:])
		d.Write(ct)
	}
	return d.Sum(nil)
}
