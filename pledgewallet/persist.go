package pledgewallet

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/vinumeris/lighthouse/project"
	"google.golang.org/protobuf/encoding/protowire"
)

// extensionBucketKey is the top-level bucket this extension's side-table
// lives under, inside the enclosing wallet's own database.
var extensionBucketKey = []byte(extensionID)

// stateKey is the single key the encoded {pledges, projects, revokedPledges}
// payload is stored under within the extension's bucket.
var stateKey = []byte("state")

// field numbers for the side-table payload. These are private to this
// extension's own tiny wire format and never touch the wallet's own
// on-disk schema.
const (
	fieldStateProjects protowire.Number = 1
	fieldStatePledges  protowire.Number = 2
	fieldStateRevoked  protowire.Number = 3
)

const (
	fieldRecordStubHash  protowire.Number = 1
	fieldRecordStubIndex protowire.Number = 2
	fieldRecordProjectID protowire.Number = 3
	fieldRecordEnvelope  protowire.Number = 4
)

// walletFieldReader walks a flat protobuf-encoded message the same way
// envelope.fieldReader does, duplicated here since this side-table format
// is private to the wallet extension and has no reason to depend on the
// envelope package's unexported helpers.
func walletFieldReader(b []byte, fn func(num protowire.Number, typ protowire.Type, rest []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		consumed := fn(num, typ, b)
		if consumed < 0 {
			return protowire.ParseError(consumed)
		}
		b = b[consumed:]
	}
	return nil
}

func marshalRecord(rec *PledgeRecord) []byte {
	var b []byte

	b = protowire.AppendTag(b, fieldRecordStubHash, protowire.BytesType)
	b = protowire.AppendBytes(b, rec.Stub.Hash[:])

	b = protowire.AppendTag(b, fieldRecordStubIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.Stub.Index))

	b = protowire.AppendTag(b, fieldRecordProjectID, protowire.BytesType)
	b = protowire.AppendBytes(b, rec.ProjectID[:])

	b = protowire.AppendTag(b, fieldRecordEnvelope, protowire.BytesType)
	b = protowire.AppendBytes(b, rec.Envelope)

	return b
}

func unmarshalRecord(b []byte) (*PledgeRecord, error) {
	rec := &PledgeRecord{}

	err := walletFieldReader(b, func(num protowire.Number, typ protowire.Type, rest []byte) int {
		switch num {
		case fieldRecordStubHash:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			copy(rec.Stub.Hash[:], v)
			return n
		case fieldRecordStubIndex:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return n
			}
			rec.Stub.Index = uint32(v)
			return n
		case fieldRecordProjectID:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			copy(rec.ProjectID[:], v)
			return n
		case fieldRecordEnvelope:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			rec.Envelope = append([]byte(nil), v...)
			return n
		default:
			_, n := protowire.ConsumeFieldValue(0, typ, rest)
			return n
		}
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// walletState is the decoded shape of the side-table payload: the known
// projects (by their raw envelope bytes, so rehydration needs no network
// round trip) plus the open and revoked pledge records.
type walletState struct {
	Projects [][]byte
	Pledges  []*PledgeRecord
	Revoked  []*PledgeRecord
}

func marshalState(s *walletState) []byte {
	var b []byte

	for _, raw := range s.Projects {
		b = protowire.AppendTag(b, fieldStateProjects, protowire.BytesType)
		b = protowire.AppendBytes(b, raw)
	}
	for _, rec := range s.Pledges {
		b = protowire.AppendTag(b, fieldStatePledges, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalRecord(rec))
	}
	for _, rec := range s.Revoked {
		b = protowire.AppendTag(b, fieldStateRevoked, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalRecord(rec))
	}

	return b
}

func unmarshalState(b []byte) (*walletState, error) {
	s := &walletState{}

	err := walletFieldReader(b, func(num protowire.Number, typ protowire.Type, rest []byte) int {
		switch num {
		case fieldStateProjects:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			s.Projects = append(s.Projects, append([]byte(nil), v...))
			return n
		case fieldStatePledges:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			rec, err := unmarshalRecord(v)
			if err != nil {
				return -1
			}
			s.Pledges = append(s.Pledges, rec)
			return n
		case fieldStateRevoked:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			rec, err := unmarshalRecord(v)
			if err != nil {
				return -1
			}
			s.Revoked = append(s.Revoked, rec)
			return n
		default:
			_, n := protowire.ConsumeFieldValue(0, typ, rest)
			return n
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// rehydrate loads persisted pledge state from the side-table and re-links
// every pledge record to its backing stub output by looking the outpoint
// up in the enclosing wallet's own known transactions.
func (w *Wallet) rehydrate() error {
	db := w.Base.Database()

	var state *walletState
	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(extensionBucketKey)
		if bucket == nil {
			return nil
		}
		raw := bucket.Get(stateKey)
		if raw == nil {
			return nil
		}
		s, err := unmarshalState(raw)
		if err != nil {
			return err
		}
		state = s
		return nil
	})
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, raw := range state.Projects {
		proj, err := project.ParseProject(raw)
		if err != nil {
			continue
		}
		w.cachedProjects[proj.ID()] = proj
	}
	for _, rec := range state.Pledges {
		if !w.stubExists(rec.Stub) {
			continue
		}
		w.byStub[rec.Stub] = rec
		w.byProject[rec.ProjectID] = append(w.byProject[rec.ProjectID], rec)
	}
	for _, rec := range state.Revoked {
		w.revoked[pledgeRecordID(rec)] = rec
	}

	return nil
}

// stubExists reports whether the enclosing wallet still knows the
// transaction that created op, i.e. whether op is still a candidate worth
// re-linking. A stub whose creating transaction has since been evicted
// from wallet history (pruned, or never relayed) cannot be rehydrated.
func (w *Wallet) stubExists(op wire.OutPoint) bool {
	_, prevOut, _, err := w.Base.FetchOutpointInfo(&op)
	return err == nil && prevOut != nil
}

// pledgeRecordID recomputes the identity a revoked record was filed under:
// the double hash of its stored envelope bytes, matching pledge.Pledge.ID.
func pledgeRecordID(rec *PledgeRecord) chainhash.Hash {
	return chainhash.DoubleHashH(rec.Envelope)
}

// persist writes the wallet's current pledge state to the side-table. It
// is called after every state-changing operation (recordPledge, Revoke,
// stub-spend resolution) so a restart never loses track of live pledges.
// A Wallet built without a backing Base (tests exercising the pledge maps
// in isolation) has no side-table to write and persist is a no-op.
func (w *Wallet) persist() error {
	if w.Base == nil {
		return nil
	}

	w.mu.Lock()
	state := &walletState{}
	seenProjects := make(map[chainhash.Hash]bool)
	for _, rec := range w.byStub {
		state.Pledges = append(state.Pledges, rec)
		if !seenProjects[rec.ProjectID] {
			if proj, ok := w.cachedProjects[rec.ProjectID]; ok {
				state.Projects = append(state.Projects, proj.Bytes())
				seenProjects[rec.ProjectID] = true
			}
		}
	}
	for _, rec := range w.revoked {
		state.Revoked = append(state.Revoked, rec)
	}
	raw := marshalState(state)
	w.mu.Unlock()

	db := w.Base.Database()
	return walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		bucket, err := tx.CreateTopLevelBucket(extensionBucketKey)
		if err != nil {
			return err
		}
		return bucket.Put(stateKey, raw)
	})
}
