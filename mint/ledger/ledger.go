// Package ledger implements the mint's proof ledger: the state machine
// that tracks each proof from Unspent through Pending to Spent (or back
// to Unspent), keyed by Y = HashToCurve(secret). All state transitions
// that touch more than one proof acquire their per-Y locks in ascending
// byte order, so two concurrent operations that share some proofs can
// never deadlock against each other.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chaumcash/ecash/cashu"
	"github.com/chaumcash/ecash/crypto"
	"github.com/chaumcash/ecash/mint/storage"
)

// State mirrors NUT-07's three-state proof lifecycle.
type State int

const (
	Unspent State = iota
	Pending
	Spent
)

// Ledger serializes proof state transitions against a MintDB, holding an
// in-process mutex per Y so that concurrent requests sharing an input
// proof are forced through a consistent order instead of racing the
// database.
type Ledger struct {
	db storage.MintDB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db storage.MintDB) *Ledger {
	return &Ledger{db: db, locks: make(map[string]*sync.Mutex)}
}

func yOf(secret string) (string, error) {
	Y, err := crypto.HashToCurve([]byte(secret))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", Y.SerializeCompressed()), nil
}

func (l *Ledger) lockFor(y string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[y]
	if !ok {
		m = &sync.Mutex{}
		l.locks[y] = m
	}
	return m
}

// withLocks runs fn while holding the per-Y locks for all of ys, acquired
// in ascending byte order regardless of the order ys was given in.
func (l *Ledger) withLocks(ys []string, fn func() error) error {
	sorted := append([]string(nil), ys...)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, y := range sorted {
		m := l.lockFor(y)
		m.Lock()
		held = append(held, m)
	}
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}()

	return fn()
}

// CheckStates reports the current ledger state of each proof's Y value,
// without taking any lock — a point-in-time read for NUT-07.
func (l *Ledger) CheckStates(proofs cashu.Proofs) (map[string]State, error) {
	ys := make([]string, len(proofs))
	ySecret := make(map[string]string, len(proofs))
	for i, p := range proofs {
		y, err := yOf(p.Secret)
		if err != nil {
			return nil, err
		}
		ys[i] = y
		ySecret[y] = p.Secret
	}

	states := make(map[string]State, len(ys))
	for _, y := range ys {
		states[y] = Unspent
	}

	spent, err := l.db.GetProofsUsed(ys)
	if err != nil {
		return nil, err
	}
	for _, p := range spent {
		states[p.Y] = Spent
	}

	pending, err := l.db.GetPendingProofs(ys)
	if err != nil {
		return nil, err
	}
	for _, p := range pending {
		if states[p.Y] != Spent {
			states[p.Y] = Pending
		}
	}

	return states, nil
}

// Reserve moves a set of proofs from Unspent to Pending under quoteId,
// failing the whole batch if any proof is already Spent or Pending.
// Proofs are locked in ascending Y order so two melts racing over
// overlapping inputs settle deterministically instead of deadlocking.
func (l *Ledger) Reserve(proofs cashu.Proofs, quoteId string) error {
	ys := make([]string, len(proofs))
	for i, p := range proofs {
		y, err := yOf(p.Secret)
		if err != nil {
			return err
		}
		ys[i] = y
	}

	return l.withLocks(ys, func() error {
		used, err := l.db.GetProofsUsed(ys)
		if err != nil {
			return err
		}
		if len(used) > 0 {
			return cashu.ProofAlreadyUsedErr
		}

		pending, err := l.db.GetPendingProofs(ys)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return cashu.ProofPendingErr
		}

		return l.db.AddPendingProofs(proofs, quoteId)
	})
}

// CommitSpend moves proofs from Pending (or directly from Unspent, for
// a swap that never reserved them) to Spent.
func (l *Ledger) CommitSpend(proofs cashu.Proofs) error {
	ys := make([]string, len(proofs))
	for i, p := range proofs {
		y, err := yOf(p.Secret)
		if err != nil {
			return err
		}
		ys[i] = y
	}

	return l.withLocks(ys, func() error {
		used, err := l.db.GetProofsUsed(ys)
		if err != nil {
			return err
		}
		if len(used) > 0 {
			return cashu.ProofAlreadyUsedErr
		}

		if err := l.db.SaveProofs(proofs); err != nil {
			return err
		}
		return l.db.RemovePendingProofs(ys)
	})
}

// Release moves proofs from Pending back to Unspent: the outgoing
// payment they were reserved against definitively failed.
func (l *Ledger) Release(proofs cashu.Proofs) error {
	ys := make([]string, len(proofs))
	for i, p := range proofs {
		y, err := yOf(p.Secret)
		if err != nil {
			return err
		}
		ys[i] = y
	}

	return l.withLocks(ys, func() error {
		return l.db.RemovePendingProofs(ys)
	})
}

// MarkIrreversible flags pending proofs whose outgoing payment outcome is
// unknown (execute_outgoing returned neither a confirmed success nor a
// definitive failure). These stay Pending forever until the
// reconciliation loop resolves them against the payment backend — they
// are never silently released back to Unspent, which would let the same
// ecash be spent twice if the payment actually succeeds.
func (l *Ledger) MarkIrreversible(proofs cashu.Proofs) error {
	ys := make([]string, len(proofs))
	for i, p := range proofs {
		y, err := yOf(p.Secret)
		if err != nil {
			return err
		}
		ys[i] = y
	}

	return l.withLocks(ys, func() error {
		return l.db.MarkPendingIrreversible(ys)
	})
}

// RecordSignatures idempotently persists blind signatures keyed by B_:
// replaying a mint/swap request with the same outputs after a crash
// returns the previously issued signatures instead of signing again.
func (l *Ledger) RecordSignatures(outputs cashu.BlindedMessages, sigs cashu.BlindedSignatures) error {
	B_s := make([]string, len(outputs))
	for i, o := range outputs {
		B_s[i] = o.B_
	}
	return l.db.SaveBlindSignatures(B_s, sigs)
}

// PreviouslySigned returns any already-recorded signatures for the given
// outputs, for idempotent replay of a mint/swap/melt-change request.
func (l *Ledger) PreviouslySigned(outputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	B_s := make([]string, len(outputs))
	for i, o := range outputs {
		B_s[i] = o.B_
	}
	return l.db.GetBlindSignatures(B_s)
}
