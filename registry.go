package workcell

import (
	"sort"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// PieceRegistry owns the lifecycle state of every piece currently in the
// cell. The orchestrator is the only writer; consumers read through
// Snapshot. IDs are unique and monotonically assigned for the registry's
// lifetime, surviving Clear so a reset never reuses an ID a consumer may
// still be displaying.
type PieceRegistry struct {
	mu     sync.RWMutex
	pieces map[int64]*Piece
	order  []int64
	nextID int64
}

// NewPieceRegistry creates an empty registry.
func NewPieceRegistry() *PieceRegistry {
	return &PieceRegistry{pieces: make(map[int64]*Piece)}
}

// Admit creates a new piece in StageQueued at the given position and returns
// it. Admission is always allowed, including while another piece is being
// manipulated.
func (r *PieceRegistry) Admit(pos r3.Vector, orient *spatialmath.EulerAngles, now time.Duration) *Piece {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	p := &Piece{
		ID:          r.nextID,
		Position:    pos,
		Orientation: orient,
		Stage:       StageQueued,
		admittedAt:  now,
	}
	r.pieces[p.ID] = p
	r.order = append(r.order, p.ID)
	return p
}

// Get returns the piece with the given ID, or nil.
func (r *PieceRegistry) Get(id int64) *Piece {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pieces[id]
}

// NextQueued returns the oldest piece still in StageQueued, or nil.
func (r *PieceRegistry) NextQueued() *Piece {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if p := r.pieces[id]; p != nil && p.Stage == StageQueued {
			return p
		}
	}
	return nil
}

// Advance moves a piece to the next stage in the fixed lifecycle order. Any
// other transition is a programming error and is rejected.
func (r *PieceRegistry) Advance(id int64, to Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pieces[id]
	if !ok {
		return ErrPieceNotFound
	}
	if to != p.Stage+1 {
		return ErrStageOrder
	}
	p.Stage = to
	return nil
}

// Remove deletes a piece from the registry.
func (r *PieceRegistry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pieces[id]; !ok {
		return
	}
	delete(r.pieces, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// PurgeCompleted removes pieces that entered StageCompleted at least settle
// ago and returns their IDs. Committed statistics are untouched by purging.
func (r *PieceRegistry) PurgeCompleted(now, settle time.Duration) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []int64
	kept := r.order[:0]
	for _, id := range r.order {
		p := r.pieces[id]
		if p != nil && p.Stage == StageCompleted && now-p.CompletedAt >= settle {
			delete(r.pieces, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}

// Clear discards all pieces. The ID counter is preserved.
func (r *PieceRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pieces = make(map[int64]*Piece)
	r.order = nil
}

// Len returns the number of pieces currently in the cell.
func (r *PieceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pieces)
}

// CountActive returns the number of pieces in a manipulation stage. The
// orchestrator checks this every tick: a value above one is an invariant
// violation.
func (r *PieceRegistry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.pieces {
		if p.Stage.Active() {
			n++
		}
	}
	return n
}

// Snapshot returns read-only copies of all pieces in admission order.
func (r *PieceRegistry) Snapshot() []PieceSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PieceSnapshot, 0, len(r.pieces))
	for _, id := range r.order {
		if p := r.pieces[id]; p != nil {
			out = append(out, p.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
