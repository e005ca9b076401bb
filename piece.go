package workcell

import (
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// Stage is a piece's position in its fixed lifecycle state machine. Pieces
// only ever advance one stage at a time, in declaration order.
type Stage int

const (
	// StageQueued means the piece is waiting on the feed line.
	StageQueued Stage = iota
	// StageDetecting means the piece is at the detection point awaiting a
	// classification result.
	StageDetecting
	// StageAwaitingGrasp means the arm is approaching the piece.
	StageAwaitingGrasp
	// StageGripped means the end effector is closed on the piece.
	StageGripped
	// StageSorting means the piece is in transit to its destination bin.
	StageSorting
	// StageReleasing means the end effector is opening above the bin.
	StageReleasing
	// StageCompleted means processing is finished; the piece is purged after
	// a settle delay.
	StageCompleted
)

func (s Stage) String() string {
	switch s {
	case StageQueued:
		return "queued"
	case StageDetecting:
		return "detecting"
	case StageAwaitingGrasp:
		return "awaiting_grasp"
	case StageGripped:
		return "gripped"
	case StageSorting:
		return "sorting"
	case StageReleasing:
		return "releasing"
	case StageCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Active reports whether the stage is a manipulation stage. At most one piece
// may hold an active stage at any time.
func (s Stage) Active() bool {
	return s >= StageDetecting && s <= StageReleasing
}

// Result is the outcome of a classification.
type Result int

const (
	// ResultPass routes a piece to the pass bin.
	ResultPass Result = iota
	// ResultFail routes a piece to the NG bin. Classification errors and
	// timeouts are conservatively mapped to ResultFail.
	ResultFail
)

func (r Result) String() string {
	if r == ResultPass {
		return "pass"
	}
	return "fail"
}

// Classification is the stored outcome of the external defect-detection call.
type Classification struct {
	Result      Result
	DefectCount int
	TimedOut    bool
}

// Piece is an object being processed through the work-cell. Pieces are owned
// exclusively by the PieceRegistry and mutated only by the orchestrator.
type Piece struct {
	ID          int64
	Position    r3.Vector
	Orientation *spatialmath.EulerAngles
	Stage       Stage

	// Classification is nil until the defect-detection collaborator has
	// answered (or timed out) for this piece.
	Classification *Classification

	// ReachWarning marks that the IK solver degraded to a best-effort pose
	// at some point while handling this piece.
	ReachWarning bool

	// CompletedAt is the simulation time at which the piece entered
	// StageCompleted; used for the settle-delay purge.
	CompletedAt time.Duration

	admittedAt time.Duration
}

// Pose returns the piece's position and orientation as a spatial pose.
func (p *Piece) Pose() spatialmath.Pose {
	o := p.Orientation
	if o == nil {
		o = spatialmath.NewEulerAngles()
	}
	return spatialmath.NewPose(p.Position, o)
}

// PieceSnapshot is a read-only copy of a piece handed to consumers.
type PieceSnapshot struct {
	ID             int64
	Position       r3.Vector
	Orientation    *spatialmath.EulerAngles
	Stage          Stage
	Classification *Classification
	ReachWarning   bool
	AdmittedAt     time.Duration
}

func (p *Piece) snapshot() PieceSnapshot {
	var cls *Classification
	if p.Classification != nil {
		c := *p.Classification
		cls = &c
	}
	var o *spatialmath.EulerAngles
	if p.Orientation != nil {
		e := *p.Orientation
		o = &e
	}
	return PieceSnapshot{
		ID:             p.ID,
		Position:       p.Position,
		Orientation:    o,
		Stage:          p.Stage,
		Classification: cls,
		ReachWarning:   p.ReachWarning,
		AdmittedAt:     p.admittedAt,
	}
}
