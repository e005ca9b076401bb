package workcell

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	goutils "go.viam.com/utils"
)

// Sink consumes the per-tick stream of cell state: joint configurations, the
// end-effector flag and piece changes. Renderers and physical controllers
// implement this. Sink errors are logged, never propagated.
type Sink interface {
	Consume(ctx context.Context, state CellState) error
	Close() error
}

// CellState is a read-only snapshot of the whole cell, published once per
// control tick.
type CellState struct {
	SimTime     time.Duration
	Arm         ArmConfiguration
	EndEffector r3.Vector
	ArmTarget   *r3.Vector
	ActivePiece int64 // 0 when the arm is idle
	Pieces      []PieceSnapshot
	Stats       Stats
	Running     bool
	Paused      bool
	Speed       float64
}

type classifyOutcome struct {
	cls Classification
	err error
}

// Orchestrator drives the per-piece state machine. It has exclusive ownership
// of the piece registry and the arm target: a single logical control loop
// mutates state, everyone else reads snapshots. Advance it either with the
// background run loop (Start) or by calling Tick directly.
type Orchestrator struct {
	logger     logging.Logger
	cfg        *CellConfig
	classifier Classifier
	clk        clock.Clock

	mu           sync.RWMutex
	registry     *PieceRegistry
	stats        Stats
	arm          ArmConfiguration
	armTarget    *r3.Vector
	active       *Piece
	activeBin    BinID
	segment      *MotionSegment
	stageElapsed time.Duration
	simTime      time.Duration
	lastFeed     time.Duration
	admitSeq     int64
	feedFrom     r3.Vector
	speed        float64
	pendingSpeed float64
	classifyTO   time.Duration

	running   bool
	paused    bool
	runCancel context.CancelFunc

	classifyCh     chan classifyOutcome
	classifyCancel context.CancelFunc

	states chan CellState
	sinks  []Sink

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewOrchestrator creates an orchestrator for the given cell. A nil
// classifier gets a default simulated one.
func NewOrchestrator(cfg *CellConfig, classifier Classifier) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		classifier = NewSimClassifier(SimClassifierConfig{})
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	o := &Orchestrator{
		logger:     cfg.Logger,
		cfg:        cfg,
		classifier: classifier,
		clk:        clock.New(),
		registry:   NewPieceRegistry(),
		arm:        cfg.IdlePosture,
		speed:      cfg.Speed,
		classifyTO: cfg.ClassifyTimeout,
		states:     make(chan CellState, 1),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
	return o, nil
}

// SetClock swaps the run-loop clock; intended for tests. Must be called
// before Start.
func (o *Orchestrator) SetClock(c clock.Clock) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clk = c
}

// AddSink registers a consumer for the per-tick state stream.
func (o *Orchestrator) AddSink(s Sink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks = append(o.sinks, s)
}

// States returns a latest-wins channel of cell snapshots published at tick
// cadence. Slow consumers observe the newest state, never a backlog.
func (o *Orchestrator) States() <-chan CellState {
	return o.states
}

// AdmitPiece places a new piece on the feed line. Admission is allowed at any
// time, including while another piece is being manipulated or the cell is
// paused.
func (o *Orchestrator) AdmitPiece() PieceSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.admitLocked()
}

func (o *Orchestrator) admitLocked() PieceSnapshot {
	o.admitSeq++
	// Deterministic lateral and yaw spread so queued pieces do not stack on
	// the exact same spot.
	pos := o.cfg.FeedPoint
	pos.X += 0.12 * float64(o.admitSeq%3-1)
	orient := &spatialmath.EulerAngles{Yaw: 0.15 * float64(o.admitSeq%5-2)}
	p := o.registry.Admit(pos, orient, o.simTime)
	o.logger.Debugf("admitted piece %d at %v", p.ID, p.Position)
	return p.snapshot()
}

// Start launches the background run loop at the configured tick interval.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, runCancel := context.WithCancel(ctx)
	o.running = true
	o.runCancel = runCancel
	interval := o.cfg.TickInterval
	clk := o.clk
	o.mu.Unlock()

	o.activeBackgroundWorkers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer o.activeBackgroundWorkers.Done()
		o.runLoop(runCtx, clk, interval)
	})
	return nil
}

func (o *Orchestrator) runLoop(ctx context.Context, clk clock.Clock, interval time.Duration) {
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	last := clk.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.cancelCtx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			o.Tick(dt)
		}
	}
}

// Stop halts the background run loop. In-flight state is preserved; use
// Reset to discard it.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running || o.runCancel == nil {
		o.mu.Unlock()
		return ErrNotRunning
	}
	cancel := o.runCancel
	o.runCancel = nil
	o.mu.Unlock()
	cancel()
	return nil
}

// Pause freezes the cell: all in-flight elapsed counters keep their values
// until Resume.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.paused {
		o.paused = true
		o.logger.Info("cell paused")
	}
}

// Resume lifts a pause.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.paused {
		o.paused = false
		o.logger.Info("cell resumed")
	}
}

// Reset atomically discards all pieces, cancels any outstanding
// classification, zeroes statistics and returns the arm to its idle posture.
// No partial state is observable: the swap happens under the write lock.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.abortClassifyLocked()
	o.registry.Clear()
	o.stats = Stats{}
	o.arm = o.cfg.IdlePosture
	o.armTarget = nil
	o.active = nil
	o.segment = nil
	o.stageElapsed = 0
	o.simTime = 0
	o.lastFeed = 0
	if o.pendingSpeed != 0 {
		o.speed = o.pendingSpeed
		o.pendingSpeed = 0
	}
	o.logger.Info("cell reset")
}

// SetSpeed sets the global speed multiplier. Values outside [0.1, 5.0] are
// rejected with the orchestrator state unchanged. While a piece is being
// manipulated the new speed takes effect at the next piece boundary, so
// in-flight segment durations are never rescaled.
func (o *Orchestrator) SetSpeed(factor float64) error {
	if factor < MinSpeed || factor > MaxSpeed {
		return ErrInvalidSpeed
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		o.pendingSpeed = factor
		o.logger.Infof("speed %.2f deferred to next piece boundary", factor)
		return nil
	}
	o.speed = factor
	o.pendingSpeed = 0
	return nil
}

// Speed returns the effective speed multiplier.
func (o *Orchestrator) Speed() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.speed
}

// SetClassificationTimeout bounds the wait for the classification
// collaborator. Non-positive values are rejected.
func (o *Orchestrator) SetClassificationTimeout(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidTimeout
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.classifyTO = d
	return nil
}

// Snapshot returns a read-only copy of the whole cell state.
func (o *Orchestrator) Snapshot() CellState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() CellState {
	var target *r3.Vector
	if o.armTarget != nil {
		t := *o.armTarget
		target = &t
	}
	var activeID int64
	if o.active != nil {
		activeID = o.active.ID
	}
	return CellState{
		SimTime:     o.simTime,
		Arm:         o.arm,
		EndEffector: o.cfg.Arm.EndEffector(o.arm),
		ArmTarget:   target,
		ActivePiece: activeID,
		Pieces:      o.registry.Snapshot(),
		Stats:       o.stats,
		Running:     o.running,
		Paused:      o.paused,
		Speed:       o.speed,
	}
}

// Close shuts the orchestrator down and closes all sinks.
func (o *Orchestrator) Close() error {
	o.cancelFunc()
	o.activeBackgroundWorkers.Wait()

	o.mu.Lock()
	sinks := o.sinks
	o.sinks = nil
	o.mu.Unlock()

	for _, s := range sinks {
		if err := s.Close(); err != nil {
			o.logger.Warnf("error closing sink: %v", err)
		}
	}
	return nil
}

// Tick advances the simulation by dt. It is the single writer of all cell
// state; the background run loop calls it at tick cadence, and tests may call
// it directly. A paused cell ignores ticks entirely.
func (o *Orchestrator) Tick(dt time.Duration) {
	o.mu.Lock()
	if o.paused || dt <= 0 {
		o.mu.Unlock()
		return
	}

	o.simTime += dt
	o.autoFeedLocked()
	purged := o.registry.PurgeCompleted(o.simTime, o.scale(o.cfg.SettleDelay))
	for _, id := range purged {
		o.logger.Debugf("purged piece %d", id)
	}
	o.advanceLocked(dt)
	o.checkExclusivityLocked()

	state := o.snapshotLocked()
	sinks := make([]Sink, len(o.sinks))
	copy(sinks, o.sinks)
	o.mu.Unlock()

	o.publish(state, sinks)
}

// scale converts a nominal duration to the effective one under the current
// speed multiplier.
func (o *Orchestrator) scale(d time.Duration) time.Duration {
	return time.Duration(float64(d) / o.speed)
}

func (o *Orchestrator) autoFeedLocked() {
	if o.cfg.FeedInterval <= 0 {
		return
	}
	if o.simTime-o.lastFeed >= o.cfg.FeedInterval {
		o.admitLocked()
		o.lastFeed = o.simTime
	}
}

func (o *Orchestrator) advanceLocked(dt time.Duration) {
	if o.active == nil {
		// Finish any return-to-idle motion before picking up the next piece.
		if o.segment != nil {
			o.segment.Advance(dt)
			o.arm = o.segment.Current()
			if o.segment.Done() {
				o.segment = nil
			}
			return
		}
		if o.pendingSpeed != 0 {
			o.speed = o.pendingSpeed
			o.pendingSpeed = 0
			o.logger.Infof("speed multiplier now %.2f", o.speed)
		}
		if p := o.registry.NextQueued(); p != nil {
			o.active = p
			o.feedFrom = p.Position
			o.stageElapsed = 0
		}
		return
	}

	p := o.active
	switch p.Stage {
	case StageQueued:
		o.tickFeedLocked(p, dt)
	case StageDetecting:
		o.tickDetectingLocked(p, dt)
	case StageAwaitingGrasp:
		o.tickApproachLocked(p, dt)
	case StageGripped:
		o.tickGraspLocked(p, dt)
	case StageSorting:
		o.tickTransportLocked(p, dt)
	case StageReleasing:
		o.tickReleaseLocked(p, dt)
	}
}

// tickFeedLocked moves the piece along the feed line toward the detection
// point over the feed duration.
func (o *Orchestrator) tickFeedLocked(p *Piece, dt time.Duration) {
	o.stageElapsed += dt
	d := o.scale(o.cfg.Durations.Feed)
	u := 1.0
	if d > 0 {
		u = float64(o.stageElapsed) / float64(d)
	}
	s := smoothstep(u)
	p.Position = r3.Vector{
		X: o.feedFrom.X + s*(o.cfg.DetectPoint.X-o.feedFrom.X),
		Y: o.feedFrom.Y + s*(o.cfg.DetectPoint.Y-o.feedFrom.Y),
		Z: o.feedFrom.Z + s*(o.cfg.DetectPoint.Z-o.feedFrom.Z),
	}
	if o.stageElapsed < d {
		return
	}
	p.Position = o.cfg.DetectPoint
	o.advanceStageLocked(p, StageDetecting)
	o.requestClassificationLocked(p)
}

// tickDetectingLocked waits for the classification collaborator. A timeout or
// error is conservatively recorded as Fail; the piece never stalls the line.
func (o *Orchestrator) tickDetectingLocked(p *Piece, dt time.Duration) {
	o.stageElapsed += dt

	if p.Classification == nil && o.classifyCh != nil {
		select {
		case out := <-o.classifyCh:
			o.abortClassifyLocked()
			if out.err != nil {
				o.logger.Errorf("classification failed for piece %d, routing as fail: %v", p.ID, out.err)
				p.Classification = &Classification{Result: ResultFail}
			} else {
				cls := out.cls
				p.Classification = &cls
				o.logger.Debugf("piece %d classified %s (%d defects)", p.ID, cls.Result, cls.DefectCount)
			}
		default:
		}
	}
	// The timeout bounds the collaborator's real latency, so it is not
	// scaled by the speed multiplier.
	if p.Classification == nil && o.stageElapsed >= o.classifyTO {
		o.abortClassifyLocked()
		o.logger.Warnf("classification timed out for piece %d, routing as fail", p.ID)
		p.Classification = &Classification{Result: ResultFail, TimedOut: true}
	}
	if p.Classification == nil {
		return
	}

	target := p.Position.Add(r3.Vector{Y: o.cfg.GripperOffset})
	approach := o.solveLocked(p, target)
	approach.GripperOpen = true
	o.armTarget = &target
	o.segment = NewMotionSegment(o.arm, approach, o.scale(o.cfg.Durations.Approach))
	o.advanceStageLocked(p, StageAwaitingGrasp)
}

// tickApproachLocked streams the arm to the hover point above the piece.
func (o *Orchestrator) tickApproachLocked(p *Piece, dt time.Duration) {
	o.segment.Advance(dt)
	o.arm = o.segment.Current()
	if !o.segment.Done() {
		return
	}
	o.segment = nil
	o.arm.GripperOpen = false
	// From here to release the piece position is derived from the arm, not
	// animated on its own.
	p.Position = o.grippedPositionLocked()
	o.advanceStageLocked(p, StageGripped)
}

// tickGraspLocked dwells while the end effector closes.
func (o *Orchestrator) tickGraspLocked(p *Piece, dt time.Duration) {
	o.stageElapsed += dt
	if o.stageElapsed < o.scale(o.cfg.Durations.Grasp) {
		return
	}

	o.activeBin = SelectBin(p.Classification.Result)
	drop := o.cfg.BinDrop(o.activeBin)
	target := drop.Add(r3.Vector{Y: o.cfg.GripperOffset})
	transport := o.solveLocked(p, target)
	transport.GripperOpen = false
	o.armTarget = &target
	o.segment = NewMotionSegment(o.arm, transport, o.scale(o.cfg.Durations.Transport))
	o.advanceStageLocked(p, StageSorting)
}

// tickTransportLocked carries the piece to its bin; the piece position is a
// pure function of the current arm configuration and the gripper offset.
func (o *Orchestrator) tickTransportLocked(p *Piece, dt time.Duration) {
	o.segment.Advance(dt)
	o.arm = o.segment.Current()
	p.Position = o.grippedPositionLocked()
	if !o.segment.Done() {
		return
	}
	o.segment = nil
	o.arm.GripperOpen = true
	p.Position = o.cfg.BinDrop(o.activeBin)
	o.advanceStageLocked(p, StageReleasing)
}

// tickReleaseLocked dwells while the end effector opens, then commits the
// statistics exactly once and sends the arm home.
func (o *Orchestrator) tickReleaseLocked(p *Piece, dt time.Duration) {
	o.stageElapsed += dt
	if o.stageElapsed < o.scale(o.cfg.Durations.Release) {
		return
	}

	o.advanceStageLocked(p, StageCompleted)
	p.CompletedAt = o.simTime
	o.stats = o.stats.Record(p.Classification.Result)
	o.logger.Infof("piece %d completed: %s to %s (yield %.1f%%)",
		p.ID, p.Classification.Result, o.activeBin, o.stats.YieldRate*100)

	o.armTarget = nil
	home := o.cfg.IdlePosture
	start := o.arm
	o.segment = NewMotionSegment(start, home, o.scale(o.cfg.Durations.Return))
	o.active = nil
}

func (o *Orchestrator) advanceStageLocked(p *Piece, to Stage) {
	if err := o.registry.Advance(p.ID, to); err != nil {
		// Transitions are generated by this state machine only; an ordering
		// failure here is a bug, not an operational condition.
		if o.cfg.Debug {
			panic(fmt.Sprintf("piece %d: %s -> %s: %v", p.ID, p.Stage, to, err))
		}
		o.logger.Errorf("piece %d: %s -> %s: %v", p.ID, p.Stage, to, err)
		return
	}
	o.stageElapsed = 0
}

// solveLocked requests an IK solution, flagging the piece when the solver
// degrades to a best-effort pose. Unreachable targets never stall the line.
func (o *Orchestrator) solveLocked(p *Piece, target r3.Vector) ArmConfiguration {
	cfg, reachable := o.cfg.Arm.Solve(target)
	if !reachable {
		p.ReachWarning = true
		o.logger.Warnf("target %v unreachable for piece %d, using degraded pose", target, p.ID)
	}
	return cfg
}

func (o *Orchestrator) grippedPositionLocked() r3.Vector {
	return o.cfg.Arm.EndEffector(o.arm).Sub(r3.Vector{Y: o.cfg.GripperOffset})
}

func (o *Orchestrator) requestClassificationLocked(p *Piece) {
	ctx, cancel := context.WithCancel(o.cancelCtx)
	ch := make(chan classifyOutcome, 1)
	o.classifyCh = ch
	o.classifyCancel = cancel

	snapshot := p.snapshot()
	o.activeBackgroundWorkers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer o.activeBackgroundWorkers.Done()
		cls, err := o.classifier.Classify(ctx, snapshot)
		// The buffer guarantees the send never blocks; a late result after
		// the orchestrator moved on is simply dropped with its channel.
		ch <- classifyOutcome{cls: cls, err: err}
	})
}

// abortClassifyLocked cancels the outstanding classification call, if any,
// and detaches its result channel.
func (o *Orchestrator) abortClassifyLocked() {
	if o.classifyCancel != nil {
		o.classifyCancel()
		o.classifyCancel = nil
	}
	o.classifyCh = nil
}

// checkExclusivityLocked asserts the single-manipulator invariant: at most
// one piece in an active stage.
func (o *Orchestrator) checkExclusivityLocked() {
	if n := o.registry.CountActive(); n > 1 {
		msg := fmt.Sprintf("concurrent manipulation violation: %d active pieces", n)
		if o.cfg.Debug {
			panic(msg)
		}
		o.logger.Error(msg)
	}
}

func (o *Orchestrator) publish(state CellState, sinks []Sink) {
	// Latest-wins: drop the stale snapshot rather than block the tick.
	select {
	case o.states <- state:
	default:
		select {
		case <-o.states:
		default:
		}
		select {
		case o.states <- state:
		default:
		}
	}

	for _, s := range sinks {
		if err := s.Consume(o.cancelCtx, state); err != nil {
			o.logger.Warnf("sink error: %v", err)
		}
	}
}
