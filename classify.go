package workcell

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Classifier is the external defect-detection collaborator. The orchestrator
// issues exactly one outstanding call per piece and cancels the context as
// soon as it stops waiting; implementations must honor ctx.
type Classifier interface {
	Classify(ctx context.Context, piece PieceSnapshot) (Classification, error)
}

// SimClassifierConfig tunes the simulated classifier.
type SimClassifierConfig struct {
	// Threshold is the difference-image binarization threshold (0-255).
	// Raising it hides faint defects, as in the template-difference detector
	// this simulates.
	Threshold int `json:"threshold,omitempty"`

	// DefectRate is the per-piece probability of surface damage before
	// thresholding.
	DefectRate float64 `json:"defect_rate,omitempty"`

	// Latency is how long one inspection takes.
	Latency time.Duration `json:"latency,omitempty"`

	// Seed makes runs reproducible. Zero seeds from the current time.
	Seed int64 `json:"seed,omitempty"`
}

// SimClassifier fakes the statistics of a template-difference defect
// detector: pieces accumulate zero or more defect blobs, faint ones are
// discarded by the threshold, and any surviving blob fails the piece.
type SimClassifier struct {
	mu         sync.Mutex
	threshold  int
	defectRate float64
	latency    time.Duration
	rng        *rand.Rand
}

// NewSimClassifier creates a simulated classifier.
func NewSimClassifier(cfg SimClassifierConfig) *SimClassifier {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 30
	}
	if cfg.DefectRate <= 0 {
		cfg.DefectRate = 0.3
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimClassifier{
		threshold:  cfg.Threshold,
		defectRate: cfg.DefectRate,
		latency:    cfg.Latency,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// SetThreshold updates the binarization threshold, clamped to [0, 255].
func (c *SimClassifier) SetThreshold(threshold int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = int(clamp(float64(threshold), 0, 255))
}

// Threshold returns the current binarization threshold.
func (c *SimClassifier) Threshold() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// Classify inspects one piece. It blocks for the configured latency (or until
// ctx is done) and returns a pass/fail result with the surviving defect count.
func (c *SimClassifier) Classify(ctx context.Context, piece PieceSnapshot) (Classification, error) {
	c.mu.Lock()
	threshold := c.threshold
	rate := c.defectRate
	latency := c.latency

	// Up to three candidate blobs per piece, each with a random intensity;
	// blobs below the threshold are treated as template noise.
	defects := 0
	for i := 0; i < 3; i++ {
		if c.rng.Float64() >= rate {
			continue
		}
		intensity := c.rng.Intn(256)
		if intensity > threshold {
			defects++
		}
	}
	c.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Classification{}, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return Classification{}, err
	}

	result := ResultPass
	if defects > 0 {
		result = ResultFail
	}
	return Classification{Result: result, DefectCount: defects}, nil
}
