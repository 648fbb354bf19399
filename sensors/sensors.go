// Package sensors provides a rate-limited sampling front end over pluggable
// measurement sources, with history-backed smoothing filters. A Registry is
// single-owner state like the kernel's task table; the owning service
// goroutine performs all calls.
package sensors

import (
	"time"

	"rtcore-go/errcode"
	"rtcore-go/x/mathx"
)

// Source produces raw samples for registered sensor names.
type Source interface {
	Sample(name string) (float64, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(name string) (float64, error)

func (f SourceFunc) Sample(name string) (float64, error) { return f(name) }

const DefaultHistory = 100

// Config controls registry behaviour. Only Source is required.
type Config struct {
	Source  Source
	History int              // per-sensor ring capacity, default 100
	Now     func() time.Time // timebase override for tests
}

type sensor struct {
	name       string
	sampleHz   float64
	resolution int
	minPeriod  time.Duration

	last    float64
	hasLast bool
	lastAt  time.Time

	history  []float64 // fixed ring
	histHead int
	histLen  int
}

// SensorInfo is a copy of one sensor's state for telemetry.
type SensorInfo struct {
	Name           string
	SampleHz       float64
	ResolutionBits int
	LastValue      float64
	HasValue       bool
	LastSampleMs   int64
	HistoryLen     int
}

// Registry owns sensor records keyed by name.
type Registry struct {
	cfg     Config
	sensors map[string]*sensor
	order   []string
	scratch []float64
}

// New creates a registry. Zero config fields take defaults; Source must be
// set before the first Read.
func New(cfg Config) *Registry {
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		cfg:     cfg,
		sensors: map[string]*sensor{},
		scratch: make([]float64, 0, cfg.History),
	}
}

// Register adds a sensor or reconfigures an existing one. Reconfiguring
// clears the sample history. Rates must be positive; resolution is a nominal
// bit width in 1..32 recorded for consumers that scale raw counts.
func (r *Registry) Register(name string, sampleHz float64, resolutionBits int) error {
	if name == "" || sampleHz <= 0 {
		return errcode.InvalidParams
	}
	if resolutionBits < 1 || resolutionBits > 32 {
		return errcode.InvalidParams
	}
	s, exists := r.sensors[name]
	if !exists {
		s = &sensor{name: name, history: make([]float64, r.cfg.History)}
		r.sensors[name] = s
		r.order = append(r.order, name)
	}
	s.sampleHz = sampleHz
	s.resolution = resolutionBits
	s.minPeriod = time.Duration(float64(time.Second) / sampleHz)
	s.hasLast = false
	s.lastAt = time.Time{}
	s.histHead = 0
	s.histLen = 0
	return nil
}

// Read returns the sensor's value, pulling a fresh sample from the source
// only when at least one sample period has elapsed since the last pull. The
// first read always samples. Source errors pass through and leave the cached
// state untouched.
func (r *Registry) Read(name string) (float64, error) {
	s, ok := r.sensors[name]
	if !ok {
		return 0, errcode.SensorNotFound
	}
	now := r.cfg.Now()
	if s.hasLast && now.Sub(s.lastAt) < s.minPeriod {
		return s.last, nil
	}
	v, err := r.cfg.Source.Sample(name)
	if err != nil {
		return 0, err
	}
	s.last = v
	s.hasLast = true
	s.lastAt = now
	s.push(v)
	return v, nil
}

// Info returns a copy of one sensor's state.
func (r *Registry) Info(name string) (SensorInfo, bool) {
	s, ok := r.sensors[name]
	if !ok {
		return SensorInfo{}, false
	}
	info := SensorInfo{
		Name:           s.name,
		SampleHz:       s.sampleHz,
		ResolutionBits: s.resolution,
		LastValue:      s.last,
		HasValue:       s.hasLast,
		HistoryLen:     s.histLen,
	}
	if s.hasLast {
		info.LastSampleMs = s.lastAt.UnixMilli()
	}
	return info, true
}

// History appends the sensor's buffered samples to dst, oldest first.
func (r *Registry) History(name string, dst []float64) ([]float64, error) {
	s, ok := r.sensors[name]
	if !ok {
		return dst, errcode.SensorNotFound
	}
	return s.appendTail(dst, s.histLen), nil
}

// Names returns sensor names in registration order.
func (r *Registry) Names() []string { return r.order }

// Len returns the number of registered sensors.
func (r *Registry) Len() int { return len(r.sensors) }

// push records a sample, evicting the oldest once the ring is full.
func (s *sensor) push(v float64) {
	capacity := len(s.history)
	if capacity == 0 {
		return
	}
	if s.histLen < capacity {
		s.history[(s.histHead+s.histLen)%capacity] = v
		s.histLen++
		return
	}
	s.history[s.histHead] = v
	s.histHead = (s.histHead + 1) % capacity
}

// appendTail appends the newest n buffered samples to dst, oldest first.
func (s *sensor) appendTail(dst []float64, n int) []float64 {
	n = mathx.Min(n, s.histLen)
	capacity := len(s.history)
	for i := s.histLen - n; i < s.histLen; i++ {
		dst = append(dst, s.history[(s.histHead+i)%capacity])
	}
	return dst
}
