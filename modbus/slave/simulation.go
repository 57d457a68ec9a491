package slave

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/vienkmt/commscore/modbus/proto"
)

// SimKind identifies a simulation waveform.
type SimKind int

const (
	SimSinWave SimKind = iota
	SimRamp
	SimRandom
)

// Simulation drives one bound register or coil through a waveform on a
// fixed tick. Ref: spec.md §4.7 simulation loop.
type Simulation struct {
	Kind       SimKind
	DataType   proto.DataType
	Address    uint16
	Min, Max   int32
	Step       int32 // Ramp only
	Reverse    bool  // Ramp: reverse_at_bounds
	IntervalMs int64

	startedAt time.Time
	current   int32
	direction int32
}

func (s *Simulation) init() {
	s.startedAt = time.Now()
	s.current = s.Min
	s.direction = 1
}

// tick computes the next value for this simulation at elapsed time t since
// start (used by SinWave, which is phase-based rather than stateful).
func (s *Simulation) tick() uint16 {
	switch s.Kind {
	case SimSinWave:
		period := float64(s.IntervalMs)
		if period <= 0 {
			period = 1
		}
		t := float64(time.Since(s.startedAt).Milliseconds())
		v := float64(s.Min) + float64(s.Max-s.Min)*(1+math.Sin(2*math.Pi*t/period))/2
		return uint16(math.Round(v))

	case SimRamp:
		s.current += s.Step * s.direction
		if s.current > s.Max {
			if s.Reverse {
				s.current = s.Max
				s.direction = -1
			} else {
				s.current = s.Min
			}
		} else if s.current < s.Min {
			if s.Reverse {
				s.current = s.Min
				s.direction = 1
			} else {
				s.current = s.Max
			}
		}
		return uint16(s.current)

	case SimRandom:
		if s.Max <= s.Min {
			return uint16(s.Min)
		}
		return uint16(s.Min + rand.Int31n(s.Max-s.Min+1))

	default:
		return 0
	}
}

// SimulationRunner advances a set of Simulations on their own tick and
// writes results into store under the normal per-array lock.
type SimulationRunner struct {
	store       *Store
	simulations []*Simulation
	onChange    func(proto.DataType, uint16, uint16)
}

// NewSimulationRunner builds a runner over sims, each initialized at its
// minimum value.
func NewSimulationRunner(store *Store, sims []*Simulation, onChange func(proto.DataType, uint16, uint16)) *SimulationRunner {
	for _, s := range sims {
		s.init()
	}
	return &SimulationRunner{store: store, simulations: sims, onChange: onChange}
}

// Run ticks every simulation at its own interval until ctx is cancelled.
func (r *SimulationRunner) Run(ctx context.Context) {
	if len(r.simulations) == 0 {
		return
	}
	tickers := make([]*time.Ticker, len(r.simulations))
	for i, s := range r.simulations {
		interval := time.Duration(s.IntervalMs) * time.Millisecond
		if interval <= 0 {
			interval = time.Second
		}
		tickers[i] = time.NewTicker(interval)
	}
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// A select over a dynamic slice of channels needs reflection in general,
	// but the simulation count here is small and fixed per slave, so a
	// dedicated goroutine per simulation keeps this straightforward.
	for i, s := range r.simulations {
		go r.runOne(ctx, s, tickers[i])
	}
	<-ctx.Done()
}

func (r *SimulationRunner) runOne(ctx context.Context, s *Simulation, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			value := s.tick()
			r.apply(s, value)
		}
	}
}

func (r *SimulationRunner) apply(s *Simulation, value uint16) {
	switch s.DataType {
	case proto.DataTypeCoil:
		r.store.WriteCoil(s.Address, value != 0)
	case proto.DataTypeDiscreteInput:
		r.store.SetDiscreteInput(s.Address, value != 0)
	case proto.DataTypeHoldingRegister:
		r.store.WriteHoldingRegister(s.Address, value)
	case proto.DataTypeInputRegister:
		r.store.SetInputRegister(s.Address, value)
	}
	if r.onChange != nil {
		r.onChange(s.DataType, s.Address, 1)
	}
}
