// Package slave implements the Modbus slave/server role: a fixed-size
// in-memory data store, a request pipeline (parse, exception-map,
// bounds-check, apply, respond), a register/coil simulation loop, fault
// injection, and per-function statistics.
// Grounded on gomodbus's server.MemoryStore and server.serverProtocolHandler,
// adapted from map-backed storage to the fixed 10000-entry arrays this data
// model requires.
package slave

import (
	"sync"

	"github.com/vienkmt/commscore/modbus/proto"
)

// NumAddresses is the fixed length of every logical address space.
const NumAddresses = 10000

// Store holds the four Modbus address spaces as fixed arrays, each guarded
// by its own lock so concurrent reads/writes to different data types never
// contend.
type Store struct {
	coilsMu    sync.RWMutex
	coils      [NumAddresses]bool

	discreteMu sync.RWMutex
	discrete   [NumAddresses]bool

	holdingMu sync.RWMutex
	holding   [NumAddresses]uint16

	inputMu sync.RWMutex
	input   [NumAddresses]uint16
}

// NewStore returns a Store with all four address spaces zeroed.
func NewStore() *Store {
	return &Store{}
}

// InBounds reports whether [start, start+quantity) fits within NumAddresses.
func InBounds(start, quantity uint16) bool {
	return int(start)+int(quantity) <= NumAddresses
}

func (s *Store) ReadCoils(start, quantity uint16) []bool {
	s.coilsMu.RLock()
	defer s.coilsMu.RUnlock()
	out := make([]bool, quantity)
	copy(out, s.coils[start:int(start)+int(quantity)])
	return out
}

func (s *Store) WriteCoil(address uint16, value bool) {
	s.coilsMu.Lock()
	defer s.coilsMu.Unlock()
	s.coils[address] = value
}

func (s *Store) WriteCoils(start uint16, values []bool) {
	s.coilsMu.Lock()
	defer s.coilsMu.Unlock()
	for i, v := range values {
		s.coils[int(start)+i] = v
	}
}

func (s *Store) ReadDiscreteInputs(start, quantity uint16) []bool {
	s.discreteMu.RLock()
	defer s.discreteMu.RUnlock()
	out := make([]bool, quantity)
	copy(out, s.discrete[start:int(start)+int(quantity)])
	return out
}

func (s *Store) SetDiscreteInput(address uint16, value bool) {
	s.discreteMu.Lock()
	defer s.discreteMu.Unlock()
	s.discrete[address] = value
}

func (s *Store) ReadHoldingRegisters(start, quantity uint16) []uint16 {
	s.holdingMu.RLock()
	defer s.holdingMu.RUnlock()
	out := make([]uint16, quantity)
	copy(out, s.holding[start:int(start)+int(quantity)])
	return out
}

func (s *Store) WriteHoldingRegister(address uint16, value uint16) {
	s.holdingMu.Lock()
	defer s.holdingMu.Unlock()
	s.holding[address] = value
}

func (s *Store) WriteHoldingRegisters(start uint16, values []uint16) {
	s.holdingMu.Lock()
	defer s.holdingMu.Unlock()
	for i, v := range values {
		s.holding[int(start)+i] = v
	}
}

func (s *Store) ReadInputRegisters(start, quantity uint16) []uint16 {
	s.inputMu.RLock()
	defer s.inputMu.RUnlock()
	out := make([]uint16, quantity)
	copy(out, s.input[start:int(start)+int(quantity)])
	return out
}

func (s *Store) SetInputRegister(address uint16, value uint16) {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	s.input[address] = value
}

// lockForDataType returns the per-array lock guarding dt's array without
// exposing the underlying arrays.
func (s *Store) lockForDataType(dt proto.DataType) *sync.RWMutex {
	switch dt {
	case proto.DataTypeCoil:
		return &s.coilsMu
	case proto.DataTypeDiscreteInput:
		return &s.discreteMu
	case proto.DataTypeHoldingRegister:
		return &s.holdingMu
	default:
		return &s.inputMu
	}
}
