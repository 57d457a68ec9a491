package slave

import "github.com/vienkmt/commscore/modbus/proto"

// FaultRule maps requests touching [LowAddress, HighAddress] of DataType to
// a forced exception response, used to simulate device faults during testing.
type FaultRule struct {
	DataType    proto.DataType
	LowAddress  uint16
	HighAddress uint16
	Exception   proto.ExceptionCode
}

func (r FaultRule) matches(dt proto.DataType, address uint16) bool {
	return r.DataType == dt && address >= r.LowAddress && address <= r.HighAddress
}

// FaultInjector holds the active set of fault rules and finds the first
// match for a given address, if any.
type FaultInjector struct {
	rules []FaultRule
}

// NewFaultInjector builds an injector from an initial rule set (may be empty).
func NewFaultInjector(rules ...FaultRule) *FaultInjector {
	return &FaultInjector{rules: append([]FaultRule(nil), rules...)}
}

// SetRules replaces the active rule set.
func (f *FaultInjector) SetRules(rules []FaultRule) {
	f.rules = append([]FaultRule(nil), rules...)
}

// Match returns the exception code for the first rule covering (dataType,
// address), if any.
func (f *FaultInjector) Match(dataType proto.DataType, address uint16) (proto.ExceptionCode, bool) {
	for _, r := range f.rules {
		if r.matches(dataType, address) {
			return r.Exception, true
		}
	}
	return 0, false
}
