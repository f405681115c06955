package hostnet

import (
	"strconv"
	"sync"
)

// Call records a single invocation against a Fake backend, for assertions
// in tests that exercise bring-up/teardown sequencing without touching the
// real network stack.
type Call struct {
	Method string
	Args   []string
}

// Fake is a HostNet backend that records every call instead of executing
// it, and returns canned values/errors configured by the test.
type Fake struct {
	mu    sync.Mutex
	Calls []Call

	GatewayResult string
	GatewayErr    error
	FailMethods   map[string]error
}

// NewFake returns a Fake backend with no configured failures.
func NewFake() *Fake {
	return &Fake{FailMethods: make(map[string]error)}
}

func (f *Fake) record(method string, args ...string) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{Method: method, Args: args})
	f.mu.Unlock()

	if f.FailMethods != nil {
		if err, ok := f.FailMethods[method]; ok {
			return err
		}
	}
	return nil
}

func (f *Fake) DefaultGateway() (string, error) {
	f.record("DefaultGateway")
	return f.GatewayResult, f.GatewayErr
}

func (f *Fake) SetMTU(iface string, mtu int) error {
	return f.record("SetMTU", iface, strconv.Itoa(mtu))
}

func (f *Fake) AddExclusionRoute(cidr, gateway string, metric int) error {
	return f.record("AddExclusionRoute", cidr, gateway, strconv.Itoa(metric))
}

func (f *Fake) AddDefaultHalves(serverIP, iface string, metric int) error {
	return f.record("AddDefaultHalves", serverIP, iface, strconv.Itoa(metric))
}

func (f *Fake) SetDNS(iface string, servers []string) error {
	return f.record("SetDNS", append([]string{iface}, servers...)...)
}

func (f *Fake) AllowFirewall(iface string) error {
	return f.record("AllowFirewall", iface)
}

func (f *Fake) EnableIPForwarding() error {
	return f.record("EnableIPForwarding")
}

func (f *Fake) EnsureNAT(name, subnetCIDR string) error {
	return f.record("EnsureNAT", name, subnetCIDR)
}

func (f *Fake) Cleanup(iface string) error {
	return f.record("Cleanup", iface)
}

