package hostnet

import (
	"errors"
	"testing"
)

func TestFakeRecordsCallsInOrder(t *testing.T) {
	var h HostNet = NewFake()

	if err := h.EnableIPForwarding(); err != nil {
		t.Fatalf("EnableIPForwarding failed: %v", err)
	}
	if err := h.AddExclusionRoute("91.108.4.0/22", "192.168.1.1", 1); err != nil {
		t.Fatalf("AddExclusionRoute failed: %v", err)
	}
	if err := h.AddDefaultHalves("10.8.0.1", "televk0", 1); err != nil {
		t.Fatalf("AddDefaultHalves failed: %v", err)
	}

	fake := h.(*Fake)
	if len(fake.Calls) != 3 {
		t.Fatalf("recorded %d calls, want 3", len(fake.Calls))
	}
	if fake.Calls[0].Method != "EnableIPForwarding" {
		t.Errorf("Calls[0] = %v, want EnableIPForwarding", fake.Calls[0])
	}
	if fake.Calls[1].Method != "AddExclusionRoute" {
		t.Errorf("Calls[1] = %v, want AddExclusionRoute", fake.Calls[1])
	}
}

func TestFakeDefaultGatewayReturnsConfiguredValue(t *testing.T) {
	fake := NewFake()
	fake.GatewayResult = "192.168.1.1"

	gw, err := fake.DefaultGateway()
	if err != nil {
		t.Fatalf("DefaultGateway failed: %v", err)
	}
	if gw != "192.168.1.1" {
		t.Errorf("DefaultGateway() = %q, want 192.168.1.1", gw)
	}
}

func TestFakeFailMethodsInjectsErrors(t *testing.T) {
	fake := NewFake()
	wantErr := errors.New("simulated route failure")
	fake.FailMethods["AddExclusionRoute"] = wantErr

	err := fake.AddExclusionRoute("10.0.0.0/8", "192.168.1.1", 1)
	if err != wantErr {
		t.Errorf("AddExclusionRoute() error = %v, want %v", err, wantErr)
	}

	// The call should still be recorded even though it failed.
	if len(fake.Calls) != 1 {
		t.Fatalf("recorded %d calls, want 1 even on injected failure", len(fake.Calls))
	}
}

func TestFakeCleanupIsIndependentOfPriorFailures(t *testing.T) {
	fake := NewFake()
	fake.FailMethods["EnsureNAT"] = errors.New("nat setup failed")

	_ = fake.EnsureNAT(NATRuleName, "10.8.0.0/24")
	if err := fake.Cleanup("televk0"); err != nil {
		t.Errorf("Cleanup() error = %v, want nil (best-effort)", err)
	}
}
