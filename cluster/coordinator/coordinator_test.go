package coordinator

import "testing"

func TestDisabledAlwaysOwnsLocally(t *testing.T) {
	c := New(Config{Enabled: false, InstanceID: "i1"})
	if !c.Owns("any-source") {
		t.Error("disabled coordinator must process every source locally")
	}
}

func TestEmptyActiveSetOwnsLocally(t *testing.T) {
	c := New(Config{Enabled: true, InstanceID: ""})
	if !c.Owns("any-source") {
		t.Error("empty active set must process every source locally")
	}
}

func TestAssignmentIsDeterministic(t *testing.T) {
	c1 := New(Config{Enabled: true, InstanceID: "i1"})
	c1.RegisterNode("i1", "")
	c1.RegisterNode("i2", "")
	c1.RegisterNode("i3", "")

	c2 := New(Config{Enabled: true, InstanceID: "i2"})
	c2.RegisterNode("i1", "")
	c2.RegisterNode("i2", "")
	c2.RegisterNode("i3", "")

	c3 := New(Config{Enabled: true, InstanceID: "i3"})
	c3.RegisterNode("i1", "")
	c3.RegisterNode("i2", "")
	c3.RegisterNode("i3", "")

	owners := 0
	for _, c := range []*Coordinator{c1, c2, c3} {
		if c.Owns("source-xyz") {
			owners++
		}
	}
	if owners != 1 {
		t.Errorf("exactly one instance must own a given source, got %d", owners)
	}
}

func TestDeregisterNodeShrinksActiveSet(t *testing.T) {
	c := New(Config{Enabled: true, InstanceID: "i1"})
	c.RegisterNode("i1", "")
	c.RegisterNode("i2", "")
	c.DeregisterNode("i2")

	c.mu.RLock()
	_, stillActive := c.active["i2"]
	c.mu.RUnlock()
	if stillActive {
		t.Error("expected i2 to be removed from the active set")
	}
}
