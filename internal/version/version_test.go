package version

import "testing"

func TestCheckMinimumEmptyAlwaysPasses(t *testing.T) {
	if err := CheckMinimum(""); err != nil {
		t.Fatalf("empty minimum should never fail: %v", err)
	}
}

func TestCheckMinimumRejectsNewerRequirement(t *testing.T) {
	if err := CheckMinimum("999.0.0"); err == nil {
		t.Fatal("expected an error for an unsatisfiable minimum version")
	}
}

func TestCheckMinimumAcceptsOlderRequirement(t *testing.T) {
	if err := CheckMinimum("0.0.1"); err != nil {
		t.Fatalf("CheckMinimum: %v", err)
	}
}
