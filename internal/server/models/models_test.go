package models

import "testing"

func TestStoreFor(t *testing.T) {
	if StoreFor(false) != StorePlain {
		t.Fatal("expected plain store for unencrypted payload")
	}
	if StoreFor(true) != StoreEncrypted {
		t.Fatal("expected encrypted store for encrypted payload")
	}
}

func TestStoreOther(t *testing.T) {
	if StorePlain.Other() != StoreEncrypted || StoreEncrypted.Other() != StorePlain {
		t.Fatal("Other must flip between the two stores")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	cases := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobPending, false},
		{JobRunning, false},
		{JobCompleted, false}, // still expirable
		{JobFailed, true},
		{JobExpired, true},
	}
	for _, c := range cases {
		if c.status.Terminal() != c.terminal {
			t.Fatalf("%s: expected terminal=%v", c.status, c.terminal)
		}
	}
}
