package resilience

import "testing"

func TestTokenBucketRegistryAllowsWithinBurst(t *testing.T) {
	reg := NewTokenBucketRegistry(1, 3)
	for i := 0; i < 3; i++ {
		if !reg.Allow("carrier:email") {
			t.Fatalf("call %d should be allowed within burst", i+1)
		}
	}
}

func TestTokenBucketRegistryBlocksOverBurst(t *testing.T) {
	reg := NewTokenBucketRegistry(0.001, 1)
	if !reg.Allow("carrier:sms") {
		t.Fatal("first call should be allowed")
	}
	if reg.Allow("carrier:sms") {
		t.Fatal("second immediate call should be blocked")
	}
}

func TestTokenBucketRegistryKeysAreIndependent(t *testing.T) {
	reg := NewTokenBucketRegistry(0.001, 1)
	reg.Allow("carrier:sms")
	if !reg.Allow("carrier:email") {
		t.Fatal("carrier:email should have its own bucket")
	}
}
