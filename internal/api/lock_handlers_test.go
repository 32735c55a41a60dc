package api

import (
	"net/http"
	"testing"

	"github.com/ringworld/server/internal/testutil"
)

func TestAcquireRenewReleaseFlow(t *testing.T) {
	env := newTestEnv(t)

	rr := env.helper.MakeRequest("POST", "/api/sections/acquire", AcquireLockRequest{
		Section: SectionPayload{Kind: "station", Floor: 0, Station: 3},
		Actor:   "alice",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var granted LockResponse
	if err := testutil.ParseJSONResponse(&granted, rr.Body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if granted.LockID == "" || granted.Holder != "alice" {
		t.Fatalf("Unexpected lock response: %+v", granted)
	}
	if !granted.ExpiresAt.After(granted.AcquiredAt) {
		t.Errorf("Lease expires at %v, before acquisition %v", granted.ExpiresAt, granted.AcquiredAt)
	}

	rr = env.helper.MakeRequest("POST", "/api/sections/renew", RenewLockRequest{
		LockID:     granted.LockID,
		Actor:      "alice",
		TTLSeconds: 120,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Renew expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var renewed LockResponse
	if err := testutil.ParseJSONResponse(&renewed, rr.Body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if renewed.LockID != granted.LockID {
		t.Errorf("Renew returned lock %s, expected %s", renewed.LockID, granted.LockID)
	}
	if !renewed.ExpiresAt.After(granted.ExpiresAt) {
		t.Errorf("Renewed expiry %v did not advance past %v", renewed.ExpiresAt, granted.ExpiresAt)
	}

	rr = env.helper.MakeRequest("POST", "/api/sections/release", ReleaseLockRequest{
		LockID: granted.LockID,
		Actor:  "alice",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Release expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	// The section is claimable again once released.
	rr = env.helper.MakeRequest("POST", "/api/sections/acquire", AcquireLockRequest{
		Section: SectionPayload{Kind: "station", Floor: 0, Station: 3},
		Actor:   "bob",
	})
	if rr.Code != http.StatusCreated {
		t.Errorf("Reacquire after release expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
}

func TestAcquireConflictReportsBlockingLock(t *testing.T) {
	env := newTestEnv(t)

	rr := env.helper.MakeRequest("POST", "/api/sections/acquire", AcquireLockRequest{
		Section: SectionPayload{Kind: "station", Floor: 0, Station: 1},
		Actor:   "alice",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	// Chunk 22000 is the center of station 1.
	rr = env.helper.MakeRequest("POST", "/api/sections/acquire", AcquireLockRequest{
		Section: SectionPayload{Kind: "chunks", Floor: 0, ChunkIndices: []int{22000}},
		Actor:   "bob",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Error        string       `json:"error"`
		BlockingLock LockResponse `json:"blocking_lock"`
	}
	if err := testutil.ParseJSONResponse(&body, rr.Body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.BlockingLock.Holder != "alice" {
		t.Errorf("Blocking lock holder = %q, expected alice", body.BlockingLock.Holder)
	}
}

func TestRenewReleaseWrongActor(t *testing.T) {
	env := newTestEnv(t)

	rr := env.helper.MakeRequest("POST", "/api/sections/acquire", AcquireLockRequest{
		Section: SectionPayload{Kind: "chunks", Floor: 2, ChunkIndices: []int{10, 11}},
		Actor:   "alice",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var granted LockResponse
	if err := testutil.ParseJSONResponse(&granted, rr.Body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	rr = env.helper.MakeRequest("POST", "/api/sections/renew", RenewLockRequest{
		LockID: granted.LockID,
		Actor:  "mallory",
	})
	if rr.Code != http.StatusForbidden {
		t.Errorf("Renew by non-holder expected status 403, got %d", rr.Code)
	}

	rr = env.helper.MakeRequest("POST", "/api/sections/release", ReleaseLockRequest{
		LockID: granted.LockID,
		Actor:  "mallory",
	})
	if rr.Code != http.StatusForbidden {
		t.Errorf("Release by non-holder expected status 403, got %d", rr.Code)
	}
}

func TestRenewUnknownLock(t *testing.T) {
	env := newTestEnv(t)

	rr := env.helper.MakeRequest("POST", "/api/sections/renew", RenewLockRequest{
		LockID: "lock_does_not_exist",
		Actor:  "alice",
	})
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d. Body: %s", rr.Code, rr.Body.String())
	}
}

func TestAcquireValidation(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name string
		body AcquireLockRequest
	}{
		{"missing actor", AcquireLockRequest{
			Section: SectionPayload{Kind: "station", Floor: 0, Station: 1},
		}},
		{"bad kind", AcquireLockRequest{
			Section: SectionPayload{Kind: "galaxy", Floor: 0},
			Actor:   "alice",
		}},
		{"ttl too long", AcquireLockRequest{
			Section:    SectionPayload{Kind: "station", Floor: 0, Station: 1},
			Actor:      "alice",
			TTLSeconds: 7200,
		}},
		{"bad floor", AcquireLockRequest{
			Section: SectionPayload{Kind: "station", Floor: 40, Station: 1},
			Actor:   "alice",
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.helper.MakeRequest("POST", "/api/sections/acquire", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
			}
		})
	}
}
