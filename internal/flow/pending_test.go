package flow

import (
	"errors"
	"testing"
	"time"

	pkgoauth "credbroker/pkg/oauth"
)

func newTestPending(state, principal, correlation string) *Pending {
	return &Pending{
		ID:            "flow-" + state,
		State:         state,
		Principal:     principal,
		CorrelationID: correlation,
		Scopes:        []string{"calendar.read"},
		CreatedAt:     time.Now(),
	}
}

func TestPendingStore_ConsumeRemovesRecord(t *testing.T) {
	ps := NewPendingStore()
	defer ps.Stop()

	if err := ps.Add(newTestPending("state-1", "alice", "conv-1")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	p, err := ps.Consume("state-1")
	if err != nil {
		t.Fatalf("first consume should succeed: %v", err)
	}
	if p.Principal != "alice" {
		t.Errorf("expected principal alice, got %q", p.Principal)
	}

	// Second consume must fail: the state is single-use.
	if _, err := ps.Consume("state-1"); !errors.Is(err, pkgoauth.ErrUnknownState) {
		t.Errorf("expected ErrUnknownState on second consume, got %v", err)
	}
}

func TestPendingStore_ConsumeUnknownState(t *testing.T) {
	ps := NewPendingStore()
	defer ps.Stop()

	if _, err := ps.Consume("never-registered"); !errors.Is(err, pkgoauth.ErrUnknownState) {
		t.Errorf("expected ErrUnknownState, got %v", err)
	}
}

func TestPendingStore_ConsumeExpired(t *testing.T) {
	ps := NewPendingStore()
	defer ps.Stop()

	p := newTestPending("state-old", "alice", "conv-1")
	p.CreatedAt = time.Now().Add(-DefaultPendingTTL - time.Minute)
	if err := ps.Add(p); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if _, err := ps.Consume("state-old"); !errors.Is(err, pkgoauth.ErrExpiredState) {
		t.Errorf("expected ErrExpiredState, got %v", err)
	}

	// The record is consumed even on failure.
	if _, err := ps.Consume("state-old"); !errors.Is(err, pkgoauth.ErrUnknownState) {
		t.Errorf("expected ErrUnknownState after expired consume, got %v", err)
	}
}

func TestPendingStore_AddRejectsStateCollision(t *testing.T) {
	ps := NewPendingStore()
	defer ps.Stop()

	if err := ps.Add(newTestPending("same-state", "alice", "conv-1")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	err := ps.Add(newTestPending("same-state", "bob", "conv-2"))
	if !errors.Is(err, ErrStateCollision) {
		t.Errorf("expected ErrStateCollision, got %v", err)
	}
}

func TestPendingStore_ReplacesFlowForSameOwner(t *testing.T) {
	ps := NewPendingStore()
	defer ps.Stop()

	if err := ps.Add(newTestPending("state-a", "alice", "conv-1")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := ps.Add(newTestPending("state-b", "alice", "conv-1")); err != nil {
		t.Fatalf("second Add failed: %v", err)
	}

	// The first flow was superseded; only the newest state resolves.
	if _, err := ps.Consume("state-a"); !errors.Is(err, pkgoauth.ErrUnknownState) {
		t.Errorf("expected superseded state to be gone, got %v", err)
	}
	if _, err := ps.Consume("state-b"); err != nil {
		t.Errorf("newest state should consume: %v", err)
	}
}

func TestPendingStore_Cleanup(t *testing.T) {
	ps := NewPendingStoreWithTTL(time.Minute)
	defer ps.Stop()

	fresh := newTestPending("state-fresh", "alice", "conv-1")
	stale := newTestPending("state-stale", "bob", "conv-2")
	stale.CreatedAt = time.Now().Add(-2 * time.Minute)

	if err := ps.Add(fresh); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := ps.Add(stale); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ps.cleanup()

	if ps.Len() != 1 {
		t.Errorf("expected 1 record after cleanup, got %d", ps.Len())
	}
	if _, err := ps.Consume("state-fresh"); err != nil {
		t.Errorf("fresh record should survive cleanup: %v", err)
	}
}

func TestInitiator_Start(t *testing.T) {
	ps := NewPendingStore()
	defer ps.Stop()

	provider := Provider{
		AuthorizationEndpoint: "https://auth.example.com/authorize",
		TokenEndpoint:         "https://auth.example.com/token",
		ClientID:              "client-id",
		ClientSecret:          "client-secret",
		RedirectURI:           "http://localhost:8488/oauth/callback",
	}
	initiator := NewInitiator(ps, provider)

	initiation, err := initiator.Start("alice", "conv-1", []string{"calendar.read"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if initiation.State == "" {
		t.Fatal("expected non-empty state")
	}
	if initiation.AuthorizationURL == "" {
		t.Fatal("expected non-empty authorization URL")
	}

	p, err := ps.Consume(initiation.State)
	if err != nil {
		t.Fatalf("registered state should consume: %v", err)
	}
	if p.Principal != "alice" || p.CorrelationID != "conv-1" {
		t.Errorf("pending carries wrong owner: %+v", p)
	}
	if p.TokenEndpoint != provider.TokenEndpoint {
		t.Errorf("pending should capture the token endpoint, got %q", p.TokenEndpoint)
	}
	if p.CredentialKey == "" {
		t.Error("pending should capture the credential key")
	}
	if p.ID == "" {
		t.Error("pending should have a record ID")
	}
}

func TestInitiator_StartDistinctStates(t *testing.T) {
	ps := NewPendingStore()
	defer ps.Stop()

	initiator := NewInitiator(ps, Provider{
		AuthorizationEndpoint: "https://auth.example.com/authorize",
	})

	first, err := initiator.Start("alice", "conv-1", []string{"s"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	second, err := initiator.Start("bob", "conv-2", []string{"s"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if first.State == second.State {
		t.Error("two flows must never share a state token")
	}
}
