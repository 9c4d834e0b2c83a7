package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/kiliankoe/pokerdash/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.CreateSession(context.Background(), storage.Session{ID: "s1", Name: "Sprint 7", DeckType: "fibonacci", Status: "waiting"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("a = ? AND b IN (?, ?)"); got != "a = $1 AND b IN ($2, $3)" {
		t.Fatalf("unexpected rebind: %s", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite query should be unchanged: %s", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := Open(context.Background(), DriverSQLite, " "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Name != "Sprint 7" || sess.DeckType != "fibonacci" || sess.Status != "waiting" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.CreatedAt.IsZero() {
		t.Fatal("created_at should be set")
	}
	if err := s.CreateSession(ctx, storage.Session{ID: "s1", Status: "waiting"}); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddParticipantIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, created, err := s.AddParticipant(ctx, storage.Participant{ID: "p1", SessionID: "s1", Nickname: "Alice", ExternalID: "ext-1"})
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}
	again, created, err := s.AddParticipant(ctx, storage.Participant{ID: "p2", SessionID: "s1", Nickname: "Other", ExternalID: "ext-1"})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if created || again.ID != first.ID || again.Nickname != "Alice" {
		t.Fatalf("expected existing participant, got %+v created=%v", again, created)
	}
	if _, _, err := s.AddParticipant(ctx, storage.Participant{ID: "p3", SessionID: "nope", Nickname: "Bob", ExternalID: "ext-2"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}

	list, err := s.ListParticipants(ctx, "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(list))
	}
	got, err := s.GetParticipantByExternalID(ctx, "s1", "ext-1")
	if err != nil || got.ID != "p1" {
		t.Fatalf("lookup by external id: %+v %v", got, err)
	}
	if _, err := s.GetParticipantByExternalID(ctx, "s1", "ext-x"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertVoteAndReset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.AddParticipant(ctx, storage.Participant{ID: "p1", SessionID: "s1", Nickname: "Alice", ExternalID: "a"})
	s.AddParticipant(ctx, storage.Participant{ID: "p2", SessionID: "s1", Nickname: "Bob", ExternalID: "b"})

	v1, err := s.UpsertVote(ctx, storage.Vote{ID: "v1", SessionID: "s1", ParticipantID: "p1", Value: "3"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	v1b, err := s.UpsertVote(ctx, storage.Vote{ID: "v1-replacement", SessionID: "s1", ParticipantID: "p1", Value: "8"})
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if v1b.ID != v1.ID || v1b.Value != "8" {
		t.Fatalf("expected same vote id with new value, got %+v", v1b)
	}
	if _, err := s.UpsertVote(ctx, storage.Vote{ID: "v2", SessionID: "s1", ParticipantID: "p2", Value: ""}); err != nil {
		t.Fatalf("upsert empty: %v", err)
	}

	votes, err := s.ListVotes(ctx, "s1")
	if err != nil || len(votes) != 2 {
		t.Fatalf("expected 2 votes, got %d (%v)", len(votes), err)
	}
	n, err := s.CountVotes(ctx, "s1")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 non-empty vote, got %d (%v)", n, err)
	}

	if err := s.ResetRound(ctx, "s1", "waiting"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	votes, _ = s.ListVotes(ctx, "s1")
	if len(votes) != 0 {
		t.Fatalf("expected votes cleared, got %d", len(votes))
	}
	if err := s.ResetRound(ctx, "missing", "waiting"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertVoteUnknownParticipant(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.CreateSession(ctx, storage.Session{ID: "s2", Status: "waiting"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, _, err := s.AddParticipant(ctx, storage.Participant{ID: "elsewhere", SessionID: "s2", Nickname: "Eve", ExternalID: "e"}); err != nil {
		t.Fatalf("add participant: %v", err)
	}

	for _, pid := range []string{"ghost", "elsewhere"} {
		_, err := s.UpsertVote(ctx, storage.Vote{ID: "v-" + pid, SessionID: "s1", ParticipantID: pid, Value: "3"})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound from foreign key, got %v", pid, err)
		}
	}
}

func TestTransitionStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	changed, err := s.TransitionStatus(ctx, "s1", []string{"voting"}, "revealed")
	if err != nil || changed {
		t.Fatalf("expected no change, got changed=%v err=%v", changed, err)
	}
	changed, err = s.TransitionStatus(ctx, "s1", []string{"waiting"}, "voting")
	if err != nil || !changed {
		t.Fatalf("expected change, got changed=%v err=%v", changed, err)
	}
	sess, _ := s.GetSession(ctx, "s1")
	if sess.Status != "voting" {
		t.Fatalf("expected voting, got %s", sess.Status)
	}
	if _, err := s.TransitionStatus(ctx, "missing", []string{"waiting"}, "voting"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
