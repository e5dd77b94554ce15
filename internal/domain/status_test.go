package domain

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to GameStatus
		ok       bool
	}{
		{StatusDraft, StatusLobby, true},
		{StatusDraft, StatusInProgress, false},
		{StatusLobby, StatusInProgress, true},
		{StatusLobby, StatusDraft, true},
		{StatusLobby, StatusFinished, false},
		{StatusInProgress, StatusFinished, true},
		{StatusInProgress, StatusLobby, false},
		{StatusFinished, StatusLobby, true},
		{StatusFinished, StatusDraft, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", c.from, c.to, c.ok, got)
		}
	}
}

func TestJoinErrorByStatus(t *testing.T) {
	if err := StatusLobby.JoinError(); err != nil {
		t.Fatalf("lobby should be joinable, got %v", err)
	}
	if StatusDraft.JoinError() != ErrGameInDraft {
		t.Fatalf("expected draft error")
	}
	if StatusInProgress.JoinError() != ErrGameStarted {
		t.Fatalf("expected started error")
	}
	if StatusFinished.JoinError() != ErrGameFinished {
		t.Fatalf("expected finished error")
	}
}
