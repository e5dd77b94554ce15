package app_test

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"karoot/internal/app"
	"karoot/internal/domain"
	"karoot/internal/infra/memory"
)

func TestLiveQuestionLookup(t *testing.T) {
	cases := []struct {
		name       string
		status     domain.GameStatus
		index      int
		orders     []int
		hostScreen string
		playScreen string
		wantText   string
		wantLog    string
	}{
		{
			name:       "order match",
			status:     domain.StatusInProgress,
			index:      1,
			orders:     []int{1, 2},
			hostScreen: app.ScreenQuestion,
			playScreen: app.ScreenQuestion,
			wantText:   "question 2",
		},
		{
			name:       "order gap served by creation position",
			status:     domain.StatusInProgress,
			index:      1,
			orders:     []int{1, 3},
			hostScreen: app.ScreenQuestion,
			playScreen: app.ScreenQuestion,
			wantText:   "question 2",
			wantLog:    "using storage position: game=%s index=1",
		},
		{
			name:       "both lookups fail",
			status:     domain.StatusInProgress,
			index:      -1,
			orders:     []int{1},
			hostScreen: app.ScreenWaiting,
			playScreen: app.ScreenWaiting,
			wantLog:    "failed by order and position: game=%s index=-1",
		},
		{
			name:       "index past the last question",
			status:     domain.StatusInProgress,
			index:      3,
			orders:     []int{1},
			hostScreen: app.ScreenError,
			playScreen: app.ScreenError,
			wantLog:    "past the last question: game=%s index=3",
		},
		{
			name:       "finished without questions",
			status:     domain.StatusFinished,
			hostScreen: app.ScreenError,
			playScreen: app.ScreenResults,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewStore()
			service := app.NewGameService(store, memory.NewQuestionCache(store, time.Minute), nil, app.Options{})
			game, player := seedGame(t, store, tc.status, tc.index, tc.orders)

			logs := captureLog(t)
			hostView, err := service.HostView(ctx, host, game.ID)
			if err != nil {
				t.Fatalf("host view failed: %v", err)
			}
			playerView, err := service.PlayerView(ctx, game.ID, player.ID)
			if err != nil {
				t.Fatalf("player view failed: %v", err)
			}

			if hostView.Screen != tc.hostScreen {
				t.Fatalf("expected host screen %s, got %s", tc.hostScreen, hostView.Screen)
			}
			if playerView.Screen != tc.playScreen {
				t.Fatalf("expected player screen %s, got %s", tc.playScreen, playerView.Screen)
			}
			if tc.hostScreen == app.ScreenError && hostView.Error == "" {
				t.Fatalf("expected host error message")
			}
			if tc.playScreen == app.ScreenError && playerView.Error == "" {
				t.Fatalf("expected player error message")
			}
			if tc.wantText != "" {
				if hostView.Question == nil || hostView.Question.Text != tc.wantText {
					t.Fatalf("expected host to show %q, got %+v", tc.wantText, hostView.Question)
				}
				if playerView.Question == nil || playerView.Question.Text != tc.wantText {
					t.Fatalf("expected player to show %q, got %+v", tc.wantText, playerView.Question)
				}
			}
			if tc.wantLog != "" {
				want := fmt.Sprintf(tc.wantLog, game.ID)
				if !strings.Contains(logs.String(), want) {
					t.Fatalf("expected log containing %q, got %q", want, logs.String())
				}
			}
		})
	}
}

// seedGame writes a game straight into the store so views can be checked
// against states the service itself would not produce.
func seedGame(t *testing.T, store *memory.Store, status domain.GameStatus, index int, orders []int) (domain.Game, domain.Participant) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	game := domain.Game{
		ID:                   uuid.NewString(),
		Title:                "Seeded Quiz",
		HostID:               host,
		Code:                 "4321",
		Status:               status,
		CurrentQuestionIndex: index,
		Round:                1,
		CreatedAt:            base,
		UpdatedAt:            base,
	}
	if err := store.CreateGame(ctx, game); err != nil {
		t.Fatalf("seed game: %v", err)
	}
	for i, order := range orders {
		at := base.Add(time.Duration(i) * time.Second)
		q := domain.Question{
			ID:        uuid.NewString(),
			GameID:    game.ID,
			Text:      fmt.Sprintf("question %d", i+1),
			Order:     order,
			Points:    1,
			CreatedAt: at,
			UpdatedAt: at,
		}
		for pos, text := range []string{"Orange", "Blue", "Green", "Purple"} {
			q.Options = append(q.Options, domain.Option{
				ID: uuid.NewString(), QuestionID: q.ID, Text: text,
				IsCorrect: pos == 0, Position: pos, CreatedAt: at, UpdatedAt: at,
			})
		}
		if err := store.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("seed question: %v", err)
		}
	}
	player := domain.Participant{ID: uuid.NewString(), GameID: game.ID, Round: 1, Name: "Alice", CreatedAt: base}
	if err := store.AddParticipant(ctx, player); err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	return game, player
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}
