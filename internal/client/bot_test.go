package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"speedhockey/internal/codec"
	"speedhockey/internal/hockey"
	"speedhockey/internal/netwrk"
	"speedhockey/internal/physics"
	"speedhockey/internal/vmath"
)

func TestChase(t *testing.T) {
	arena := hockey.Arena{Width: 960, Height: 540}
	cases := []struct {
		name string
		puck vmath.Vector2
		team hockey.Team
		want vmath.Vector2
	}{
		{"red behind", vmath.Vec(500, 200), hockey.TeamRed, vmath.Vec(465, 200)},
		{"blu behind", vmath.Vec(500, 200), hockey.TeamBlu, vmath.Vec(535, 200)},
		{"red at wall", vmath.Vec(10, 600), hockey.TeamRed, vmath.Vec(0, 540)},
		{"spectator", vmath.Vec(500, 200), hockey.TeamSpectator, vmath.Vec(500, 200)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Chase(tc.puck, tc.team, arena); got != tc.want {
				t.Fatalf("Chase = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBotJoinsAndPlays(t *testing.T) {
	cfg := hockey.DefaultConfig()
	cfg.TickInterval = 2 * time.Millisecond
	cfg.Seed = 9
	engine := hockey.NewEngine(cfg, physics.NewSpace(cfg.Arena.Width, cfg.Arena.Height))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = engine.Run(ctx) }()

	srv := netwrk.NewServer(ctx, engine, netwrk.Options{SendQueueSize: 16})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, c := range []codec.Codec{codec.Proto{}, codec.JSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			botCtx, stop := context.WithCancel(ctx)
			defer stop()
			bot := &Bot{
				URL:           "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
				Codec:         c,
				Team:          hockey.TeamBlu,
				InputInterval: 2 * time.Millisecond,
			}
			done := make(chan error, 1)
			go func() { done <- bot.Run(botCtx) }()

			deadline := time.Now().Add(3 * time.Second)
			for !botMoved(engine.Snapshot()) {
				if time.Now().After(deadline) {
					t.Fatalf("bot never moved: %+v", engine.Snapshot().Players)
				}
				time.Sleep(5 * time.Millisecond)
			}

			stop()
			if err := <-done; err != nil {
				t.Fatalf("run: %v", err)
			}

			deadline = time.Now().Add(3 * time.Second)
			for len(engine.Snapshot().Players) != 0 {
				if time.Now().After(deadline) {
					t.Fatalf("bot session not removed")
				}
				time.Sleep(5 * time.Millisecond)
			}
		})
	}
}

func botMoved(s hockey.MatchState) bool {
	for _, p := range s.Players {
		if p.Team == hockey.TeamBlu && p.Position != vmath.Vec(480, 270) {
			return true
		}
	}
	return false
}

type endlessFrames struct{ frame []byte }

func (r endlessFrames) ReadMessage() (int, []byte, error) {
	return 1, r.frame, nil
}

func TestReadServerStopsWhenDone(t *testing.T) {
	c := codec.JSON{}
	frame, err := c.EncodeServer(codec.ServerMessage{GameState: &hockey.MatchState{Players: map[hockey.SessionID]hockey.PlayerState{}}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// nobody drains ingress, as when Run has already returned
	ingress := make(chan codec.ServerMessage, 1)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		readServer(endlessFrames{frame}, c, ingress, readErr, done)
		close(exited)
	}()

	deadline := time.Now().Add(time.Second)
	for len(ingress) != cap(ingress) {
		if time.Now().After(deadline) {
			t.Fatalf("reader never filled ingress")
		}
		time.Sleep(time.Millisecond)
	}
	close(done)

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatalf("reader still blocked after done closed")
	}
}
