package envlink

import (
	"fmt"
	"testing"

	"github.com/atelier-rl/paintpool/core"
	"github.com/atelier-rl/paintpool/paintenv"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer("127.0.0.1:0", func(id int) core.Environment {
		cfg := paintenv.DefaultConfig()
		cfg.GridWidth = 8
		cfg.EpisodeLength = 4
		return paintenv.New(cfg)
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	srv.Start()
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestClientServerRoundTrip(t *testing.T) {
	srv := startTestServer(t)

	client, err := Dial(fmt.Sprintf("ws://%s/env/0", srv.Addr()))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	out, err := client.Reset()
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if len(out.Frame) != 8*8 {
		t.Fatalf("reset frame has %d values, want %d", len(out.Frame), 8*8)
	}
	if out.Done || out.EpisodeStep != 0 {
		t.Errorf("reset output = done %v step %d, want a fresh episode", out.Done, out.EpisodeStep)
	}

	// Paint the top-left cell at full intensity and read it back.
	out, err = client.Step([]int{0, 0, 7})
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if out.Frame[0] != 1 {
		t.Errorf("painted cell reads %f after the round trip, want 1", out.Frame[0])
	}
	if out.EpisodeStep != 1 {
		t.Errorf("episode step = %d, want 1", out.EpisodeStep)
	}
}

func TestClientStepsAcrossEpisodeBoundary(t *testing.T) {
	srv := startTestServer(t)

	client, err := Dial(fmt.Sprintf("ws://%s/env/1", srv.Addr()))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	if _, err := client.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	var out core.EnvOutput
	for i := 0; i < 4; i++ {
		out, err = client.Step([]int{0, 0, 7})
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
	}
	if !out.Done {
		t.Fatal("episode did not end at the configured length")
	}

	// The link keeps working past the boundary without an explicit reset.
	out, err = client.Step([]int{0, 0, 7})
	if err != nil {
		t.Fatalf("Step after episode end failed: %v", err)
	}
	if out.Done || out.EpisodeStep != 1 {
		t.Errorf("post-episode step = done %v step %d, want a fresh episode", out.Done, out.EpisodeStep)
	}
}

func TestServerIsolatesConnections(t *testing.T) {
	srv := startTestServer(t)

	a, err := Dial(fmt.Sprintf("ws://%s/env/0", srv.Addr()))
	if err != nil {
		t.Fatalf("Dial a failed: %v", err)
	}
	defer a.Close()
	b, err := Dial(fmt.Sprintf("ws://%s/env/1", srv.Addr()))
	if err != nil {
		t.Fatalf("Dial b failed: %v", err)
	}
	defer b.Close()

	if _, err := a.Reset(); err != nil {
		t.Fatalf("Reset a failed: %v", err)
	}
	if _, err := b.Reset(); err != nil {
		t.Fatalf("Reset b failed: %v", err)
	}

	if _, err := a.Step([]int{0, 0, 7}); err != nil {
		t.Fatalf("Step a failed: %v", err)
	}
	out, err := b.Step([]int{1, 0, 0})
	if err != nil {
		t.Fatalf("Step b failed: %v", err)
	}
	if out.Frame[0] != 0 {
		t.Errorf("connection b sees connection a's stroke; environments must not be shared")
	}
}

func TestServerRejectsBadEnvironmentID(t *testing.T) {
	srv := startTestServer(t)

	if _, err := Dial(fmt.Sprintf("ws://%s/env/zero", srv.Addr())); err == nil {
		t.Error("dialing a non-numeric environment id succeeded")
	}
}
