package engine

import (
	"errors"
	"testing"
)

// TestNewGame verifies seating, starting balances and home slots.
func TestNewGame(t *testing.T) {
	g, err := NewGame(DefaultHouseRules(), []Seat{{Color: Green}, {Color: Blue, Computer: true}})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if g.NumPlayers != 2 || g.Current != 0 || g.Phase != PhaseAwaitRoll {
		t.Errorf("NumPlayers=%d Current=%d Phase=%s", g.NumPlayers, g.Current, g.Phase)
	}
	if g.Winner != -1 || g.Pending.Rival != -1 {
		t.Errorf("Winner=%d Rival=%d, want -1", g.Winner, g.Pending.Rival)
	}
	for i := uint8(0); i < g.NumPlayers; i++ {
		p := g.Players[i]
		if p.Tokens != 3 {
			t.Errorf("player %d tokens = %d, want 3", i, p.Tokens)
		}
		for j, pw := range p.Pawns {
			if pw != AtHome(uint8(j)) {
				t.Errorf("player %d pawn %d = %+v, want AtHome(%d)", i, j, pw, j)
			}
		}
	}
	if !g.Players[1].Computer {
		t.Error("seat 1 should be computer-driven")
	}
	if seat, ok := g.SeatOf(Blue); !ok || seat != 1 {
		t.Errorf("SeatOf(blue) = %d, %v", seat, ok)
	}
	if _, ok := g.SeatOf(Red); ok {
		t.Error("red is not seated")
	}
}

func TestNewGameRejects(t *testing.T) {
	tests := []struct {
		name  string
		seats []Seat
	}{
		{"no seats", nil},
		{"five seats", []Seat{{Color: Yellow}, {Color: Blue}, {Color: Red}, {Color: Green}, {Color: Yellow}}},
		{"duplicate color", []Seat{{Color: Red}, {Color: Red}}},
		{"invalid color", []Seat{{Color: Color(9)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGame(DefaultHouseRules(), tt.seats); !errors.Is(err, ErrIllegalMove) {
				t.Errorf("err = %v, want ErrIllegalMove", err)
			}
		})
	}
}

func TestFinishedPawns(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	g.Players[0].Pawns[1] = Finished()
	g.Players[0].Pawns[3] = Finished()
	if got := g.FinishedPawns(0); got != 2 {
		t.Errorf("FinishedPawns = %d, want 2", got)
	}
	if g.HasFinished(0) {
		t.Error("HasFinished with two pawns left")
	}
}

// TestSnapshotSaveRestore verifies Save/Restore round-trips the game state.
func TestSnapshotSaveRestore(t *testing.T) {
	g := newTestGame(t, Yellow, Blue, Red)
	g.Players[1].Pawns[0] = OnCircuit(20)
	snap := g.Save()
	want := *g

	g.Current = 2
	g.Turn = 999
	g.Players[1].Pawns[0] = AtHome(0)
	g.Players[0].Tokens = -4
	g.Restore(snap)

	if *g != want {
		t.Error("Restore did not reproduce the saved state")
	}
}

// TestSnapshotIndependence verifies a Snapshot is a value copy.
func TestSnapshotIndependence(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	snap := g.Save()
	g.Players[0].Tokens = 42
	if GameState(snap).Players[0].Tokens != 3 {
		t.Error("snapshot was mutated when game state changed")
	}
}

func BenchmarkSnapshot(b *testing.B) {
	g, _ := NewGame(DefaultHouseRules(), []Seat{{Color: Yellow}, {Color: Blue}, {Color: Red}, {Color: Green}})
	snap := g.Save()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Restore(snap)
	}
}
