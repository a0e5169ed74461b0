package agent

import engine "github.com/enaribe/startup-ludo/engine"

// ProgressBucket groups pawn positions into coarse stages of the race.
type ProgressBucket uint8

const (
	BucketHome  ProgressBucket = iota // 0: in the yard
	BucketEarly                       // 1: circuit positions 0-16
	BucketMid                         // 2: circuit positions 17-33
	BucketLate                        // 3: circuit positions 34-49
	BucketFinal                       // 4: on the final path
	BucketDone                        // 5: finished
)

// PawnBucket maps a pawn to its ProgressBucket.
func PawnBucket(p engine.PawnState) ProgressBucket {
	switch {
	case p.IsHome():
		return BucketHome
	case p.IsFinal():
		return BucketFinal
	case p.IsFinished():
		return BucketDone
	case p.Pos < 17:
		return BucketEarly
	case p.Pos < 34:
		return BucketMid
	default:
		return BucketLate
	}
}

// Progress returns how many steps a pawn has covered from its yard, with
// the finish counting as the full race.
func Progress(p engine.PawnState) int {
	switch {
	case p.IsHome():
		return 0
	case p.IsCircuit():
		return int(p.Pos) + 1
	case p.IsFinal():
		return engine.CircuitLength + int(p.Pos) + 1
	default:
		return engine.CircuitLength + engine.FinalPathLength
	}
}

// Policy selects how a computer seat picks among legal moves.
type Policy uint8

const (
	PolicyFirstLegal Policy = iota // 0: lowest legal pawn index
	PolicyGreedy                   // 1: score captures, finishes and progress
)

// ParsePolicy maps a configuration name to a Policy. Unknown names fall back
// to PolicyFirstLegal.
func ParsePolicy(s string) Policy {
	if s == "greedy" {
		return PolicyGreedy
	}
	return PolicyFirstLegal
}

func (p Policy) String() string {
	if p == PolicyGreedy {
		return "greedy"
	}
	return "first_legal"
}
