package engine

// Board geometry and seat limits.
const (
	MaxPlayers      = 4
	PawnsPerPlayer  = 4
	CircuitLength   = 50 // shared loop cells, also the final-path entry threshold
	FinalPathLength = 6
	FinishIndex     = FinalPathLength - 1
	BoardSize       = 15
	DieFaces        = 6
)

// Color identifies a seat on the board. The numeric order is also the
// default turn order.
type Color uint8

const (
	Yellow Color = iota
	Blue
	Red
	Green
)

// NumColors is the number of distinct seat colors.
const NumColors = 4

var colorNames = [NumColors]string{"yellow", "blue", "red", "green"}

func (c Color) String() string {
	if int(c) < NumColors {
		return colorNames[c]
	}
	return "unknown"
}

// Valid reports whether c is one of the four board colors.
func (c Color) Valid() bool { return int(c) < NumColors }

// ParseColor maps a color name back to its Color.
func ParseColor(s string) (Color, bool) {
	for i, name := range colorNames {
		if name == s {
			return Color(i), true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Pawns
// ---------------------------------------------------------------------------

// PawnKind is the tag of the PawnState variant.
type PawnKind uint8

const (
	PawnAtHome      PawnKind = iota // Pos = yard slot
	PawnOnCircuit                   // Pos = color-relative circuit position [0,49]
	PawnOnFinalPath                 // Pos = final path index [0,5)
	PawnFinished                    // terminal
)

// PawnState is a tagged value; Pos is interpreted according to Kind.
type PawnState struct {
	Kind PawnKind
	Pos  uint8
}

// AtHome returns a pawn resting in yard slot slot.
func AtHome(slot uint8) PawnState { return PawnState{Kind: PawnAtHome, Pos: slot} }

// OnCircuit returns a pawn on the shared loop at color-relative position p.
func OnCircuit(p uint8) PawnState { return PawnState{Kind: PawnOnCircuit, Pos: p} }

// OnFinalPath returns a pawn on its private stretch at index p.
func OnFinalPath(p uint8) PawnState { return PawnState{Kind: PawnOnFinalPath, Pos: p} }

// Finished returns a pawn that reached the last final-path cell.
func Finished() PawnState { return PawnState{Kind: PawnFinished} }

func (p PawnState) IsHome() bool     { return p.Kind == PawnAtHome }
func (p PawnState) IsCircuit() bool  { return p.Kind == PawnOnCircuit }
func (p PawnState) IsFinal() bool    { return p.Kind == PawnOnFinalPath }
func (p PawnState) IsFinished() bool { return p.Kind == PawnFinished }

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// EventCategory classifies what happens when a pawn lands on a circuit cell.
type EventCategory uint8

const (
	EventNone EventCategory = iota
	EventQuiz
	EventFunding
	EventDuel
	EventOpportunity
	EventChallenge
)

var categoryNames = [...]string{"none", "quiz", "funding", "duel", "opportunity", "challenge"}

func (c EventCategory) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// ParseCategory maps a category name back to its EventCategory.
func ParseCategory(s string) (EventCategory, bool) {
	for i, name := range categoryNames {
		if name == s {
			return EventCategory(i), true
		}
	}
	return EventNone, false
}

// EventStatus tracks a pending event between detection and resolution.
type EventStatus uint8

const (
	EventIdle             EventStatus = iota
	EventAwaitingResponse             // quiz answer or duel votes outstanding
	EventAutoResolved                 // outcome decided by the acting peer without input
	EventVotesComplete                // duel: every seated voter has voted
)

// EventEffect is an optional turn-flow side effect attached to event content.
type EventEffect uint8

const (
	EffectNone      EventEffect = iota
	EffectExtraTurn             // the triggering player rolls again
	EffectSkipNext              // the triggering player loses their next turn
)

// Vote is a duel voter's ballot.
type Vote uint8

const (
	VoteNone Vote = iota
	VoteAccept
	VoteRefuse
)

// ---------------------------------------------------------------------------
// Turn phases
// ---------------------------------------------------------------------------

// Phase is the turn state machine position.
type Phase uint8

const (
	PhaseAwaitRoll  Phase = iota // current player must roll
	PhaseAwaitMove               // dice known, a pawn must be chosen (or the turn skipped)
	PhaseAwaitEvent              // a landed-cell event is open
	PhaseTurnEnd                 // move resolved, waiting for the turn to advance
	PhaseFinished                // session over
)

var phaseNames = [...]string{"await_roll", "await_move", "await_event", "turn_end", "finished"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}
