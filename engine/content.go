package engine

import "fmt"

// Content is one drawable event card. Reward and Penalty are optional
// explicit magnitudes; when both are nil the weighted tables decide.
type Content struct {
	ID       string
	Category EventCategory
	Title    string
	Prompt   string
	Options  []string // quiz only
	Answer   int      // quiz only, index into Options
	Reward   *int16
	Penalty  *int16
	Effect   EventEffect
	Generic  bool // templated fallback, not drawn from a themed pool
}

// IsCorrect evaluates a quiz answer against the answer key.
func (c Content) IsCorrect(option int) bool {
	return option >= 0 && option < len(c.Options) && option == c.Answer
}

// ContentProvider supplies the themed pool for a category. An empty result
// is valid and degrades to generic content.
type ContentProvider interface {
	Content(cat EventCategory) []Content
}

// GenericContent is the templated entry used when no themed content exists.
func GenericContent(cat EventCategory) Content {
	c := Content{
		ID:       "generic-" + cat.String(),
		Category: cat,
		Generic:  true,
	}
	switch cat {
	case EventQuiz:
		c.Title = "Pop quiz"
		c.Prompt = "What does a startup need most before scaling?"
		c.Options = []string{"Product-market fit", "A bigger office", "More logos"}
		c.Answer = 0
	case EventFunding:
		c.Title = "Funding round"
		c.Prompt = "An investor looks at your pitch deck."
	case EventDuel:
		c.Title = "Pitch duel"
		c.Prompt = "Two founders pitch head to head; the jury decides."
	case EventOpportunity:
		c.Title = "Opportunity"
		c.Prompt = "A market window opens."
	case EventChallenge:
		c.Title = "Challenge"
		c.Prompt = "A setback forces you to step back."
	default:
		c.Title = "Nothing happens"
	}
	return c
}

// DrawContent samples one entry uniformly from the provider's pool. It never
// fails: a nil provider or an empty pool yields GenericContent together with
// ErrContentUnavailable so the caller can note the fallback.
func DrawContent(p ContentProvider, cat EventCategory, rng *RNG) (Content, error) {
	var pool []Content
	if p != nil {
		pool = p.Content(cat)
	}
	if len(pool) == 0 {
		return GenericContent(cat), fmt.Errorf("%w: %s", ErrContentUnavailable, cat)
	}
	c := pool[rng.Intn(len(pool))]
	c.Category = cat
	return c, nil
}

// Fallback outcome tables, used when content carries no explicit magnitude.
var (
	fundingTable     = []weighted{{+1, 3}, {+2, 4}, {+3, 2}, {-1, 1}}
	opportunityTable = []weighted{{+1, 3}, {+2, 3}, {-1, 2}}
	challengeTable   = []weighted{{-1, 4}, {-2, 3}, {+1, 1}}
	quizTable        = []weighted{{1, 3}, {2, 2}, {3, 1}}
	duelTable        = []weighted{{1, 1}, {2, 1}}
	// a duel nobody can judge plays out alone and may go either way
	soloDuelTable    = []weighted{{+1, 3}, {+2, 2}, {-1, 2}, {-2, 1}}
)

// DecideOutcome picks the success flag and magnitude for content drawn by the
// acting peer. For quizzes the flag is meaningless until answered; for duels
// the ballots decide the sign.
func DecideOutcome(c Content, rng *RNG) (success bool, magnitude uint8) {
	switch {
	case c.Reward != nil:
		return signedOutcome(*c.Reward)
	case c.Penalty != nil:
		return signedOutcome(-*c.Penalty)
	}
	switch c.Category {
	case EventQuiz:
		return true, uint8(rng.pick(quizTable))
	case EventDuel:
		return true, uint8(rng.pick(duelTable))
	case EventFunding:
		return signedOutcome(int16(rng.pick(fundingTable)))
	case EventOpportunity:
		return signedOutcome(int16(rng.pick(opportunityTable)))
	case EventChallenge:
		return signedOutcome(int16(rng.pick(challengeTable)))
	}
	return true, 0
}

// DecideEventOutcome is DecideOutcome for the open event ev. A duel that
// degraded to an auto-resolved event has no ballots to sign it, so its
// fallback outcome is drawn signed like funding or challenge.
func DecideEventOutcome(ev PendingEvent, c Content, rng *RNG) (success bool, magnitude uint8) {
	if ev.Category == EventDuel && ev.Status == EventAutoResolved && c.Reward == nil && c.Penalty == nil {
		return signedOutcome(int16(rng.pick(soloDuelTable)))
	}
	return DecideOutcome(c, rng)
}

func signedOutcome(delta int16) (bool, uint8) {
	if delta < 0 {
		return false, uint8(-delta)
	}
	return true, uint8(delta)
}

// EventAction builds the e action closing the current event.
func EventAction(actor uint8, success bool, magnitude uint8, effect EventEffect) Action {
	return Action{Kind: ActEvent, Actor: actor, Flag: success, Value: magnitude, Effect: effect}
}

// QuizAction evaluates a quiz answer and builds the e action for it. The
// magnitude is the one decided when the content was drawn.
func QuizAction(actor uint8, c Content, option int, magnitude uint8) Action {
	return EventAction(actor, c.IsCorrect(option), magnitude, c.Effect)
}
