package engine

// HouseRules holds configurable game rule settings.
type HouseRules struct {
	TokenGate        int16 // tokens required to enter and progress on the final path
	StartingTokens   int16
	ClampTokens      bool  // if true, token balances never drop below zero
	ChallengeRetreat uint8 // cells a challenge pushes the triggering pawn back
}

// DefaultHouseRules returns the standard table rules.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		TokenGate:        7,
		StartingTokens:   3,
		ClampTokens:      true,
		ChallengeRetreat: 2,
	}
}

// gate returns the effective token gate, treating 0 as the default of 7.
func (r *HouseRules) gate() int16 {
	if r.TokenGate == 0 {
		return 7
	}
	return r.TokenGate
}
