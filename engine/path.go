package engine

// Coordinate is a (row, column) cell on the 15×15 board.
type Coordinate struct {
	Row int8
	Col int8
}

// circuitCells is the shared loop in travel order. Ring index 0 is yellow's
// entry cell.
var circuitCells = [CircuitLength]Coordinate{
	{6, 1}, {6, 2}, {6, 3}, {6, 4}, {6, 5}, // 0–4
	{5, 6}, {4, 6}, {3, 6}, {2, 6}, {1, 6}, {0, 6}, // 5–10
	{0, 7}, {0, 8}, // 11–12
	{1, 8}, {2, 8}, {3, 8}, {4, 8}, {5, 8}, // 13–17 (blue entry at 13)
	{6, 9}, {6, 10}, {6, 11}, {6, 12}, {6, 13}, {6, 14}, // 18–23
	{7, 14}, {8, 14}, // 24–25
	{8, 13}, {8, 12}, {8, 11}, {8, 10}, {8, 9}, // 26–30 (red entry at 26)
	{9, 8}, {10, 8}, {11, 8}, {12, 8}, {13, 8}, {14, 8}, // 31–36
	{14, 7}, {14, 6}, // 37–38
	{13, 6}, {12, 6}, {11, 6}, {10, 6}, {9, 6}, // 39–43 (green entry at 39)
	{8, 5}, {8, 4}, {8, 3}, {8, 2}, {8, 1}, {8, 0}, // 44–49
}

// entryOffsets is the ring index of each color's circuit position 0.
var entryOffsets = [NumColors]uint8{
	Yellow: 0,
	Blue:   13,
	Red:    26,
	Green:  39,
}

// boardCenter is the last final-path cell, shared visually by every color.
var boardCenter = Coordinate{7, 7}

var finalPathCells = [NumColors][FinalPathLength]Coordinate{
	Yellow: {{7, 1}, {7, 2}, {7, 3}, {7, 4}, {7, 5}, boardCenter},
	Blue:   {{1, 7}, {2, 7}, {3, 7}, {4, 7}, {5, 7}, boardCenter},
	Red:    {{7, 13}, {7, 12}, {7, 11}, {7, 10}, {7, 9}, boardCenter},
	Green:  {{13, 7}, {12, 7}, {11, 7}, {10, 7}, {9, 7}, boardCenter},
}

var yardCells = [NumColors][PawnsPerPlayer]Coordinate{
	Yellow: {{2, 2}, {2, 3}, {3, 2}, {3, 3}},
	Blue:   {{2, 11}, {2, 12}, {3, 11}, {3, 12}},
	Red:    {{11, 11}, {11, 12}, {12, 11}, {12, 12}},
	Green:  {{11, 2}, {11, 3}, {12, 2}, {12, 3}},
}

// EntryOffset returns the ring index where color enters the circuit.
func EntryOffset(c Color) uint8 { return entryOffsets[c] }

// RingIndex converts a color-relative circuit position to its ring index.
func RingIndex(c Color, p uint8) uint8 {
	return uint8((int(entryOffsets[c]) + int(p)) % CircuitLength)
}

// CircuitCoordinate returns the board cell of color-relative circuit position p.
func CircuitCoordinate(c Color, p uint8) Coordinate {
	return circuitCells[RingIndex(c, p)]
}

// FinalPathCoordinate returns the board cell of final path index p for color c.
func FinalPathCoordinate(c Color, p uint8) Coordinate {
	return finalPathCells[c][p%FinalPathLength]
}

// CoordinateOf maps any pawn state of color c to its board cell. Positions
// originate from the movement engine, so the function is total.
func CoordinateOf(c Color, p PawnState) Coordinate {
	switch p.Kind {
	case PawnOnCircuit:
		return CircuitCoordinate(c, p.Pos)
	case PawnOnFinalPath:
		return FinalPathCoordinate(c, p.Pos)
	case PawnFinished:
		return boardCenter
	default:
		return yardCells[c][p.Pos%PawnsPerPlayer]
	}
}

// RingCoordinate returns the board cell at ring index i.
func RingCoordinate(i uint8) Coordinate { return circuitCells[i%CircuitLength] }
