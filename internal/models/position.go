package models

// Position is the fixed six-rank job position enumeration. Values are the
// stored wire strings.
type Position string

const (
	PositionTopExecutive   Position = "代表取締役"
	PositionDirector       Position = "取締役"
	PositionDepartmentHead Position = "部長"
	PositionSectionHead    Position = "課長"
	PositionSupervisor     Position = "主任"
	PositionStaff          Position = "一般職"
)

// Positions lists every position from the highest rank down.
var Positions = []Position{
	PositionTopExecutive,
	PositionDirector,
	PositionDepartmentHead,
	PositionSectionHead,
	PositionSupervisor,
	PositionStaff,
}

// Valid reports whether p is one of the six ranks.
func (p Position) Valid() bool {
	return p.Rank() >= 0
}

// Rank returns the index of p in Positions, or -1 when unknown.
func (p Position) Rank() int {
	for i, v := range Positions {
		if v == p {
			return i
		}
	}
	return -1
}
