package game

// MoveResult is what a single Snake.Move reports.
type MoveResult uint8

const (
	MoveOK MoveResult = iota
	MoveSelfCollision
	MoveBoundaryCollision
)

func (r MoveResult) String() string {
	switch r {
	case MoveOK:
		return "ok"
	case MoveSelfCollision:
		return "self-collision"
	case MoveBoundaryCollision:
		return "boundary-collision"
	}
	return "unknown"
}

// Snake is the player's body, head first.
//
// Growing is a flag, not a counter: two Grow calls between moves still only
// add one segment.
type Snake struct {
	Body    []Point
	Heading Direction
	Growing bool
	Alive   bool
}

// NewSnake lays out length cells on the grid's centre row with the head at
// (W/2, H/2) and the body trailing to the left, heading Right.
func NewSnake(grid Grid, length int) *Snake {
	if length < 1 {
		length = 1
	}
	hx, hy := grid.Width/2, grid.Height/2
	body := make([]Point, 0, length+8)
	for i := 0; i < length; i++ {
		p, _ := grid.Normalize(Point{X: hx - i, Y: hy}, true)
		body = append(body, p)
	}
	return &Snake{Body: body, Heading: Right, Alive: true}
}

func (s *Snake) Head() Point { return s.Body[0] }

func (s *Snake) Tail() Point { return s.Body[len(s.Body)-1] }

func (s *Snake) Len() int { return len(s.Body) }

func (s *Snake) Occupies(p Point) bool {
	for _, b := range s.Body {
		if b == p {
			return true
		}
	}
	return false
}

// ChangeDirection turns the snake. A request for the exact opposite of the
// current heading is ignored.
func (s *Snake) ChangeDirection(d Direction) {
	if d == s.Heading.Opposite() {
		return
	}
	s.Heading = d
}

// Grow marks the snake to keep its tail on the next Move.
func (s *Snake) Grow() { s.Growing = true }

// Move advances the head by one cell.
//
// The body is left untouched on either collision. When not growing, the
// current tail cell is vacated in the same step, so the head may move onto it;
// when growing the tail stays and moving onto it is a collision.
func (s *Snake) Move(grid Grid, wrap bool) MoveResult {
	next, ok := grid.Normalize(s.Head().Add(s.Heading.Delta()), wrap)
	if !ok {
		s.Alive = false
		return MoveBoundaryCollision
	}

	check := s.Body
	if !s.Growing {
		check = s.Body[:len(s.Body)-1]
	}
	for _, b := range check {
		if b == next {
			s.Alive = false
			return MoveSelfCollision
		}
	}

	if s.Growing {
		s.Body = append(s.Body, Point{})
		s.Growing = false
	}
	copy(s.Body[1:], s.Body[:len(s.Body)-1])
	s.Body[0] = next
	return MoveOK
}
