package inference

import (
	"sync"

	"github.com/brensch/snekgrid/game"
)

// Channel layout, [Channels, Height, Width]:
// 0 head
// 1 body TTL, head 1.0 down to 1/len at the tail
// 2 food, scaled by points/20
// 3 deadly obstacles
// 4 mud
// 5 wrap plane, all ones when the board wraps
const Channels = 6

// PolicySize is one logit per direction in game.Directions order.
const PolicySize = 4

var floatPools sync.Map // size -> *sync.Pool

func floatPool(size int) *sync.Pool {
	if p, ok := floatPools.Load(size); ok {
		return p.(*sync.Pool)
	}
	p, _ := floatPools.LoadOrStore(size, &sync.Pool{
		New: func() any {
			b := make([]float32, size)
			return &b
		},
	})
	return p.(*sync.Pool)
}

func getFloatBuffer(size int) *[]float32 { return floatPool(size).Get().(*[]float32) }

func putFloatBuffer(b *[]float32) { floatPool(len(*b)).Put(b) }

// EncodeSnapshot encodes s into a new [Channels*h*w] slice. Cells outside
// w×h are dropped, so a model trained on one board size can still be fed
// a larger board.
func EncodeSnapshot(s *game.Snapshot, w, h int) []float32 {
	data := make([]float32, Channels*w*h)
	encodeInto(data, s, w, h)
	return data
}

func encodeInto(data []float32, s *game.Snapshot, w, h int) {
	clear(data)

	set := func(c int, p game.Point, val float32) {
		if p.X < 0 || p.X >= w || p.Y < 0 || p.Y >= h {
			return
		}
		data[c*h*w+p.Y*w+p.X] = val
	}

	if l := len(s.Snake); l > 0 {
		set(0, s.Snake[0], 1)
		denom := float32(l)
		for i, p := range s.Snake {
			set(1, p, float32(l-i)/denom)
		}
	}

	if s.Food.Pos.X >= 0 {
		set(2, s.Food.Pos, float32(s.Food.Kind.Points())/20)
	}

	for _, o := range s.Obstacles {
		if o.Deadly {
			set(3, o.Pos, 1)
		} else {
			set(4, o.Pos, 1)
		}
	}

	if s.Wrap {
		plane := data[5*h*w : 6*h*w]
		for i := range plane {
			plane[i] = 1
		}
	}
}
