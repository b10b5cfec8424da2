package engine

import "math"

// entity is one simulated object.
type entity struct {
	x, y   float64
	vx, vy float64
}

// drawItem is what the renderer needs from one visible entity.
type drawItem struct {
	entity int
	x, y   float64
}

// frameData is one of the two buffers the loop alternates between, so that
// Render of frame N can run while frame N+1 is simulated and gathered.
type frameData struct {
	frame int
	items []drawItem

	// visible is written by the gather jobs, one slot per entity.
	visible []bool
}

type world struct {
	entities []entity
	width    float64
	height   float64
}

func newWorld(n int) *world {
	w := &world{
		entities: make([]entity, n),
		width:    1000,
		height:   1000,
	}
	for i := range w.entities {
		angle := float64(i) * 0.61803398875 * 2 * math.Pi
		w.entities[i] = entity{
			x:  float64(i%100) * 10,
			y:  float64(i/100%100) * 10,
			vx: math.Cos(angle) * 5,
			vy: math.Sin(angle) * 5,
		}
	}
	return w
}

// step advances entities [from, to) by dt and bounces them off the borders.
func (w *world) step(from, to int, dt float64) {
	for i := from; i < to; i++ {
		e := &w.entities[i]
		e.x += e.vx * dt
		e.y += e.vy * dt
		if e.x < 0 || e.x > w.width {
			e.vx = -e.vx
			e.x = math.Max(0, math.Min(e.x, w.width))
		}
		if e.y < 0 || e.y > w.height {
			e.vy = -e.vy
			e.y = math.Max(0, math.Min(e.y, w.height))
		}
	}
}

// cull marks which entities of [from, to) fall inside the view rectangle.
func (w *world) cull(fd *frameData, from, to int) {
	for i := from; i < to; i++ {
		e := w.entities[i]
		fd.visible[i] = e.x >= 0 && e.x <= w.width/2 && e.y >= 0 && e.y <= w.height
	}
}

// collect builds the draw list from the visibility slots.
func (w *world) collect(fd *frameData) {
	fd.items = fd.items[:0]
	for i, ok := range fd.visible {
		if ok {
			e := w.entities[i]
			fd.items = append(fd.items, drawItem{entity: i, x: e.x, y: e.y})
		}
	}
}

// chunks splits n items into ranges of at most size items.
func chunks(n, size int) [][2]int {
	if size < 1 {
		size = 1
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for from := 0; from < n; from += size {
		out = append(out, [2]int{from, min(from+size, n)})
	}
	return out
}
