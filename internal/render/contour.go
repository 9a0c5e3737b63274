package render

// Marching squares over a row-major lattice. Produces line segments in
// lattice coordinates (x = column, y = row) for a single iso-level.

type segment struct {
	x1, y1, x2, y2 float64
}

type edgePoint struct {
	x, y float64
}

// marchingSquares traces the iso-level contour of values (ny rows by nx
// columns, north row first). A corner is inside when its value is strictly
// greater than level, which puts cells equal to a no-data sentinel outside
// the contour.
func marchingSquares(values []float64, ny, nx int, level float64) []segment {
	at := func(row, col int) float64 { return values[row*nx+col] }

	var segs []segment
	for row := 0; row < ny-1; row++ {
		for col := 0; col < nx-1; col++ {
			// Corners clockwise from top-left.
			tl := at(row, col)
			tr := at(row, col+1)
			br := at(row+1, col+1)
			bl := at(row+1, col)

			idx := 0
			if tl > level {
				idx |= 8
			}
			if tr > level {
				idx |= 4
			}
			if br > level {
				idx |= 2
			}
			if bl > level {
				idx |= 1
			}
			if idx == 0 || idx == 15 {
				continue
			}

			top := interpolate(float64(col), float64(row), tl, float64(col+1), float64(row), tr, level)
			right := interpolate(float64(col+1), float64(row), tr, float64(col+1), float64(row+1), br, level)
			bottom := interpolate(float64(col), float64(row+1), bl, float64(col+1), float64(row+1), br, level)
			left := interpolate(float64(col), float64(row), tl, float64(col), float64(row+1), bl, level)

			for _, pair := range segmentTable[idx] {
				p1 := pickEdge(pair[0], top, right, bottom, left)
				p2 := pickEdge(pair[1], top, right, bottom, left)
				segs = append(segs, segment{p1.x, p1.y, p2.x, p2.y})
			}
		}
	}
	return segs
}

// interpolate finds where the level crosses the edge between two corners.
func interpolate(x1, y1, v1, x2, y2, v2 float64, level float64) edgePoint {
	if v1 == v2 {
		return edgePoint{(x1 + x2) / 2, (y1 + y2) / 2}
	}
	t := (level - v1) / (v2 - v1)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return edgePoint{x1 + t*(x2-x1), y1 + t*(y2-y1)}
}

const (
	edgeTop = iota
	edgeRight
	edgeBottom
	edgeLeft
)

func pickEdge(e int, top, right, bottom, left edgePoint) edgePoint {
	switch e {
	case edgeTop:
		return top
	case edgeRight:
		return right
	case edgeBottom:
		return bottom
	default:
		return left
	}
}

// segmentTable maps a marching-squares case to the cell edges its contour
// segments connect. The two ambiguous saddle cases (5, 10) are resolved
// arbitrarily; at coastline resolution the difference is invisible.
var segmentTable = [16][][2]int{
	0:  nil,
	1:  {{edgeLeft, edgeBottom}},
	2:  {{edgeBottom, edgeRight}},
	3:  {{edgeLeft, edgeRight}},
	4:  {{edgeTop, edgeRight}},
	5:  {{edgeTop, edgeLeft}, {edgeBottom, edgeRight}},
	6:  {{edgeTop, edgeBottom}},
	7:  {{edgeTop, edgeLeft}},
	8:  {{edgeLeft, edgeTop}},
	9:  {{edgeTop, edgeBottom}},
	10: {{edgeTop, edgeRight}, {edgeLeft, edgeBottom}},
	11: {{edgeTop, edgeRight}},
	12: {{edgeLeft, edgeRight}},
	13: {{edgeBottom, edgeRight}},
	14: {{edgeLeft, edgeBottom}},
	15: nil,
}
