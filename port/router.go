package port

import "math"

// Route picks the source and target ports for an edge between two node
// bounding boxes. It depends only on the two centers.
//
// When the horizontal distance strictly exceeds the vertical one the edge
// runs output to input (or input to output when the target is to the left).
// Otherwise it runs bottom to top (or top to bottom when the target is above),
// so ties, including exactly overlapping centers, resolve vertically.
func Route(source, target Rect) (Port, Port) {
	return routeCenters(source.Center(), target.Center())
}

// RouteCursor routes from a node to a live cursor position while a
// connection is being dragged.
func RouteCursor(source Rect, cursor Point) (Port, Port) {
	return routeCenters(source.Center(), cursor)
}

func routeCenters(cs, ct Point) (Port, Port) {
	dx := math.Abs(ct.X - cs.X)
	dy := math.Abs(ct.Y - cs.Y)

	if dx > dy {
		if cs.X < ct.X {
			return Output, Input
		}
		return Input, Output
	}
	if cs.Y < ct.Y {
		return Bottom, Top
	}
	return Top, Bottom
}
