package graph

// Style is the visual policy of one edge.
type Style struct {
	Kind  EdgeKind
	Color Color
	Width float64
}

// Palette hues. Live relationships use cool or neutral colors, relationships
// inferred from source use warm ones.
var (
	colorStructural   = Color{R: 150, G: 160, B: 175, A: 255}
	colorOwnership    = Color{R: 90, G: 190, B: 120, A: 255}
	colorReference    = Color{R: 80, G: 150, B: 230, A: 255}
	colorAssetRef     = Color{R: 170, G: 110, B: 220, A: 255}
	colorCycleBack    = Color{R: 230, G: 70, B: 70, A: 255}
	colorDynamic      = Color{R: 240, G: 170, B: 40, A: 255}
	colorSubscription = Color{R: 245, G: 215, B: 60, A: 255}
	colorInvocation   = Color{R: 240, G: 110, B: 180, A: 255}
)

const (
	baseWidth       = 2.0
	minWidth        = 0.5
	widthDecay      = 0.25
	minAlphaPercent = 35
	alphaDecay      = 8
)

// Classify picks the edge kind, color and width for a relationship. It is a
// pure function. Width and alpha never increase with depth.
func Classify(source NodeKind, asset bool, cat Category, depth int) Style {
	if depth < 0 {
		depth = 0
	}

	var s Style
	switch cat {
	case CategoryHierarchy:
		s.Kind, s.Color = EdgeStructural, colorStructural
	case CategoryOwnership:
		s.Kind, s.Color = EdgeComponentOwnership, colorOwnership
	case CategoryCycle:
		s.Kind, s.Color = EdgeCycleBack, colorCycleBack
	case CategoryDynamic:
		s.Kind, s.Color = EdgeDynamicReference, colorDynamic
	case CategorySubscription:
		s.Kind, s.Color = EdgeEventSubscription, colorSubscription
	case CategoryInvocation:
		s.Kind, s.Color = EdgeEventInvocation, colorInvocation
	default:
		s.Kind, s.Color = EdgeDataReference, colorReference
	}
	if asset && (s.Kind == EdgeDataReference || s.Kind == EdgeCycleBack) {
		s.Color = colorAssetRef
	}

	width := baseWidth
	if s.Kind == EdgeStructural || s.Kind == EdgeComponentOwnership {
		width *= 1.25
	}
	if source == NodeVirtual {
		width *= 0.75
	}
	width /= 1 + widthDecay*float64(depth)
	if width < minWidth {
		width = minWidth
	}
	s.Width = width

	alpha := 100 - alphaDecay*depth
	if alpha < minAlphaPercent {
		alpha = minAlphaPercent
	}
	s.Color.A = uint8(int(s.Color.A) * alpha / 100)
	return s
}
