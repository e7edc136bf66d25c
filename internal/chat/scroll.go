package chat

// BottomProximityPct is the default threshold: when the reader's scroll
// position is past this percentage of the scrollable span, updates
// auto-scroll to the bottom.
const BottomProximityPct = 30

// AnchorOffset returns the scroll offset that keeps previously visible
// content in view after older messages are prepended: the viewport is
// pushed down by exactly the amount of new content above it.
func AnchorOffset(oldLen, newLen int) int {
	return newLen - oldLen
}

// NearBottom reports whether the reader is close enough to the bottom
// that an update should scroll the view to the newest message. offset is
// the current scroll position, contentLen the total content length and
// viewportLen the visible length, all in the same units.
func NearBottom(offset, contentLen, viewportLen, thresholdPct int) bool {
	span := contentLen - viewportLen
	if span <= 0 {
		return false
	}
	return 100*offset/span > thresholdPct
}
