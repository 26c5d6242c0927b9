package result

const htmlFragmentSeparator = "<br/>"

// accumulates reports whether adjacent streams of mime are merged.
func accumulates(mime string) bool {
	return mime == MimeTextPlain || mime == MimeTextHTML
}

// Combine merges runs of adjacent Stream results sharing a text/plain or
// text/html mimetype into one Stream, in arrival order, and renumbers the output
// from 0. HTML fragments are joined with a line break marker.
//
// Combine is pure and idempotent: after one pass no two adjacent results share
// an accumulating mimetype, so a second pass only renumbers 0..n-1 again.
func Combine(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if s, ok := r.(Stream); ok && accumulates(s.Mime) && len(out) > 0 {
			if prev, ok := out[len(out)-1].(Stream); ok && prev.Mime == s.Mime {
				prev.Data = joinFragments(prev.Data, s.Data, s.Mime)
				out[len(out)-1] = prev
				continue
			}
		}
		out = append(out, r.withPosition(len(out)))
	}
	return out
}

func joinFragments(a, b, mime string) string {
	if mime == MimeTextHTML {
		return a + htmlFragmentSeparator + b
	}
	return a + b
}
