// Package result models the ordered, typed output of evaluating one code block.
//
// A Result is one of three variants: Stream (text, HTML or inline image data),
// Image (a file produced by the backend) or Error (an uncaught exception in user
// code). The set is closed; callers switch on the concrete type.
package result

import (
	"fmt"
	"sort"
)

// Kind identifies a Result variant.
type Kind int

const (
	KindStream Kind = iota
	KindImage
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindImage:
		return "image"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Mime types produced by the classifier and understood by the renderer.
const (
	MimeTextPlain     = "text/plain"
	MimeTextHTML      = "text/html"
	MimeImageFilename = "text/image-filename"
	MimeTraceback     = "text/x-python-traceback"
	MimeImagePNG      = "image/png"
	MimeImageJPEG     = "image/jpeg"
)

// Result is one piece of output. Position is the rank within the owning
// block's result list; it is not globally unique.
type Result interface {
	Kind() Kind
	Position() int
	MimeType() string

	withPosition(order int) Result
}

// Stream is text, HTML or base64 inline image data.
type Stream struct {
	Order int
	Mime  string
	Data  string
}

// Image is a file produced by the backend. URL is where the backend serves it,
// Name is the file name and Key the artifact-store key once persisted.
type Image struct {
	Order int
	Mime  string
	Name  string
	URL   string
	Key   string
}

// Error is an exception raised by user code.
type Error struct {
	Order     int
	EName     string
	EValue    string
	Traceback string
}

func (s Stream) Kind() Kind        { return KindStream }
func (s Stream) Position() int     { return s.Order }
func (s Stream) MimeType() string  { return s.Mime }
func (i Image) Kind() Kind         { return KindImage }
func (i Image) Position() int      { return i.Order }
func (i Image) MimeType() string   { return i.Mime }
func (e Error) Kind() Kind         { return KindError }
func (e Error) Position() int      { return e.Order }
func (e Error) MimeType() string   { return MimeTraceback }

func (s Stream) withPosition(order int) Result { s.Order = order; return s }
func (i Image) withPosition(order int) Result  { i.Order = order; return i }
func (e Error) withPosition(order int) Result  { e.Order = order; return e }

// WithPosition returns a copy of r at the given order.
func WithPosition(r Result, order int) Result {
	return r.withPosition(order)
}

// SortByPosition sorts results ascending by Position, keeping arrival order for ties.
func SortByPosition(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Position() < results[j].Position()
	})
}
