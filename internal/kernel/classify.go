package kernel

import (
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/sagecache/internal/logfields"
	"git.home.luguber.info/inful/sagecache/internal/result"
)

// Display mime types that mark interact widgets rather than printable output.
const (
	mimeSageInteract = "application/sage-interact"
	mimeSageClear    = "application/sage-clear"
)

// Response is the raw outcome of one execute_request.
type Response struct {
	KernelURL string
	Shell     []Message
	IOPub     []Message
}

// Status returns the execute_reply status ("ok", "error", "aborted") or "".
func (r Response) Status() string {
	for _, m := range r.Shell {
		if m.Type() == MsgExecuteReply {
			if reply, ok := Decode(m).(ReplyOutput); ok {
				return reply.Status
			}
		}
	}
	return ""
}

// ClassifyMessages turns broadcast messages into results, positioned by their
// 1-based arrival rank among all broadcast messages. Messages without output
// are dropped.
func ClassifyMessages(kernelURL string, iopub []Message) []result.Result {
	var out []result.Result
	for i, msg := range iopub {
		if r, ok := classifyOne(kernelURL, i+1, msg); ok {
			out = append(out, r)
		}
	}
	return out
}

// Classify returns the merged, renumbered results of a response.
func Classify(resp Response) []result.Result {
	return result.Combine(ClassifyMessages(resp.KernelURL, resp.IOPub))
}

func classifyOne(kernelURL string, rank int, msg Message) (result.Result, bool) {
	switch out := Decode(msg).(type) {
	case StreamOutput:
		return result.Stream{Order: rank, Mime: result.MimeTextPlain, Data: out.Text}, true
	case DisplayOutput:
		return classifyDisplay(kernelURL, rank, out)
	case ErrorOutput:
		return result.Error{
			Order:     rank,
			EName:     out.EName,
			EValue:    out.EValue,
			Traceback: strings.Join(out.Traceback, "\n"),
		}, true
	case StatusOutput, ReplyOutput:
		return nil, false
	case Unrecognized:
		slog.Debug("Dropping unrecognized kernel message",
			logfields.MsgType(out.MsgType), slog.String("reason", out.Reason))
		return nil, false
	default:
		return nil, false
	}
}

func classifyDisplay(kernelURL string, rank int, d DisplayOutput) (result.Result, bool) {
	if data, ok := d.Text(result.MimeImagePNG); ok {
		return result.Stream{Order: rank, Mime: result.MimeImagePNG, Data: data}, true
	}
	if data, ok := d.Text(result.MimeTextHTML); ok {
		return result.Stream{Order: rank, Mime: result.MimeTextHTML, Data: data}, true
	}
	if name, ok := d.Text(result.MimeImageFilename); ok {
		return result.Image{
			Order: rank,
			Mime:  result.MimeImageFilename,
			Name:  name,
			URL:   FileURL(kernelURL, name),
		}, true
	}
	if data, ok := d.Text(result.MimeTextPlain); ok {
		if d.Has(mimeSageInteract) || d.Has(mimeSageClear) {
			return nil, false
		}
		return result.Stream{Order: rank, Mime: result.MimeTextPlain, Data: data}, true
	}
	return nil, false
}

// FileURL is where a kernel serves a file it produced.
func FileURL(kernelURL, name string) string {
	base := kernelURL
	switch {
	case strings.HasPrefix(base, "wss:"):
		base = "https:" + strings.TrimPrefix(base, "wss:")
	case strings.HasPrefix(base, "ws:"):
		base = "http:" + strings.TrimPrefix(base, "ws:")
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "files/" + name
}
