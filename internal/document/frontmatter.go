package document

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter is returned for a document that opens a YAML
// front matter block but never closes it.
var ErrMissingClosingDelimiter = errors.New("front matter start delimiter found but closing delimiter is missing")

// splitFrontMatter separates `---` delimited YAML front matter from the body.
// Documents without front matter return the whole input as body.
func splitFrontMatter(content []byte) (front, body []byte, had bool, err error) {
	nl := newlineOf(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}
	rest := content[len(open):]
	if bytes.HasPrefix(rest, open) {
		return []byte{}, rest[len(open):], true, nil
	}
	closing := []byte(nl + "---" + nl)
	idx := bytes.Index(rest, closing)
	if idx < 0 {
		// A closing delimiter on the last line has no trailing newline.
		if bytes.HasSuffix(rest, []byte(nl+"---")) {
			return rest[:len(rest)-len("---")], []byte{}, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}
	return rest[:idx+len(nl)], rest[idx+len(closing):], true, nil
}

func joinFrontMatter(front, body []byte, had bool, nl string) []byte {
	if !had {
		return body
	}
	out := make([]byte, 0, len(front)+len(body)+8)
	out = append(out, "---"+nl...)
	out = append(out, front...)
	out = append(out, "---"+nl...)
	return append(out, body...)
}

func newlineOf(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

// Options are per-document settings read from the `sagecache` front matter key.
type Options struct {
	// Platform overrides the default platform of every block without an
	// explicit platform attribute.
	Platform string `yaml:"platform"`
	// Disabled excludes the document's code from evaluation.
	Disabled bool `yaml:"disabled"`
}

func parseOptions(front []byte) (Options, error) {
	var fields struct {
		SageCache Options `yaml:"sagecache"`
	}
	if len(bytes.TrimSpace(front)) == 0 {
		return Options{}, nil
	}
	if err := yaml.Unmarshal(front, &fields); err != nil {
		return Options{}, err
	}
	return fields.SageCache, nil
}
