package artifact

import (
	"context"
	"fmt"
)

// Options selects and configures an artifact backend.
type Options struct {
	Driver   Driver
	BasePath string
	S3       S3Config
}

// Open constructs the Store named by opts.Driver. An empty driver selects the filesystem.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverFilesystem:
		return NewFSStore(opts.BasePath)
	case DriverS3:
		return NewS3Store(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown artifact driver %q", opts.Driver)
	}
}
