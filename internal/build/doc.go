// Package build drives a full site build: discover code blocks in every
// content file, run one evaluation pass, then render each document with its
// cached output.
package build
