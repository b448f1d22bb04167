package tools

import (
	"bytes"
	"io"
)

func toReader(b []byte) io.Reader {
	if len(b) == 0 {
		b = []byte(`{"type":"object","properties":{}}`)
	}
	return bytes.NewReader(b)
}
