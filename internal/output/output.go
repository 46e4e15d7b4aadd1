package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// Result is the envelope for JSON output.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Printer writes either JSON envelopes or human-readable text.
type Printer struct {
	W    io.Writer
	JSON bool
}

// Print outputs data. In JSON mode it marshals data, otherwise it calls textFn.
func (p Printer) Print(data any, textFn func(w io.Writer)) error {
	if p.JSON {
		return p.write(Result{Success: true, Data: data})
	}
	textFn(p.W)
	return nil
}

// Fail reports err. In JSON mode it writes an error envelope and returns err
// so the caller still exits non-zero.
func (p Printer) Fail(err error) error {
	if p.JSON {
		if werr := p.write(Result{Success: false, Error: err.Error()}); werr != nil {
			return werr
		}
	}
	return err
}

func (p Printer) write(r Result) error {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(p.W, string(out))
	return err
}
