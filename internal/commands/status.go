package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"calassist/internal/calcom"
	"calassist/internal/dispatch"
	"calassist/internal/output"
	"calassist/internal/ui"
)

// RunStatus reports credential presence and the effective backend without
// contacting any service.
func RunStatus(jsonOut bool) error {
	p := output.Printer{W: os.Stdout, JSON: jsonOut}
	a, err := newApp(context.Background(), appOptions{quietLog: true})
	if err != nil {
		return p.Fail(err)
	}
	defer a.Close()

	st := a.status()
	return p.Print(st, func(w io.Writer) {
		ui.ShowHeader(w, "calassist status")
		ui.ShowField(w, "version", st.Version)
		ui.ShowField(w, "backend", st.Classifier)
		ui.ShowField(w, "timezone", st.Timezone)
		ui.ShowField(w, "api base", st.BaseURL)
		fmt.Fprintln(w)
		for _, c := range st.Credentials {
			switch {
			case c.Present:
				ui.ShowSuccess(w, "%s set (%s)", c.Name, c.Purpose)
			case c.Required:
				ui.ShowError(w, fmt.Sprintf("%s missing (%s)", c.Name, c.Purpose), nil)
			default:
				ui.ShowInfo(w, "%s not set (%s)", c.Name, c.Purpose)
			}
		}
	})
}

// RunConfigShow prints the effective configuration with secrets masked.
func RunConfigShow() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := cfg.Redacted()
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// RunEventTypes lists event types straight from the gateway.
func RunEventTypes(jsonOut bool) error {
	p := output.Printer{W: os.Stdout, JSON: jsonOut}
	a, err := newApp(context.Background(), appOptions{quietLog: true})
	if err != nil {
		return p.Fail(err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout+5*time.Second)
	defer cancel()

	f := dispatch.Formatter{Location: a.cfg.Location()}
	types, err := a.client.ListEventTypes(ctx)
	if err != nil {
		return p.Fail(errors.New(f.Error(dispatch.OpListEventTypes, 0, err)))
	}
	if types == nil {
		types = []calcom.EventType{}
	}
	return p.Print(types, func(w io.Writer) {
		fmt.Fprintln(w, f.SummarizeEventTypes(types))
	})
}
