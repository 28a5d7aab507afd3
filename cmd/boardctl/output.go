package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/srg/boardlink/pkg/peripheral"
	"golang.org/x/term"
)

// printer renders results as text (coloured on a terminal) or JSON lines
type printer struct {
	out    io.Writer
	format string
	ok     *color.Color
	warn   *color.Color
	fail   *color.Color
}

func newPrinter(out io.Writer, format string) *printer {
	p := &printer{
		out:    out,
		format: format,
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		fail:   color.New(color.FgRed),
	}
	if isTerminal(out) {
		p.ok.EnableColor()
		p.warn.EnableColor()
		p.fail.EnableColor()
	} else {
		p.ok.DisableColor()
		p.warn.DisableColor()
		p.fail.DisableColor()
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// result prints one addressed value
func (p *printer) result(addr peripheral.Address, value any) {
	if p.format == "json" {
		p.json(map[string]any{"address": addr, "value": jsonValue(value)})
		return
	}
	fmt.Fprintf(p.out, "%s: %s\n", addr, p.ok.Sprint(formatValue(value)))
}

// event prints one streamed event
func (p *printer) event(ev peripheral.Event) {
	if p.format == "json" {
		p.json(map[string]any{"address": ev.Address, "event": ev.Name, "value": jsonValue(ev.Value)})
		return
	}
	fmt.Fprintf(p.out, "%s %s: %s\n", ev.Address, ev.Name, p.ok.Sprint(formatValue(ev.Value)))
}

func (p *printer) alert(a peripheral.Alert) {
	if p.format == "json" {
		p.json(map[string]any{"address": a.Address, "alert": a.Severity, "message": a.Message})
		return
	}
	c := p.warn
	if a.Severity == peripheral.SeverityError {
		c = p.fail
	}
	fmt.Fprintf(p.out, "%s %s\n", c.Sprintf("[%s]", a.Severity), a.Message)
}

func (p *printer) json(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(p.out, "{\"error\":%q}\n", err.Error())
		return
	}
	fmt.Fprintln(p.out, string(data))
}

func formatValue(v any) string {
	switch val := v.(type) {
	case []byte:
		return hex.EncodeToString(val)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case nil:
		return "-"
	}
	return fmt.Sprint(v)
}

func jsonValue(v any) any {
	if b, ok := v.([]byte); ok {
		return peripheral.ByteArray(b)
	}
	return v
}

func formatPayload(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
