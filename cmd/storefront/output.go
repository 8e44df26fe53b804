package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// printer writes human-readable output.
type printer struct {
	w    io.Writer
	msg  *message.Printer
	unit currency.Unit
	err  error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = p.msg.Fprintf(p.w, format+"\n", args...)
}

// money formats amount in the configured currency, e.g. "$ 1,234.50".
func (p *printer) money(amount float64) string {
	return p.msg.Sprint(currency.Symbol(p.unit.Amount(amount)))
}

// print renders v as JSON or YAML, or calls text for the text format.
func (a *app) print(v any, text func(p *printer)) error {
	switch a.cfg.Output {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		defer enc.Close()
		return enc.Encode(toYAML(v))
	default:
		p := newPrinter(a.out, a.cfg.Currency, os.Getenv("LANG"))
		text(p)
		return p.err
	}
}

func newPrinter(w io.Writer, code, locale string) *printer {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.USD
	}
	tag := language.AmericanEnglish
	if t, err := language.Parse(localeTag(locale)); err == nil && locale != "" {
		tag = t
	}
	return &printer{w: w, msg: message.NewPrinter(tag), unit: unit}
}

// localeTag turns a POSIX locale such as "de_DE.UTF-8" into "de-DE".
func localeTag(locale string) string {
	for i, r := range locale {
		if r == '.' || r == '@' {
			locale = locale[:i]
			break
		}
	}
	b := []byte(locale)
	for i := range b {
		if b[i] == '_' {
			b[i] = '-'
		}
	}
	return string(b)
}

// toYAML round-trips v through JSON so YAML keys follow the json tags.
func toYAML(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func formatQty(n int) string { return fmt.Sprintf("×%d", n) }
