package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/srg/boardlink/pkg/peripheral"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in expected JSON matches any actual value of that key
const PresencePlaceholder = "<<PRESENCE>>"

// MustJSON marshals v or panics
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// JSONAssertOptions controls how loosely documents are compared
type JSONAssertOptions struct {
	IgnoreExtraKeys          bool     `default:"true"`
	AllowPresencePlaceholder bool     `default:"true"`
	IgnoredFields            []string `default:""`
}

// Option configures a JSONAsserter
type Option func(*JSONAssertOptions)

// JSONAsserter compares JSON documents (CLI output, recorded command streams)
// against an expected shape and reports an ASCII diff on mismatch.
//
//	testutils.NewJSONAsserter(t).AssertCommands(recorder.Commands(), `[{"io0": true}]`)
type JSONAsserter struct {
	t    TestingT
	opts JSONAssertOptions
}

// NewJSONAsserter creates an asserter with default options
func NewJSONAsserter(t TestingT) *JSONAsserter {
	ja := &JSONAsserter{t: t}
	defaults.SetDefaults(&ja.opts)
	return ja
}

// WithOptions applies opts and returns the asserter
func (ja *JSONAsserter) WithOptions(opts ...Option) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.opts)
	}
	return ja
}

// Assert reports an error on t when actualJSON does not match expectedJSON
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	if diff := ja.Diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON mismatch:\n%s", diff)
		return false
	}
	return true
}

// AssertCommands renders cmds as a frame list, [{"<address>": payload}, ...], and compares it
func (ja *JSONAsserter) AssertCommands(cmds []peripheral.Command, expectedJSON string) bool {
	frames := make([]map[string]any, len(cmds))
	for i, cmd := range cmds {
		frames[i] = map[string]any{string(cmd.Address): cmd.Payload}
	}
	return ja.Assert(MustJSON(frames), expectedJSON)
}

// Diff returns "" when the documents match under the configured options
func (ja *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var want, got any
	if err := json.Unmarshal([]byte(expectedJSON), &want); err != nil {
		return fmt.Sprintf("expected document is not JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &got); err != nil {
		return fmt.Sprintf("actual document is not JSON: %v\n%s", err, actualJSON)
	}

	// gojsondiff only compares objects
	if _, ok := want.([]any); ok {
		want = map[string]any{"frames": want}
		got = map[string]any{"frames": got}
	}
	ja.relax(want, got)

	wantObj, ok := want.(map[string]any)
	if !ok {
		if MustJSON(want) == MustJSON(got) {
			return ""
		}
		return fmt.Sprintf("expected %s, got %s", MustJSON(want), MustJSON(got))
	}

	d, err := gojsondiff.New().Compare([]byte(MustJSON(want)), []byte(MustJSON(got)))
	if err != nil {
		return fmt.Sprintf("failed to compare documents: %v", err)
	}
	if !d.Modified() {
		return ""
	}
	out, err := formatter.NewAsciiFormatter(wantObj, formatter.AsciiFormatterConfig{ShowArrayIndex: true}).Format(d)
	if err != nil {
		return fmt.Sprintf("documents differ (failed to format diff: %v)", err)
	}
	return out
}

// relax walks both documents once, in place: placeholders take the actual value,
// ignored fields vanish from both sides and keys absent from want are dropped from got.
func (ja *JSONAsserter) relax(want, got any) {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return
		}
		for _, f := range ja.opts.IgnoredFields {
			delete(w, f)
			delete(g, f)
		}
		if ja.opts.IgnoreExtraKeys {
			for k := range g {
				if _, ok := w[k]; !ok {
					delete(g, k)
				}
			}
		}
		for k, wv := range w {
			gv, present := g[k]
			if s, isStr := wv.(string); isStr && s == PresencePlaceholder && ja.opts.AllowPresencePlaceholder {
				if present {
					w[k] = gv
				}
				continue
			}
			if present {
				ja.relax(wv, gv)
			}
		}
	case []any:
		g, ok := got.([]any)
		if !ok {
			return
		}
		for i := 0; i < len(w) && i < len(g); i++ {
			ja.relax(w[i], g[i])
		}
	}
}

// WithIgnoreExtraKeys sets whether keys missing from the expected document are ignored
func WithIgnoreExtraKeys(ignore bool) Option {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = ignore }
}

// WithAllowPresencePlaceholder sets whether PresencePlaceholder values are honoured
func WithAllowPresencePlaceholder(allow bool) Option {
	return func(o *JSONAssertOptions) { o.AllowPresencePlaceholder = allow }
}

// WithIgnoredFields removes the named fields from both documents at every level
func WithIgnoredFields(fields ...string) Option {
	return func(o *JSONAssertOptions) { o.IgnoredFields = fields }
}
