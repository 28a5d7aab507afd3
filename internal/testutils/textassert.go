package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the part of testing.T the asserters report through
type TestingT interface {
	Errorf(format string, args ...any)
}

// TextAssertOptions controls how CLI output is normalised before comparing
type TextAssertOptions struct {
	TrimSpace                bool `default:"true"`
	IgnoreTrailingWhitespace bool `default:"true"`
	EnableColors             bool `default:"false"`
}

// TextOption configures a TextAsserter
type TextOption func(*TextAssertOptions)

// TextAsserter compares command output and reports a unified diff on mismatch
type TextAsserter struct {
	t    TestingT
	opts TextAssertOptions
}

// NewTextAsserter creates an asserter with default options
func NewTextAsserter(t TestingT) *TextAsserter {
	ta := &TextAsserter{t: t}
	defaults.SetDefaults(&ta.opts)
	return ta
}

// WithOptions applies opts and returns the asserter
func (ta *TextAsserter) WithOptions(opts ...TextOption) *TextAsserter {
	for _, opt := range opts {
		opt(&ta.opts)
	}
	return ta
}

// Assert reports an error on t when actual differs from expected
func (ta *TextAsserter) Assert(actual, expected string) bool {
	diff := ta.Diff(actual, expected)
	if diff == "" {
		return true
	}
	ta.t.Errorf("output mismatch:\n%s", diff)
	return false
}

// Diff returns "" when both texts are equal after normalisation
func (ta *TextAsserter) Diff(actual, expected string) string {
	got, want := ta.normalize(actual), ta.normalize(expected)
	if got == want {
		return ""
	}
	unified := gotextdiff.ToUnified("expected", "actual", want, myers.ComputeEdits("", want, got))
	out := fmt.Sprint(unified)
	if ta.opts.EnableColors {
		out = paint(out)
	}
	return out
}

func (ta *TextAsserter) normalize(text string) string {
	if ta.opts.IgnoreTrailingWhitespace {
		lines := strings.Split(text, "\n")
		for i := range lines {
			lines[i] = strings.TrimRight(lines[i], " \t\r")
		}
		text = strings.Join(lines, "\n")
	}
	if ta.opts.TrimSpace {
		text = strings.TrimSpace(text)
	}
	return text
}

// paint colours removed lines red, added lines green and headers cyan; spaces in
// changed lines become visible dots
func paint(diff string) string {
	styles := map[byte]*color.Color{
		'-': color.New(color.FgRed),
		'+': color.New(color.FgGreen),
		'@': color.New(color.FgCyan),
	}
	for _, c := range styles {
		c.EnableColor()
	}

	var b strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		body := strings.TrimSuffix(line, "\n")
		if body == "" {
			b.WriteString(line)
			continue
		}
		c, ok := styles[body[0]]
		switch {
		case !ok:
			b.WriteString(body)
		case strings.HasPrefix(body, "---"), strings.HasPrefix(body, "+++"):
			b.WriteString(styles['@'].Sprint(body))
		case body[0] == '@':
			b.WriteString(c.Sprint(body))
		default:
			b.WriteString(c.Sprint(strings.ReplaceAll(body, " ", "·")))
		}
		if strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// WithTrimSpace sets whether leading and trailing whitespace of the whole text is ignored
func WithTrimSpace(trim bool) TextOption {
	return func(o *TextAssertOptions) { o.TrimSpace = trim }
}

// WithIgnoreTrailingWhitespace sets whether trailing whitespace on each line is ignored
func WithIgnoreTrailingWhitespace(ignore bool) TextOption {
	return func(o *TextAssertOptions) { o.IgnoreTrailingWhitespace = ignore }
}

// WithEnableColors sets whether the diff is coloured
func WithEnableColors(enable bool) TextOption {
	return func(o *TextAssertOptions) { o.EnableColors = enable }
}
