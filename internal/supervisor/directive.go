// Package supervisor implements the execution supervisor: DAG execution,
// handoff records, worker dispatch through the resilience layer,
// single-flight per session, and inline tool-directive parsing.
package supervisor

import "strings"

// directiveState is one state of the inline tool-directive tokenizer.
type directiveState int

const (
	stateNormal directiveState = iota
	stateSeenOpenBracket
	stateInToolName
	stateInArgs
)

// toolPrefix is the literal text that must follow "[" for a directive to
// begin.
const toolPrefix = "TOOL:"

// Directive is one parsed `[TOOL:<name>:k1=v1,k2=v2,...]` invocation.
type Directive struct {
	Tool string
	Args map[string]string
}

// DirectiveScanner tokenizes the inline tool-directive macro language out of
// streaming worker output. It tolerates a directive split across chunk
// boundaries by carrying state between Feed calls, and leaves malformed
// directives as literal text in the output.
type DirectiveScanner struct {
	state     directiveState
	prefixPos int
	pending   strings.Builder // raw text consumed since '[', for literal flush
	name      strings.Builder
	args      strings.Builder
}

// NewDirectiveScanner constructs a scanner starting in the normal state.
func NewDirectiveScanner() *DirectiveScanner {
	return &DirectiveScanner{}
}

// Feed scans chunk for directives, returning the literal text (with any
// recognized directive removed) and the directives found, in order. A
// directive spanning the end of chunk is buffered internally and completed
// by a later Feed call.
func (d *DirectiveScanner) Feed(chunk string) (literal string, directives []Directive) {
	var out strings.Builder

	for _, r := range chunk {
		switch d.state {
		case stateNormal:
			if r == '[' {
				d.state = stateSeenOpenBracket
				d.prefixPos = 0
				d.pending.Reset()
				d.pending.WriteRune(r)
				continue
			}
			out.WriteRune(r)

		case stateSeenOpenBracket:
			d.pending.WriteRune(r)
			if d.prefixPos < len(toolPrefix) && byte(r) == toolPrefix[d.prefixPos] {
				d.prefixPos++
				if d.prefixPos == len(toolPrefix) {
					d.state = stateInToolName
					d.name.Reset()
				}
				continue
			}
			// Does not match the literal "TOOL:" prefix: not a directive.
			out.WriteString(d.pending.String())
			d.resetToNormal()

		case stateInToolName:
			if isNameRune(r) {
				d.name.WriteRune(r)
				d.pending.WriteRune(r)
				continue
			}
			if r == ':' && d.name.Len() > 0 {
				d.pending.WriteRune(r)
				d.state = stateInArgs
				d.args.Reset()
				continue
			}
			// Empty or invalid tool-name: malformed, flush literally.
			d.pending.WriteRune(r)
			out.WriteString(d.pending.String())
			d.resetToNormal()

		case stateInArgs:
			if r == ']' {
				directives = append(directives, parseDirective(d.name.String(), d.args.String()))
				d.resetToNormal()
				continue
			}
			d.pending.WriteRune(r)
			d.args.WriteRune(r)
		}
	}

	return out.String(), directives
}

// Flush returns any partially buffered directive as literal text, for use
// once the underlying stream has ended with no further chunks coming: a
// directive that never closed is not silently dropped.
func (d *DirectiveScanner) Flush() string {
	if d.state == stateNormal {
		return ""
	}
	out := d.pending.String()
	d.resetToNormal()
	return out
}

func (d *DirectiveScanner) resetToNormal() {
	d.state = stateNormal
	d.prefixPos = 0
	d.pending.Reset()
	d.name.Reset()
	d.args.Reset()
}

func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}

// parseDirective splits a directive's raw arg-list ("k1=v1,k2=v2") into a
// map. A key without "=" is recorded with an empty value rather than
// dropped.
func parseDirective(tool, rawArgs string) Directive {
	d := Directive{Tool: tool, Args: map[string]string{}}
	if rawArgs == "" {
		return d
	}
	for _, part := range strings.Split(rawArgs, ",") {
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			d.Args[key] = ""
			continue
		}
		d.Args[key] = value
	}
	return d
}
