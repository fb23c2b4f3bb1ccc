package supervisor

import (
	"reflect"
	"testing"
)

func TestDirectiveScannerPassesLiteralTextThrough(t *testing.T) {
	s := NewDirectiveScanner()
	literal, directives := s.Feed("just a plain sentence with no brackets")
	if literal != "just a plain sentence with no brackets" {
		t.Fatalf("unexpected literal: %q", literal)
	}
	if len(directives) != 0 {
		t.Fatalf("expected no directives, got %v", directives)
	}
}

func TestDirectiveScannerParsesSingleDirective(t *testing.T) {
	s := NewDirectiveScanner()
	literal, directives := s.Feed("before [TOOL:search:query=widgets,limit=5] after")

	if literal != "before  after" {
		t.Fatalf("unexpected literal: %q", literal)
	}
	if len(directives) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(directives))
	}
	d := directives[0]
	if d.Tool != "search" {
		t.Fatalf("expected tool search, got %q", d.Tool)
	}
	want := map[string]string{"query": "widgets", "limit": "5"}
	if !reflect.DeepEqual(d.Args, want) {
		t.Fatalf("args = %v, want %v", d.Args, want)
	}
}

func TestDirectiveScannerHandlesArglessDirective(t *testing.T) {
	s := NewDirectiveScanner()
	_, directives := s.Feed("[TOOL:ping:]")
	if len(directives) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(directives))
	}
	if len(directives[0].Args) != 0 {
		t.Fatalf("expected no args, got %v", directives[0].Args)
	}
}

func TestDirectiveScannerToleratesChunkSplitAcrossBoundary(t *testing.T) {
	s := NewDirectiveScanner()

	var gotLiteral string
	var gotDirectives []Directive

	l1, d1 := s.Feed("hello [TOOL:sea")
	gotLiteral += l1
	gotDirectives = append(gotDirectives, d1...)

	l2, d2 := s.Feed("rch:q=go")
	gotLiteral += l2
	gotDirectives = append(gotDirectives, d2...)

	l3, d3 := s.Feed("lang] world")
	gotLiteral += l3
	gotDirectives = append(gotDirectives, d3...)

	if gotLiteral != "hello  world" {
		t.Fatalf("unexpected literal across chunk boundaries: %q", gotLiteral)
	}
	if len(gotDirectives) != 1 || gotDirectives[0].Tool != "search" {
		t.Fatalf("unexpected directives: %+v", gotDirectives)
	}
	if gotDirectives[0].Args["q"] != "golang" {
		t.Fatalf("unexpected args: %v", gotDirectives[0].Args)
	}
}

func TestDirectiveScannerTreatsMismatchedPrefixAsLiteral(t *testing.T) {
	s := NewDirectiveScanner()
	literal, directives := s.Feed("array literal: [TOTALLY:not:a=directive]")
	if len(directives) != 0 {
		t.Fatalf("expected no directives for a mismatched prefix, got %v", directives)
	}
	if literal != "array literal: [TOTALLY:not:a=directive]" {
		t.Fatalf("expected the whole bracketed text to flush literally, got %q", literal)
	}
}

func TestDirectiveScannerRejectsEmptyToolName(t *testing.T) {
	s := NewDirectiveScanner()
	literal, directives := s.Feed("[TOOL::x=1]")
	if len(directives) != 0 {
		t.Fatalf("expected no directives for an empty tool name, got %v", directives)
	}
	if literal == "" {
		t.Fatal("expected the malformed directive to be flushed as literal text")
	}
}

func TestDirectiveScannerFlushReturnsUnterminatedDirective(t *testing.T) {
	s := NewDirectiveScanner()
	literal, directives := s.Feed("trailing [TOOL:search:q=go")
	if len(directives) != 0 {
		t.Fatalf("expected no directives before the stream ends, got %v", directives)
	}
	if literal != "trailing " {
		t.Fatalf("unexpected literal: %q", literal)
	}

	flushed := s.Flush()
	if flushed != "[TOOL:search:q=go" {
		t.Fatalf("expected Flush to return the unterminated directive text, got %q", flushed)
	}
	if s.Flush() != "" {
		t.Fatal("expected a second Flush call after reset to return empty")
	}
}

func TestParseDirectiveKeyWithoutValue(t *testing.T) {
	d := parseDirective("noop", "flag,query=x")
	if v, ok := d.Args["flag"]; !ok || v != "" {
		t.Fatalf("expected flag recorded with empty value, got %q (ok=%v)", v, ok)
	}
	if d.Args["query"] != "x" {
		t.Fatalf("expected query=x, got %q", d.Args["query"])
	}
}
