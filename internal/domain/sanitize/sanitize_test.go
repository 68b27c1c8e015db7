package sanitize

import "testing"

func TestSanitize_StripsCSI(t *testing.T) {
	s := New()
	in := "hello \x1b[31mred\x1b[0m world"
	out := s.Sanitize(in, Strip)
	if out != "hello red world" {
		t.Fatalf("got %q", out)
	}
}

func TestSanitize_StripsOSC(t *testing.T) {
	s := New()
	in := "before\x1b]0;window title\x07after"
	out := s.Sanitize(in, Strip)
	if out != "beforeafter" {
		t.Fatalf("got %q", out)
	}
}

func TestSanitize_PreservesTabNewlineCR(t *testing.T) {
	s := New()
	in := "a\tb\nc\rd"
	out := s.Sanitize(in, Strip)
	if out != in {
		t.Fatalf("expected tab/newline/cr preserved, got %q", out)
	}
}

func TestSanitize_StripsBareC0Control(t *testing.T) {
	s := New()
	in := "a\x01b\x07c"
	out := s.Sanitize(in, Strip)
	if out != "abc" {
		t.Fatalf("got %q", out)
	}
}

func TestSanitize_VisualizeShowsESC(t *testing.T) {
	s := New()
	in := "\x1b[31mred\x1b[0m"
	out := s.Sanitize(in, Visualize)
	if out != "ESC[31mredESC[0m" {
		t.Fatalf("got %q", out)
	}
}
