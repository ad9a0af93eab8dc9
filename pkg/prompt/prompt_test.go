package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"sure\n", false},
		{"y", true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := New(strings.NewReader(tt.input), &out)
			got, err := p.Confirm("Delete this report?")
			if err != nil {
				t.Fatalf("Confirm: %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm with %q = %v, want %v", tt.input, got, tt.want)
			}
			if out.String() != "Delete this report? [y/N]: " {
				t.Errorf("unexpected prompt %q", out.String())
			}
		})
	}
}

func TestConfirmEOF(t *testing.T) {
	p := New(strings.NewReader(""), &bytes.Buffer{})
	if _, err := p.Confirm("Sure?"); !errors.Is(err, ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
}

func TestLineAndPasswordFromPipe(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("jane@example.com\nhunter2\n"), &out)

	email, err := p.Line("Email")
	if err != nil || email != "jane@example.com" {
		t.Fatalf("Line = %q, %v", email, err)
	}
	pw, err := p.Password("Password")
	if err != nil || pw != "hunter2" {
		t.Fatalf("Password = %q, %v", pw, err)
	}
	if out.String() != "Email: Password: " {
		t.Errorf("unexpected prompts %q", out.String())
	}
}

func TestAlwaysConfirm(t *testing.T) {
	ok, err := AlwaysConfirm{}.Confirm("anything")
	if !ok || err != nil {
		t.Errorf("AlwaysConfirm = %v, %v", ok, err)
	}
}

func TestReadKeepsBufferedInput(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("delete 1\ny\n"), &out)

	cmd, err := p.Read("mediscan> ")
	if err != nil || cmd != "delete 1" {
		t.Fatalf("Read = %q, %v", cmd, err)
	}
	ok, err := p.Confirm("Delete this report?")
	if err != nil || !ok {
		t.Fatalf("Confirm after Read = %v, %v", ok, err)
	}
	if _, err := p.Read("mediscan> "); !errors.Is(err, ErrNoInput) {
		t.Errorf("expected ErrNoInput at end of input, got %v", err)
	}
	if out.String() != "mediscan> Delete this report? [y/N]: mediscan> " {
		t.Errorf("unexpected prompts %q", out.String())
	}
}
