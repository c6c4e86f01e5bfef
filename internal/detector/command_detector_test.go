//go:build !windows

package detector

import "testing"

func TestCommandDetector_Alive(t *testing.T) {
	d := CommandDetector{Command: "true"}
	alive, err := d.Alive()
	if err != nil {
		t.Fatalf("Alive error: %v", err)
	}
	if !alive {
		t.Fatalf("expected alive for exit 0")
	}
}

func TestCommandDetector_NotAlive(t *testing.T) {
	d := CommandDetector{Command: "false"}
	alive, err := d.Alive()
	if err != nil {
		t.Fatalf("non-zero exit should not be an error, got %v", err)
	}
	if alive {
		t.Fatalf("expected not alive for exit 1")
	}
}

func TestCommandDetector_ShellMetachars(t *testing.T) {
	d := CommandDetector{Command: "test -n \"$HOME\" && true"}
	alive, err := d.Alive()
	if err != nil {
		t.Fatalf("Alive error: %v", err)
	}
	if !alive {
		t.Fatalf("expected alive for shell command")
	}
}
