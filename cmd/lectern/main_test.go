package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "lectern dev") {
		t.Errorf("expected output to contain 'lectern dev', got: %s", out)
	}
}

func TestSweepCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := "mode: test\njwt_secret: s\nstore:\n  dsn: " + filepath.Join(dir, "lectern.db") + "\nstorage:\n  root: " + filepath.Join(dir, "blobs") + "\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"sweep", "--config", cfgPath})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v (%s)", err, buf.String())
	}
	if !strings.Contains(buf.String(), "sweep complete") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSweepCmd_BadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("store:\n  driver: oracle\njwt_secret: s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"sweep", "-c", cfgPath})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}
