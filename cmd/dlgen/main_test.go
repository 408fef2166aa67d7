package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args []string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(target, []byte("# existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected error for existing config without --overwrite")
	}

	out, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"})
	if err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
}

func TestWordsCommand(t *testing.T) {
	out, err := runCLI(t, []string{"words", "1500.50"})
	if err != nil {
		t.Fatalf("words: %v", err)
	}
	requireContains(t, out, "ONE THOUSAND FIVE HUNDRED PESOS, AND FIFTY CENTS")
	requireContains(t, out, "1,500.50")
}

func TestWordsCommandRejectsGarbage(t *testing.T) {
	if _, err := runCLI(t, []string{"words", "not-a-number"}); err == nil {
		t.Fatal("expected error for unparseable amount")
	}
}

func TestRenderTableAndTSV(t *testing.T) {
	headers := []string{"ID", "Status"}
	rows := [][]string{{"1", "completed"}, {"2", "failed"}}

	rendered := renderTable(headers, rows, []columnAlignment{alignRight, alignLeft})
	requireContains(t, rendered, "completed")
	requireContains(t, rendered, "failed")

	tsv := renderTSV(headers, rows)
	if tsv != "ID\tStatus\n1\tcompleted\n2\tfailed\n" {
		t.Fatalf("unexpected tsv output: %q", tsv)
	}
}
