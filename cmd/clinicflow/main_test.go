package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clinicflow/testutil"
)

type workspace struct {
	dir    string
	input  string
	config string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{dir: dir, input: filepath.Join(dir, "ExcelFolders"), config: filepath.Join(dir, "clinicflow.yaml")}
	if err := os.MkdirAll(ws.input, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfg := fmt.Sprintf(`input_dir: %s
blob:
  driver: fs
  fs_root: %s
ledger:
  driver: text
  path: %s
logging:
  level: error
  format: json
`, ws.input, filepath.Join(dir, "cleanExcel"), filepath.Join(dir, "log.txt"))
	if err := os.WriteFile(ws.config, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return ws
}

func (ws workspace) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", ws.config, "--env-file", filepath.Join(ws.dir, ".env")}, args...)
	code := cli(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLIPipeline(t *testing.T) {
	ws := newWorkspace(t)
	testutil.WriteWorkbook(t, filepath.Join(ws.input, "jan.xlsx"), [][]any{testutil.RawVisitRow("x", "New", 2, 3)})

	code, out, errOut := ws.run(t, "ingest")
	if code != 0 {
		t.Fatalf("ingest exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Master file updated with 1 new files") {
		t.Fatalf("unexpected ingest output: %q", out)
	}

	code, out, _ = ws.run(t, "ingest")
	if code != 0 || !strings.Contains(out, "No new Excel files to process.") {
		t.Fatalf("second ingest: exit %d output %q", code, out)
	}

	code, out, errOut = ws.run(t, "reshape")
	if code != 0 {
		t.Fatalf("reshape exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "numericBook.xlsx (32 rows)") || !strings.Contains(out, `Case codes: {"New": 1}`) {
		t.Fatalf("unexpected reshape output: %q", out)
	}

	code, out, _ = ws.run(t, "ledger")
	if code != 0 || !strings.Contains(out, "jan.xlsx") {
		t.Fatalf("ledger: exit %d output %q", code, out)
	}

	code, out, _ = ws.run(t, "artifacts", "--presign")
	if code != 0 {
		t.Fatalf("artifacts exit %d", code)
	}
	for _, want := range []string{"cleanedBook.xlsx", "numericBook.xlsx", "file://"} {
		if !strings.Contains(out, want) {
			t.Fatalf("artifacts output missing %q: %q", want, out)
		}
	}
}

func TestCLIRunCommand(t *testing.T) {
	ws := newWorkspace(t)
	testutil.WriteWorkbook(t, filepath.Join(ws.input, "a.xlsx"), [][]any{testutil.RawVisitRow("x", "Old", 1)})
	code, out, errOut := ws.run(t, "run")
	if code != 0 {
		t.Fatalf("run exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Master file updated with 1 new files") || !strings.Contains(out, `{"Old": 1}`) {
		t.Fatalf("unexpected run output: %q", out)
	}
}

func TestCLIErrors(t *testing.T) {
	ws := newWorkspace(t)
	code, _, errOut := ws.run(t, "reshape")
	if code != 1 || !strings.Contains(errOut, "master table not found") {
		t.Fatalf("reshape without master: exit %d stderr %q", code, errOut)
	}

	testutil.WriteWorkbook(t, filepath.Join(ws.input, "narrow.xlsx"), [][]any{{"x", "New", 1}})
	code, _, errOut = ws.run(t, "ingest")
	if code != 1 || !strings.Contains(errOut, "schema drift") {
		t.Fatalf("ingest drift: exit %d stderr %q", code, errOut)
	}
	code, out, errOut := ws.run(t, "ingest", "--on-error", "skip")
	if code != 0 || !strings.Contains(errOut, "Skipped narrow.xlsx") || !strings.Contains(out, "No new Excel files") {
		t.Fatalf("ingest skip: exit %d stdout %q stderr %q", code, out, errOut)
	}
	code, _, _ = ws.run(t, "ingest", "--on-error", "retry")
	if code != 1 {
		t.Fatalf("invalid policy accepted")
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"clinicflow", "no-such-command"}
	main()
	if len(codes) != 1 || codes[0] == 0 {
		t.Fatalf("unexpected exit codes: %v", codes)
	}
}
