package system

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := `# recorder settings
VR_TEST_LEVEL=debug
export VR_TEST_FILE="/tmp/recorder.log"
VR_TEST_QUOTED='0.6'
not a pair
VR_TEST_KEEP=from-file
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VR_TEST_KEEP", "from-shell")
	for _, k := range []string{"VR_TEST_LEVEL", "VR_TEST_FILE", "VR_TEST_QUOTED"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}

	want := map[string]string{
		"VR_TEST_LEVEL":  "debug",
		"VR_TEST_FILE":   "/tmp/recorder.log",
		"VR_TEST_QUOTED": "0.6",
		"VR_TEST_KEEP":   "from-shell",
	}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestLoadEnvMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := LoadEnv("definitely-missing.env"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
