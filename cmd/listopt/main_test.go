package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	env, err := loadDotEnv(dir)
	if err != nil || len(env) != 0 {
		t.Fatalf("missing file: %v %v", env, err)
	}
	content := "# comment\nHTTP=:9000\nLOG_LEVEL=\"debug\"\nSECRET_KEY=abc\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	env, err = loadDotEnv(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"HTTP": ":9000", "LOG_LEVEL": "debug", "SECRET_KEY": "abc"}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("%s = %q, want %q", k, env[k], v)
		}
	}
}
