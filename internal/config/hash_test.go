package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateChecksumsWithReportDryRun(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("service:\n  name: x\n"), 0600); err != nil {
		t.Fatal(err)
	}

	report, err := GenerateChecksumsWithReport(tmpDir, []string{"config.yaml", "extra.yaml"}, true)
	if err != nil {
		t.Fatalf("GenerateChecksumsWithReport() failed: %v", err)
	}

	if report.Written {
		t.Fatal("report.Written = true, want false in dry-run")
	}
	if len(report.Files) != 2 {
		t.Fatalf("len(report.Files) = %d, want 2", len(report.Files))
	}
	if !report.Files[0].Exists || report.Files[0].Hash == "" {
		t.Fatal("config.yaml should exist with computed hash")
	}
	if report.Files[1].Exists || report.Files[1].Hash != "" {
		t.Fatal("extra.yaml should be reported as missing without hash")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ChecksumFile)); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestGenerateChecksumsWithReportWritesChecksums(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("service:\n  name: x\n"), 0600); err != nil {
		t.Fatal(err)
	}

	report, err := GenerateChecksumsWithReport(tmpDir, []string{"config.yaml"}, false)
	if err != nil {
		t.Fatalf("GenerateChecksumsWithReport() failed: %v", err)
	}
	if !report.Written {
		t.Fatal("report.Written = false, want true")
	}

	info, err := os.Stat(report.ChecksumPath)
	if err != nil {
		t.Fatalf("expected .checksums to be written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf(".checksums mode = %v, want 0600", info.Mode().Perm())
	}

	manifest, err := LoadChecksums(tmpDir)
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	if len(manifest.Hashes) != 1 {
		t.Fatalf("len(manifest.Hashes) = %d, want 1", len(manifest.Hashes))
	}
	if err := VerifyFileHash(filepath.Join(tmpDir, "config.yaml"), manifest.Hashes["config.yaml"]); err != nil {
		t.Fatalf("VerifyFileHash() = %v", err)
	}
}

func TestLoadChecksumsErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := LoadChecksums(tmpDir); !errors.Is(err, ErrNoChecksums) {
		t.Fatalf("LoadChecksums() on empty dir = %v, want ErrNoChecksums", err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, ChecksumFile), []byte("version: 2\nhashes: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChecksums(tmpDir); err == nil {
		t.Fatal("expected unsupported version error")
	}
}

func TestComputeBlake3HashIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("abc"), 0600); err != nil {
		t.Fatal(err)
	}
	a, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ComputeBlake3Hash(path)
	if a != b || len(a) != 64 {
		t.Fatalf("unexpected hashes %q %q", a, b)
	}
	if err := VerifyFileHash(path, "00"); err == nil {
		t.Fatal("expected mismatch")
	}
}
