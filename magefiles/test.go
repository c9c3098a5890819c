//go:build mage

package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// envPostgresDSN enables the Postgres storage tests.
const envPostgresDSN = "CURATOR_TEST_POSTGRES_DSN"

// Test groups test targets.
type Test mg.Namespace

// All runs every test.
func (Test) All() error {
	return sh.RunV(binGo, "test", "./...")
}

// Race runs every test with the race detector.
func (Test) Race() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Cover runs every test and writes a coverage profile to bin/.
func (Test) Cover() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	profile := filepath.Join(binaryDir, "coverage.out")
	if err := sh.RunV(binGo, "test", "-coverprofile", profile, "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func", profile)
}

// Postgres starts the Postgres container and runs the storage and
// executor tests against it.
func (Test) Postgres() error {
	mg.Deps(Postgres.Up)
	env := map[string]string{envPostgresDSN: postgresDSN()}
	return sh.RunWithV(env, binGo, "test", "./internal/sqlstore/...", "./internal/executor/...")
}
