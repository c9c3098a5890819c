//go:build mage

// Package main provides build targets for curator using Mage.
//
// Usage:
//
//	mage build            Compile the curator binary to bin/
//	mage install          Install curator to GOPATH/bin
//	mage clean            Remove build artifacts
//	mage test:all         Run every test
//	mage test:race        Run every test with the race detector
//	mage test:cover       Write coverage to bin/coverage.out
//	mage test:postgres    Run storage tests against a Postgres container
//	mage postgres:up      Start the Postgres test container
//	mage postgres:down    Stop it
//	mage lint             Run golangci-lint
//	mage stats            Summarize the rows held in a data directory
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "curator"
	binaryDir  = "bin"
	cmdDir     = "./cmd/curator"
	versionVar = "github.com/mesh-intelligence/curator/internal/cli.Version"
)

// ldflags stamps the version from the nearest git tag when there is one.
func ldflags() string {
	out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || out == "" {
		return ""
	}
	return "-X " + versionVar + "=" + strings.TrimPrefix(out, "v")
}

// Build compiles the curator binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	args := []string{"build", "-v", "-o", filepath.Join(binaryDir, binaryName)}
	if f := ldflags(); f != "" {
		args = append(args, "-ldflags", f)
	}
	return sh.RunV(binGo, append(args, cmdDir)...)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
