//go:build mage

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Postgres test container settings.
const (
	postgresContainer = "curator-postgres"
	postgresPassword  = "curator"
	postgresDB        = "curator"
)

var (
	postgresImage = "postgres:16-alpine"
	postgresPort  = "55432"
)

// Postgres manages the Postgres container used by test:postgres.
type Postgres mg.Namespace

// containerRuntime returns "podman" or "docker" if a working runtime
// is available, or "" if neither is usable.
func containerRuntime() string {
	for _, name := range []string{"podman", "docker"} {
		if _, err := exec.LookPath(name); err != nil {
			continue
		}
		if exec.Command(name, "info").Run() != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %s found on PATH but not usable (is the daemon/machine running?)\n", name)
			continue
		}
		return name
	}
	return ""
}

func postgresDSN() string {
	return fmt.Sprintf("postgres://postgres:%s@localhost:%s/%s?sslmode=disable", postgresPassword, postgresPort, postgresDB)
}

// Up starts the container unless it is already running and waits until
// Postgres accepts connections. Accepts --image and --port.
func (Postgres) Up() error {
	fs := flag.NewFlagSet("postgres:up", flag.ContinueOnError)
	fs.StringVar(&postgresImage, "image", postgresImage, "Postgres image")
	fs.StringVar(&postgresPort, "port", postgresPort, "host port")
	parseTargetFlags(fs)

	rt := containerRuntime()
	if rt == "" {
		return fmt.Errorf("no container runtime found (tried podman, docker)")
	}
	if out, _ := sh.Output(rt, "ps", "-q", "-f", "name="+postgresContainer); out != "" {
		return nil
	}
	err := sh.RunV(rt, "run", "-d", "--rm",
		"--name", postgresContainer,
		"-e", "POSTGRES_PASSWORD="+postgresPassword,
		"-e", "POSTGRES_DB="+postgresDB,
		"-p", postgresPort+":5432",
		postgresImage)
	if err != nil {
		return err
	}

	for range 30 {
		if exec.Command(rt, "exec", postgresContainer, "pg_isready", "-U", "postgres").Run() == nil {
			fmt.Fprintln(os.Stderr, "Postgres ready:", postgresDSN())
			return nil
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("postgres did not become ready")
}

// Down stops the container. A missing container is not an error.
func (Postgres) Down() error {
	rt := containerRuntime()
	if rt == "" {
		return nil
	}
	_ = exec.Command(rt, "stop", postgresContainer).Run()
	return nil
}
