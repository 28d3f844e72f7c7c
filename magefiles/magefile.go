//go:build mage

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/joho/godotenv"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Build compiles the server and the CLI into ./bin.
func Build() error {
	mg.Deps(Tidy)
	fmt.Println(">> Building binaries...")
	if err := sh.Run("go", "build", "-o", "bin/paystub-server", "./cmd/server"); err != nil {
		return err
	}
	return sh.Run("go", "build", "-o", "bin/paystubctl", "./cmd/paystubctl")
}

// Run builds then starts the HTTP server.
func Run() error {
	mg.Deps(Build)
	fmt.Println(">> Starting server...")
	return sh.RunV("./bin/paystub-server")
}

// Tidy runs go mod tidy.
func Tidy() error {
	fmt.Println(">> go mod tidy...")
	return sh.Run("go", "mod", "tidy")
}

// Test runs all unit tests with the race detector.
func Test() error {
	fmt.Println(">> Running tests...")
	return sh.RunV("go", "test", "-race", "./...")
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Lint runs golangci-lint if available.
func Lint() error {
	mg.Deps(Vet)
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		fmt.Println(">> golangci-lint not found; skipping.")
		return nil
	}
	return sh.Run("golangci-lint", "run", "./...")
}

// Clean removes build artifacts and the local ledger.
func Clean() error {
	fmt.Println(">> Cleaning...")
	if err := os.RemoveAll("bin"); err != nil {
		return err
	}
	if err := os.RemoveAll("out"); err != nil {
		return err
	}
	ledger := os.Getenv("LEDGER_PATH")
	if ledger == "" {
		ledger = "paystub.db"
	}
	if err := os.Remove(ledger); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("error loading .env file", "err", err)
	}
}
