// +build mage

package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/magefile/mage/sh"
)

const versionPkg = "github.com/naveego/zenhub-tap/cmd"

// Default target to run when none is specified
var Default = Build

// Build compiles bin/zenhub-tap with the version, timestamp and commit stamped in.
func Build() error {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		commit = "unknown"
	}

	ldflags := strings.Join([]string{
		fmt.Sprintf("-X %s.version=%s", versionPkg, version),
		fmt.Sprintf("-X %s.timestamp=%s", versionPkg, time.Now().UTC().Format(time.RFC3339)),
		fmt.Sprintf("-X %s.commit=%s", versionPkg, commit),
	}, " ")

	check(sh.RunV("go", "build", "-ldflags", ldflags, "-o", "bin/zenhub-tap", "."))
	return nil
}

// Test runs every ginkgo suite.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

func check(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
