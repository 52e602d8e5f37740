//go:build mage
// +build mage

package main

import (
	"log"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// Build compiles the midi-macros binary.
func Build() {
	must(sh.Run("go", "build", "./cmd/midi-macros"))
}

// Vet runs go vet over every package.
func Vet() {
	must(sh.Run("go", "vet", "./..."))
}

// Test runs the full test suite.
func Test() {
	mg.Deps(Vet)
	must(sh.Run("go", "test", "./..."))
}

// Install installs the binary into GOPATH/bin.
func Install() {
	must(sh.Run("go", "install", "./cmd/midi-macros"))
}

// Clean removes the built binary.
func Clean() {
	must(sh.Rm("midi-macros"))
}
