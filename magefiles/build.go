//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the demo binary into bin/.
func (Build) Demo() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/fresco", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Validates the demo shaders with naga. Needs cargo install naga-cli.
func (Build) Shaders() error {
	for _, shader := range []string{"scene", "post", "particles"} {
		if _, err := executeCmd("naga", withArgs("assets/shaders/"+shader+".wgsl"), withStream()); err != nil {
			return err
		}
	}
	return nil
}
