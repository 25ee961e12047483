//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Vets and compiles every package.
func (Build) All() error {
	if _, err := executeCmd("go", withArgs("vet", "./..."), withStream()); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "./..."), withStream())
	return err
}

// Runs the unit tests with the race detector.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream())
	return err
}

// Runs the tests of the packages that need neither a GPU nor a display.
func TestHeadless() error {
	_, err := executeCmd("go", withArgs("test", "-count=1",
		"./engine/core/...", "./engine/config/...", "./engine/containers/...", "./engine/math/...",
		"./engine/resource/...", "./engine/renderer/device/...", "./engine/renderer/buffer/...",
		"./engine/renderer/headless/...", "./engine/renderer/vertexarray/...", "./engine/scene/...",
	), withStream())
	return err
}
