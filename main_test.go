package main

import (
	"testing"

	"github.com/giantswarm/muster-fabric/cmd"
)

func TestVersionDefault(t *testing.T) {
	if version != "dev" {
		t.Errorf("expected default version to be 'dev', got %s", version)
	}
}

func TestSetVersionPropagatesToCmd(t *testing.T) {
	original := version
	defer func() { version = original }()

	version = "1.2.3"
	cmd.SetVersion(version)
	if got := cmd.GetVersion(); got != "1.2.3" {
		t.Errorf("expected cmd version to be 1.2.3, got %s", got)
	}
}
