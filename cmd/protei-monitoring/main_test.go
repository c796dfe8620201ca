package main

import (
	"testing"

	"github.com/protei/monitoring/pkg/decoder"
)

func TestBuildRegistryRegistersOnlyEnabledProtocols(t *testing.T) {
	registry := buildRegistry([]string{"map", "gtp", "nas"})

	for _, want := range []decoder.Protocol{decoder.ProtocolMAP, decoder.ProtocolGTPv2C} {
		if _, ok := registry.Get(want); !ok {
			t.Errorf("expected protocol %q to be registered", want)
		}
	}
	for _, notWant := range []decoder.Protocol{decoder.ProtocolCAP, decoder.ProtocolDiameter, decoder.ProtocolPFCP, decoder.ProtocolHTTP2} {
		if _, ok := registry.Get(notWant); ok {
			t.Errorf("protocol %q should not be registered when not enabled", notWant)
		}
	}
}

func TestBuildRegistryEmptyListRegistersNothing(t *testing.T) {
	registry := buildRegistry(nil)
	if _, ok := registry.Get(decoder.ProtocolMAP); ok {
		t.Error("expected no decoders registered for an empty enabled list")
	}
}
