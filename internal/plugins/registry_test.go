package plugins

import (
	"errors"
	"testing"

	"github.com/antigravity-dev/boa/internal/boaerr"
	"github.com/antigravity-dev/boa/internal/specfile"
)

type fakeSampler struct{ name string }

func (f fakeSampler) Name() string                  { return f.name }
func (f fakeSampler) DefaultParams() map[string]any { return map[string]any{} }
func (f fakeSampler) Sample(spec *specfile.ProcessSpec, n int, params map[string]any) ([][]float64, error) {
	return nil, nil
}
func (f fakeSampler) SampleRaw(spec *specfile.ProcessSpec, n int, params map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func TestRegistrySamplerRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.RegisterSampler(fakeSampler{name: "lhs"})

	got, err := r.Sampler("lhs")
	if err != nil {
		t.Fatalf("Sampler(lhs) failed: %v", err)
	}
	if got.Name() != "lhs" {
		t.Fatalf("got sampler %q, want lhs", got.Name())
	}
}

func TestRegistryUnknownNameReturnsPluginNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Sampler("does-not-exist")
	if err == nil {
		t.Fatal("expected an error for an unregistered sampler name")
	}
	if !errors.Is(err, boaerr.PluginNotFound) {
		t.Fatalf("expected PluginNotFound, got %v", err)
	}
}

func TestRegistryNamesAreSorted(t *testing.T) {
	r := NewRegistry()
	r.RegisterSampler(fakeSampler{name: "sobol"})
	r.RegisterSampler(fakeSampler{name: "lhs"})
	r.RegisterSampler(fakeSampler{name: "random"})

	names := r.SamplerNames()
	want := []string{"lhs", "random", "sobol"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestRegistryPartitionsAreIndependent(t *testing.T) {
	r := NewRegistry()
	r.RegisterSampler(fakeSampler{name: "shared-name"})

	if _, err := r.Model("shared-name"); err == nil {
		t.Fatal("expected model partition to not see the sampler registration")
	}
}
