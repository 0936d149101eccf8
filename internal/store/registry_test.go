package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"sdnctl/internal/model"
)

func TestLoadRegistry_MissingFile_ReturnsEmpty(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "flows.yaml")
	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if reg == nil {
		t.Fatalf("registry is nil")
	}
	if reg.Len() != 0 {
		t.Fatalf("flows=%d", reg.Len())
	}
}

func TestSaveRegistry_RoundTrip(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "flows.yaml")

	in := NewRegistry()
	in.Put("h1", "h3", FlowPath{
		Target:      "s1",
		Switches:    []string{"s1", "s2"},
		TrafficType: model.TrafficLighting,
		Score:       0.27,
		DstMAC:      model.MustParseMAC("00:00:00:00:00:03"),
		OutPort:     2,
	})
	if err := SaveRegistry(path, in); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}

	out, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	p, ok := out.Get("h1", "h3")
	if !ok {
		t.Fatalf("flow missing")
	}
	if p.Target != "s1" || len(p.Switches) != 2 || p.TrafficType != model.TrafficLighting || p.OutPort != 2 {
		t.Fatalf("path=%+v", p)
	}
	if p.DstMAC.String() != "00:00:00:00:00:03" {
		t.Fatalf("dst_mac=%s", p.DstMAC)
	}
	if p.Version != 1 {
		t.Fatalf("version=%d", p.Version)
	}
}

func TestPut_KeepsSingleActivePathPerPair(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	first := reg.Put("h1", "h2", FlowPath{Switches: []string{"s1"}})
	second := reg.Put("h1", "h2", FlowPath{Switches: []string{"s1", "s2"}})
	if reg.Len() != 1 {
		t.Fatalf("flows=%d", reg.Len())
	}
	if second.Version != first.Version+1 {
		t.Fatalf("versions=%d,%d", first.Version, second.Version)
	}
	got, _ := reg.Get("h1", "h2")
	if len(got.Switches) != 2 {
		t.Fatalf("switches=%v", got.Switches)
	}
}

func TestSetScore_RejectsStaleVersion(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	p := reg.Put("h1", "h2", FlowPath{Score: 0.1})
	reg.Put("h1", "h2", FlowPath{Score: 0.2})
	if reg.SetScore("h1", "h2", p.Version, 0.9) {
		t.Fatalf("stale version accepted")
	}
	if reg.SetScore("h1", "missing", 1, 0.9) {
		t.Fatalf("missing pair accepted")
	}
	cur, _ := reg.Get("h1", "h2")
	if !reg.SetScore("h1", "h2", cur.Version, 0.9) {
		t.Fatalf("current version rejected")
	}
	cur, _ = reg.Get("h1", "h2")
	if cur.Score != 0.9 {
		t.Fatalf("score=%v", cur.Score)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Put("h1", "h2", FlowPath{Switches: []string{"s1"}})
	p, _ := reg.Get("h1", "h2")
	p.Switches[0] = "mutated"
	again, _ := reg.Get("h1", "h2")
	if again.Switches[0] != "s1" {
		t.Fatalf("registry aliased: %v", again.Switches)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p := reg.Put("h1", "h2", FlowPath{})
			reg.SetScore("h1", "h2", p.Version, 0.5)
		}()
		go func() {
			defer wg.Done()
			_ = reg.Entries()
		}()
	}
	wg.Wait()
	if reg.Len() != 1 {
		t.Fatalf("flows=%d", reg.Len())
	}
}
