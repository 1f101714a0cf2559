package topology

import (
	"os"
	"path/filepath"
	"testing"
)

const sample = `
"201":
  type: extension
  tech: sip
  label: Alice
  extension: "201"
"202":
  type: extension
  tech: iax
  label: Bob
  extension: "202"
trunk-eu:
  type: trunk
  tech: sip
  label: Provider
  trunk: trunk1
  max_channels: 4
support:
  type: queue
  label: Support
  queue: "401"
  dynamic_members: ["201", "202"]
"71":
  type: parking
  label: Parking 71
  extension: "71"
`

func TestParseAndByKind(t *testing.T) {
	reg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 5 {
		t.Fatalf("expected 5 records, got %d", reg.Len())
	}

	exts := reg.ByKind(KindExtension)
	if len(exts) != 2 || exts[0].Key() != "201" || exts[1].Key() != "202" {
		t.Fatalf("unexpected extensions: %+v", exts)
	}
	if exts[1].Tech != "iax" {
		t.Errorf("expected tech=iax, got %s", exts[1].Tech)
	}

	trunks := reg.ByKind(KindTrunk)
	if len(trunks) != 1 || trunks[0].Key() != "trunk1" || trunks[0].MaxChannels != 4 {
		t.Errorf("unexpected trunks: %+v", trunks)
	}

	queues := reg.ByKind(KindQueue)
	if len(queues) != 1 || queues[0].Key() != "401" || queues[0].ID != "support" {
		t.Fatalf("unexpected queues: %+v", queues)
	}
	if len(queues[0].DynamicMembers) != 2 {
		t.Errorf("expected 2 dynamic members, got %v", queues[0].DynamicMembers)
	}

	if rec, ok := reg.Get("71"); !ok || rec.Type != KindParking {
		t.Errorf("expected parking 71, got %+v", rec)
	}
}

func TestRejectsUnknownType(t *testing.T) {
	_, err := Parse([]byte(`x: {type: fax}`))
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestRejectsUnsupportedTech(t *testing.T) {
	_, err := Parse([]byte(`"201": {type: extension, tech: dahdi}`))
	if err == nil {
		t.Fatal("expected error for unsupported tech")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reg.ByKind(KindParking)) != 1 {
		t.Error("expected one parking")
	}
}
