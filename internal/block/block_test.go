package block_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jmerrifield20/starnotary/internal/block"
)

func sealed(body []byte) *block.Record {
	r := block.New(body)
	r.Height = 4
	r.Time = 1_700_000_000
	r.PreviousHash = "abc123"
	r.Hash = block.ComputeHash(r)
	return r
}

func TestComputeHash_deterministic(t *testing.T) {
	a := sealed([]byte(`{"genesis":true}`))
	b := sealed([]byte(`{"genesis":true}`))
	if a.Hash != b.Hash {
		t.Errorf("hash not deterministic: %q vs %q", a.Hash, b.Hash)
	}
	if len(a.Hash) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a.Hash))
	}
}

func TestComputeHash_coversEveryField(t *testing.T) {
	base := sealed([]byte("x"))

	mutations := map[string]func(r *block.Record){
		"height":        func(r *block.Record) { r.Height++ },
		"time":          func(r *block.Record) { r.Time++ },
		"previous_hash": func(r *block.Record) { r.PreviousHash = "def456" },
		"body":          func(r *block.Record) { r.Body = []byte("y") },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			r := base.Clone()
			mutate(r)
			if block.ComputeHash(r) == base.Hash {
				t.Errorf("changing %s did not change the hash", name)
			}
			if r.SelfCheck() {
				t.Errorf("SelfCheck passed after changing %s", name)
			}
		})
	}
}

func TestSelfCheck_unsetHash(t *testing.T) {
	if block.New([]byte("x")).SelfCheck() {
		t.Error("shell record must not pass SelfCheck")
	}
}

func TestNew_copiesBody(t *testing.T) {
	body := []byte("abc")
	r := block.New(body)
	body[0] = 'z'
	if string(r.Body) != "abc" {
		t.Errorf("New must copy its body, got %q", r.Body)
	}
}

func TestClone_isDeep(t *testing.T) {
	r := sealed([]byte("abc"))
	cp := r.Clone()
	cp.Body[0] = 'z'
	if string(r.Body) != "abc" {
		t.Error("Clone shares the body slice")
	}
}

func TestJSONCodec_genesis(t *testing.T) {
	var codec block.JSONCodec
	b, err := codec.Encode(block.GenesisPayload())
	if err != nil {
		t.Fatal(err)
	}
	p, err := codec.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Genesis {
		t.Error("expected genesis sentinel")
	}
	if _, ok := p.StarRecord(); ok {
		t.Error("genesis payload must not expose a StarRecord")
	}
}

func TestJSONCodec_star(t *testing.T) {
	var codec block.JSONCodec
	star := json.RawMessage(`{ "ra": "16h 29m 1.0s", "dec": "-26° 29' 24.9", "story": "found it" }`)
	b, err := codec.Encode(block.NewStarPayload("owner-a", star))
	if err != nil {
		t.Fatal(err)
	}

	r := sealed(b)
	p, err := r.Decode(codec)
	if err != nil {
		t.Fatal(err)
	}
	sr, ok := p.StarRecord()
	if !ok {
		t.Fatal("expected star record")
	}
	if sr.Owner != "owner-a" {
		t.Errorf("Owner: got %q", sr.Owner)
	}
	var fields map[string]string
	if err := json.Unmarshal(sr.Star, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["story"] != "found it" {
		t.Errorf("story: got %q", fields["story"])
	}
}

func TestJSONCodec_encodeRejectsInvalid(t *testing.T) {
	var codec block.JSONCodec
	cases := map[string]block.Payload{
		"no owner":       block.NewStarPayload("", json.RawMessage(`{}`)),
		"no star":        block.NewStarPayload("a", nil),
		"null star":      block.NewStarPayload("a", json.RawMessage(`null`)),
		"invalid json":   block.NewStarPayload("a", json.RawMessage(`{`)),
		"genesis + star": {Genesis: true, Owner: "a"},
	}
	for name, p := range cases {
		if _, err := codec.Encode(p); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestJSONCodec_decodeErrors(t *testing.T) {
	var codec block.JSONCodec
	for _, body := range []string{
		"Genesis Block",
		`{"owner":"a"}`,
		`{"unknown":1}`,
		``,
		`{"genesis":true}{"owner":"x","star":1} trailing junk`,
		`{"genesis":true} x`,
	} {
		_, err := codec.Decode([]byte(body))
		if !errors.Is(err, block.ErrDecode) {
			t.Errorf("Decode(%q): expected ErrDecode, got %v", body, err)
		}
	}
}
