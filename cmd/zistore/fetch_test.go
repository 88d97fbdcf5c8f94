package main

import (
	"encoding/json"
	"testing"
)

func TestPlanToFetchRequest(t *testing.T) {
	raw := []byte(`{
		"implementations": [
			{
				"digest": "sha256new=abcdefghijklmnopqrstuvwxyz234567abcdefghijklmnopqrstuvwx",
				"archive": [
					{"url": "https://example.org/a.tar.gz", "size": 1024}
				]
			},
			{
				"digest": "sha256new=zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz",
				"recipe": [
					{"archives": [
						{"url": "https://example.org/base.tar.gz", "size": 2048},
						{"url": "https://example.org/patch.tar.gz", "size": 128}
					]}
				]
			}
		]
	}`)

	var p plan
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	req, err := p.toFetchRequest()
	if err != nil {
		t.Fatalf("toFetchRequest: %v", err)
	}
	if len(req.Implementations) != 2 {
		t.Fatalf("len(Implementations) = %d, want 2", len(req.Implementations))
	}

	first := req.Implementations[0]
	if len(first.Archive) != 1 || first.Archive[0].URL != "https://example.org/a.tar.gz" {
		t.Fatalf("first.Archive = %+v", first.Archive)
	}

	second := req.Implementations[1]
	if len(second.Recipe) != 1 || len(second.Recipe[0].Archives) != 2 {
		t.Fatalf("second.Recipe = %+v", second.Recipe)
	}
}

func TestPlanToFetchRequestInvalidDigest(t *testing.T) {
	p := plan{Implementations: []planImplementation{{Digest: "not-a-digest"}}}
	if _, err := p.toFetchRequest(); err == nil {
		t.Fatal("expected error for invalid digest")
	}
}
