package replica

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func testAuthDB(t *testing.T) *AuthDB {
	t.Helper()

	dir, err := ioutil.TempDir("", "replica")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := OpenAuthDB(filepath.Join(dir, "auth.sqlite"))
	if err != nil {
		t.Fatalf("OpenAuthDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestVerifierRoundTrip(t *testing.T) {
	db := testAuthDB(t)

	record, err := db.Verifier("nobody")
	if err != nil {
		t.Fatalf("Verifier: %v", err)
	}
	if record != "" {
		t.Fatalf("unknown name has record %q", record)
	}

	want := encodeVerifierAndSalt([]byte("salt"), []byte("verifier"))
	if err := db.SetVerifier("player1", want); err != nil {
		t.Fatalf("SetVerifier: %v", err)
	}

	record, err = db.Verifier("player1")
	if err != nil {
		t.Fatalf("Verifier: %v", err)
	}
	if record != want {
		t.Fatalf("record = %q, want %q", record, want)
	}

	s, v, err := decodeVerifierAndSalt(record)
	if err != nil {
		t.Fatalf("decodeVerifierAndSalt: %v", err)
	}
	if !bytes.Equal(s, []byte("salt")) || !bytes.Equal(v, []byte("verifier")) {
		t.Fatalf("decoded %q, %q", s, v)
	}
}

func TestDecodeMalformedVerifier(t *testing.T) {
	if _, _, err := decodeVerifierAndSalt("no separator"); err == nil {
		t.Fatal("malformed record must fail")
	}
}

func TestBanRoundTrip(t *testing.T) {
	db := testAuthDB(t)

	banned, _, err := db.IsBanned("203.0.113.7")
	if err != nil {
		t.Fatalf("IsBanned: %v", err)
	}
	if banned {
		t.Fatal("fresh database bans addresses")
	}

	if err := db.Ban("203.0.113.7", "griefer"); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	banned, name, err := db.IsBanned("203.0.113.7")
	if err != nil {
		t.Fatalf("IsBanned: %v", err)
	}
	if !banned || name != "griefer" {
		t.Fatalf("IsBanned = %v, %q", banned, name)
	}

	if err := db.Unban("griefer"); err != nil {
		t.Fatalf("Unban: %v", err)
	}

	banned, _, err = db.IsBanned("203.0.113.7")
	if err != nil {
		t.Fatalf("IsBanned: %v", err)
	}
	if banned {
		t.Fatal("unban did not lift the ban")
	}
}
