package replica

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// AuthDB stores SRP credentials and the ban list of a session.
type AuthDB struct {
	*sql.DB
}

// OpenAuthDB opens (and if necessary creates) the sqlite database
// backing authentication and bans.
func OpenAuthDB(path string) (*AuthDB, error) {
	if path == "" {
		path = "auth.sqlite"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	tables := `CREATE TABLE IF NOT EXISTS auth (
		name VARCHAR(32) PRIMARY KEY NOT NULL,
		verifier VARCHAR(512) NOT NULL
	);
	CREATE TABLE IF NOT EXISTS ban (
		addr VARCHAR(39) NOT NULL,
		name VARCHAR(32) NOT NULL
	);
	`

	if _, err := db.Exec(tables); err != nil {
		db.Close()
		return nil, err
	}

	return &AuthDB{DB: db}, nil
}

// encodeVerifierAndSalt encodes an SRP salt and verifier into one
// DB-ready string.
func encodeVerifierAndSalt(s, v []byte) string {
	return base64.StdEncoding.EncodeToString(s) + "#" + base64.StdEncoding.EncodeToString(v)
}

// decodeVerifierAndSalt is the inverse of encodeVerifierAndSalt.
func decodeVerifierAndSalt(src string) ([]byte, []byte, error) {
	parts := strings.SplitN(src, "#", 2)
	if len(parts) != 2 {
		return nil, nil, errors.New("malformed verifier record")
	}

	s, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, err
	}

	v, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, err
	}

	return s, v, nil
}

// Verifier returns the stored salt#verifier record of name, or "" if
// the name was never seen.
func (db *AuthDB) Verifier(name string) (string, error) {
	var r string

	err := db.QueryRow(`SELECT verifier FROM auth WHERE name = ?;`, name).Scan(&r)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	return r, nil
}

// SetVerifier inserts or replaces the salt#verifier record of name.
func (db *AuthDB) SetVerifier(name, record string) error {
	_, err := db.Exec(`REPLACE INTO auth (name, verifier) VALUES (?, ?);`, name, record)
	return err
}

// IsBanned reports whether addr is banned and under which name.
func (db *AuthDB) IsBanned(addr string) (bool, string, error) {
	var name string

	err := db.QueryRow(`SELECT name FROM ban WHERE addr = ?;`, addr).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, "", nil
		}
		return true, "", err
	}

	return true, name, nil
}

// Ban adds addr to the ban list.
func (db *AuthDB) Ban(addr, name string) error {
	_, err := db.Exec(`INSERT INTO ban (addr, name) VALUES (?, ?);`, addr, name)
	return err
}

// Unban removes a ban list entry by name or address.
func (db *AuthDB) Unban(key string) error {
	_, err := db.Exec(`DELETE FROM ban WHERE name = ? OR addr = ?;`, key, key)
	return err
}
