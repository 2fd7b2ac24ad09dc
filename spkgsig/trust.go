package spkgsig

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
)

// LoadTrust reads trust material from the keys directory. Each regular file
// holds one base64 raw-url-encoded Ed25519 public key; the file name is the
// signer name. A missing directory yields an empty trust map, which
// disables signature checks.
func LoadTrust(dir string) (map[string]string, error) {
	trust := make(map[string]string)

	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return trust, nil
		}
		return nil, err
	}

	for _, e := range ents {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		key := strings.TrimSpace(string(data))
		if _, err := base64.RawURLEncoding.DecodeString(key); err != nil {
			continue
		}
		trust[key] = e.Name()
	}
	return trust, nil
}
