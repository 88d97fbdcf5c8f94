package manifest

import "os"

// Load reads and parses a ".manifest" file from disk under the given
// format. The format must be known ahead of time (it's implied by the
// algorithm prefix of the store directory name the manifest belongs to).
func Load(path string, f Format) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, f)
}

// Save writes a manifest's canonical bytes to path. Save(Load(x)) is
// byte-identical to the original file for any file this package wrote.
func Save(path string, m *Manifest) error {
	return os.WriteFile(path, m.Bytes(), 0o644)
}
