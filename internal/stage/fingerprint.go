package stage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
)

// Fingerprint identifies what an invocation computes: the stage, the
// instance address, the configuration and every bound input. File inputs
// contribute their size and modification time, so touching an input
// invalidates cached results. The output directory is excluded.
func (inv *Invocation) Fingerprint() (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "stage=%s\naddress=%s\n", inv.Spec.Name, inv.Address.String())

	cfg, err := json.Marshal(inv.Config)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: config: %w", inv.Address.String(), err)
	}
	fmt.Fprintf(h, "config=%s\n", cfg)

	for _, port := range slices.Sorted(maps.Keys(inv.Inputs)) {
		for i, v := range inv.Inputs[port] {
			fmt.Fprintf(h, "in %s[%d]=%s", port, i, v)
			writeFileStamp(h, v)
			io.WriteString(h, "\n")
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeFileStamp(w io.Writer, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	fmt.Fprintf(w, " size=%d mtime=%d", info.Size(), info.ModTime().UnixNano())
}
