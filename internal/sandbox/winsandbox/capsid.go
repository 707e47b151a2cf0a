// Package winsandbox implements the Windows sandbox pieces: persistent
// capability SIDs, DPAPI secret protection, deny-write ACLs and the named
// mutex that gates one-time ACL setup. The cap-SID file logic is portable so
// it can be exercised on every platform.
package winsandbox

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CapSidFileName is the per-codex-home file holding the two capability SID
// strings.
const CapSidFileName = "cap_sid"

// CapSids are the two randomly generated capability SIDs used to build
// restricted access tokens: one granting workspace write, one for read-only
// sessions. Generated once per codex home and immutable afterwards, so ACLs
// stamped in earlier sessions keep matching.
type CapSids struct {
	Workspace string `json:"workspace"`
	Readonly  string `json:"readonly"`
}

// CapSidFile returns the path of the cap-SID file under codexHome.
func CapSidFile(codexHome string) string {
	return filepath.Join(codexHome, CapSidFileName)
}

// LoadOrCreateCapSids returns the persisted capability SIDs, creating and
// persisting them on first use. A legacy file holding a single bare SID
// string (written before the readonly capability existed) is migrated to the
// JSON form, keeping the legacy SID as the workspace capability.
func LoadOrCreateCapSids(codexHome string) (CapSids, error) {
	path := CapSidFile(codexHome)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if caps, ok := decodeCapSids(data); ok {
			if caps.Readonly == "" {
				caps.Readonly = newCapabilitySid()
				if err := writeCapSids(path, caps); err != nil {
					return CapSids{}, err
				}
			}
			return caps, nil
		}
		return CapSids{}, fmt.Errorf("winsandbox: unrecognized cap_sid content in %s", path)
	case os.IsNotExist(err):
		caps := CapSids{Workspace: newCapabilitySid(), Readonly: newCapabilitySid()}
		if err := os.MkdirAll(codexHome, 0o700); err != nil {
			return CapSids{}, fmt.Errorf("winsandbox: create codex home: %w", err)
		}
		if err := writeCapSids(path, caps); err != nil {
			return CapSids{}, err
		}
		return caps, nil
	default:
		return CapSids{}, fmt.Errorf("winsandbox: read %s: %w", path, err)
	}
}

func decodeCapSids(data []byte) (CapSids, bool) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var caps CapSids
		if err := json.Unmarshal([]byte(trimmed), &caps); err != nil || caps.Workspace == "" {
			return CapSids{}, false
		}
		return caps, true
	}
	// Legacy format: the file held one bare SID string.
	if strings.HasPrefix(trimmed, "S-1-") {
		return CapSids{Workspace: trimmed}, true
	}
	return CapSids{}, false
}

func writeCapSids(path string, caps CapSids) error {
	data, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("winsandbox: encode cap sids: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("winsandbox: write %s: %w", path, err)
	}
	return nil
}

// newCapabilitySid generates a random capability SID (S-1-15-3 authority
// with four random subauthorities).
func newCapabilitySid() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("winsandbox: crypto/rand unavailable: %v", err))
	}
	return fmt.Sprintf("S-1-15-3-%d-%d-%d-%d",
		binary.LittleEndian.Uint32(buf[0:4]),
		binary.LittleEndian.Uint32(buf[4:8]),
		binary.LittleEndian.Uint32(buf[8:12]),
		binary.LittleEndian.Uint32(buf[12:16]))
}
