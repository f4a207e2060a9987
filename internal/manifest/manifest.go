// Package manifest loads and validates the capability manifest a client
// system declares for itself. The manifest is the sync reconciler's input;
// a malformed file is a fatal local validation error and never reaches the
// network.
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/zeebo/blake3"
)

// SystemDescriptor identifies the declaring system.
type SystemDescriptor struct {
	ID          string `json:"id" validate:"required,slug"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Version     string `json:"version" validate:"required"`
	APIURL      string `json:"apiUrl" validate:"omitempty,url"`
}

// FunctionEntry declares one protectable operation.
type FunctionEntry struct {
	Key         string `json:"key" validate:"required,slug"`
	Name        string `json:"name" validate:"required"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Endpoint    string `json:"endpoint"`
}

// Manifest is the full capability declaration document.
type Manifest struct {
	System    SystemDescriptor `json:"system" validate:"required"`
	Functions []FunctionEntry  `json:"functions" validate:"required,min=1,dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Keys are lowercase slugs; the registry enforces the same shape.
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return false
		}
		prevSep := true
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				prevSep = false
			case r == '-' || r == '_':
				if prevSep {
					return false
				}
				prevSep = true
			default:
				return false
			}
		}
		return !prevSep
	})
	return v
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates raw manifest bytes.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("manifest: validate: %w", err)
	}
	seen := make(map[string]struct{}, len(m.Functions))
	for _, fn := range m.Functions {
		if _, dup := seen[fn.Key]; dup {
			return nil, fmt.Errorf("manifest: duplicate function key %q", fn.Key)
		}
		seen[fn.Key] = struct{}{}
	}
	return &m, nil
}

// Hash returns a stable content digest of the manifest. Collision resistance
// is not a correctness requirement here: a false "unchanged" only delays one
// sync interval.
func (m *Manifest) Hash() (string, error) {
	canonical, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
