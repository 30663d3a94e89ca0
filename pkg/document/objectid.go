package document

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/json"
)

// ObjectID is a structured 12-byte reference identifier, the second identifier kind next to
// plain strings.
type ObjectID [12]byte

// NewObjectID returns a random ObjectID.
func NewObjectID() ObjectID {
	var oid ObjectID
	u := uuid.New()
	copy(oid[:], u[:12])
	return oid
}

// ObjectIDFromHex parses the 24-character hex form of an ObjectID.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var oid ObjectID
	if len(s) != 2*len(oid) {
		return oid, fmt.Errorf("invalid ObjectID %q: expected %d hex characters", s, 2*len(oid))
	}
	if _, err := hex.Decode(oid[:], []byte(s)); err != nil {
		return oid, fmt.Errorf("invalid ObjectID %q: %w", s, err)
	}
	return oid, nil
}

// Hex returns the hex representation of the ObjectID.
func (o ObjectID) Hex() string { return hex.EncodeToString(o[:]) }

func (o ObjectID) String() string { return fmt.Sprintf("ObjectID(%q)", o.Hex()) }

// MarshalJSON encodes the ObjectID as {"$oid": "<hex>"}. The "$" prefix is reserved in field
// names, so the encoding cannot collide with a user document.
func (o ObjectID) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"$oid": o.Hex()})
}

// UnmarshalJSON decodes the {"$oid": "<hex>"} form.
func (o *ObjectID) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	h, ok := m["$oid"]
	if !ok {
		return fmt.Errorf("invalid ObjectID encoding %s", string(data))
	}
	oid, err := ObjectIDFromHex(h)
	if err != nil {
		return err
	}
	*o = oid
	return nil
}

// NewStringID returns a random string identifier.
func NewStringID() string { return uuid.NewString() }
