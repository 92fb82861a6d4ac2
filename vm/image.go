package vm

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Method image: CBOR wire format for method sets
// ---------------------------------------------------------------------------

// cborEncMode uses canonical options so images encode deterministically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

const imageFormatVersion = 1

// Image is the serialized form of a method table.
type Image struct {
	Version int          `cbor:"version"`
	Methods []MethodWire `cbor:"methods"`
}

// MethodWire is the serialized form of one method.
type MethodWire struct {
	Name      string         `cbor:"name"`
	Arity     int            `cbor:"arity"`
	NumLocals int            `cbor:"locals"`
	Literals  []uint64       `cbor:"literals"`
	Bytecode  []byte         `cbor:"bytecode"`
	CallSites []CallSiteWire `cbor:"callsites"`
}

// CallSiteWire is the serialized form of one call site.
type CallSiteWire struct {
	Selector string `cbor:"selector"`
	Argc     int    `cbor:"argc"`
}

// MarshalImage serializes a method table to CBOR bytes.
func MarshalImage(table *MethodTable) ([]byte, error) {
	img := Image{Version: imageFormatVersion}
	for _, m := range table.Methods() {
		img.Methods = append(img.Methods, methodToWire(m))
	}
	return cborEncMode.Marshal(&img)
}

// UnmarshalImage deserializes a method table from CBOR bytes.
// Entry addresses are never serialized; loaded methods start uncompiled.
func UnmarshalImage(data []byte) (*MethodTable, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	if img.Version != imageFormatVersion {
		return nil, fmt.Errorf("vm: unsupported image version %d", img.Version)
	}
	table := NewMethodTable()
	for _, w := range img.Methods {
		table.Define(wireToMethod(w))
	}
	return table, nil
}

// WriteImageFile serializes a method table to an image file.
func WriteImageFile(path string, table *MethodTable) error {
	data, err := MarshalImage(table)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("vm: write image: %w", err)
	}
	return nil
}

// ReadImageFile loads a method table from an image file.
func ReadImageFile(path string) (*MethodTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vm: read image: %w", err)
	}
	return UnmarshalImage(data)
}

func methodToWire(m *Method) MethodWire {
	w := MethodWire{
		Name:      m.Name(),
		Arity:     m.Arity,
		NumLocals: m.NumLocals,
		Bytecode:  m.Bytecode,
	}
	for _, lit := range m.Literals {
		w.Literals = append(w.Literals, uint64(lit))
	}
	for _, cs := range m.CallSites {
		w.CallSites = append(w.CallSites, CallSiteWire{Selector: cs.Selector, Argc: cs.Argc})
	}
	return w
}

func wireToMethod(w MethodWire) *Method {
	m := NewMethod(w.Name, w.Arity)
	m.NumLocals = w.NumLocals
	m.Bytecode = w.Bytecode
	for _, lit := range w.Literals {
		m.Literals = append(m.Literals, Value(lit))
	}
	for _, cs := range w.CallSites {
		m.CallSites = append(m.CallSites, CallSite{Selector: cs.Selector, Argc: cs.Argc})
	}
	return m
}
