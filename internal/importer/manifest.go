// Package importer bulk-loads lenders and their criteria sheets from a JSON
// manifest.
package importer

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"lender_directory/internal/domain"
)

// Entry is one lender in the manifest; Sheets point at files relative to
// the manifest.
type Entry struct {
	domain.LenderInput
	Sheets []SheetRef `json:"sheets,omitempty"`
}

type SheetRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type Manifest struct {
	Lenders []Entry `json:"lenders"`
}

// Load reads the manifest and every sheet it references.
func Load(path string) ([]domain.LenderInput, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	base := filepath.Dir(path)

	out := make([]domain.LenderInput, 0, len(m.Lenders))
	for i, e := range m.Lenders {
		in := e.LenderInput
		for _, s := range e.Sheets {
			doc, err := readSheet(base, s)
			if err != nil {
				return nil, fmt.Errorf("lender %d (%s): %w", i, in.Name, err)
			}
			in.Documents = append(in.Documents, doc)
		}
		out = append(out, in)
	}
	return out, nil
}

func readSheet(base string, s SheetRef) (domain.Document, error) {
	p := s.Path
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return domain.Document{}, err
	}
	name := s.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
	if ct == "" {
		ct = "application/pdf"
	}
	return domain.Document{Name: name, FileName: filepath.Base(p), ContentType: ct, Data: data}, nil
}
