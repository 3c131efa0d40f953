package intentdoc

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/intentmarket/internal/apperr"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Label 10k images\ncategory: data\n---\nBounding boxes for street scenes.\n\nDeadline: Friday.\n")
	m, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Title != "Label 10k images" || m.Category != "data" {
		t.Errorf("frontmatter = %+v", m.Frontmatter)
	}
	if m.Description != "Bounding boxes for street scenes.\n\nDeadline: Friday." {
		t.Errorf("description = %q", m.Description)
	}
	args, err := m.Args()
	if err != nil {
		t.Fatal(err)
	}
	if args.Category == nil || *args.Category != "data" {
		t.Errorf("category arg = %v", args.Category)
	}
}

func TestParse_HeadingFallback(t *testing.T) {
	m, err := Parse([]byte("# Offering GPU hours\nA100s, weekends only.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Title != "Offering GPU hours" {
		t.Errorf("title = %q", m.Title)
	}
	if m.Description != "A100s, weekends only." {
		t.Errorf("description = %q", m.Description)
	}
	args, _ := m.Args()
	if args.Category != nil {
		t.Errorf("empty category should be None, got %q", *args.Category)
	}
}

func TestParse_NoTitle(t *testing.T) {
	if _, err := Parse([]byte("just text\n")); !errors.Is(err, ErrNoTitle) {
		t.Errorf("err = %v, want ErrNoTitle", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n")); err == nil {
		t.Error("expected error for invalid frontmatter")
	}
}

func TestArgs_Bounds(t *testing.T) {
	cases := []struct {
		name string
		m    Manifest
	}{
		{"title", Manifest{Frontmatter: Frontmatter{Title: strings.Repeat("t", 256)}}},
		{"category", Manifest{Frontmatter: Frontmatter{Title: "t", Category: strings.Repeat("c", 51)}}},
		{"description", Manifest{Frontmatter: Frontmatter{Title: "t"}, Description: strings.Repeat("d", 1001)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.m.Args(); !errors.Is(err, apperr.ErrFieldTooLong) {
				t.Errorf("err = %v, want ErrFieldTooLong", err)
			}
		})
	}
}
