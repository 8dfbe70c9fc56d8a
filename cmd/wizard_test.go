package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"agriaid/crop"
)

func TestLoadPhoto(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "leaf.png")
	if err := os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644); err != nil {
		t.Fatal(err)
	}
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("just some notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	if img, err := loadPhoto("  "); err != nil || img != nil {
		t.Fatalf("empty path should mean no photo, got %v %v", img, err)
	}
	img, err := loadPhoto(png)
	if err != nil || img.MimeType != "image/png" {
		t.Fatalf("unexpected %+v %v", img, err)
	}

	var ve *crop.ValidationError
	if _, err := loadPhoto(txt); !errors.As(err, &ve) || ve.Message != crop.MsgInvalidImage {
		t.Fatalf("expected invalid image, got %v", err)
	}
	if _, err := loadPhoto(filepath.Join(dir, "missing.jpg")); !errors.As(err, &ve) || ve.Message != crop.MsgUnreadable {
		t.Fatalf("expected unreadable image, got %v", err)
	}
}

func TestDiseaseOptions_OnlySelectable(t *testing.T) {
	opts := diseaseOptions([]crop.DiseaseInfo{
		{Name: "Rust", ImageURL: "data:image/jpeg;base64,AA=="},
		{Name: "Smut"},
		{Name: "Blast", ImageURL: "data:image/png;base64,AA=="},
	})
	if len(opts) != 3 {
		t.Fatalf("expected 2 diseases plus start over, got %d", len(opts))
	}
	if opts[0].Value != "Rust" || opts[1].Value != "Blast" || opts[2].Value != startOver {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestWriteImages(t *testing.T) {
	dir := t.TempDir()
	ds := []crop.DiseaseInfo{
		{Name: "Early Blight", ImageURL: crop.DataURI("image/jpeg", []byte("jpeg-bytes"))},
		{Name: "Leaf Mold"},
		{Name: "Mosaic Virus (ToMV)", ImageURL: crop.DataURI("image/png", []byte("png-bytes"))},
	}
	paths, err := writeImages(dir, ds)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 files, got %v", paths)
	}
	if filepath.Base(paths["Early Blight"]) != "1-early-blight.jpg" || filepath.Base(paths["Mosaic Virus (ToMV)"]) != "3-mosaic-virus-tomv.png" {
		t.Fatalf("unexpected paths %v", paths)
	}
	b, _ := os.ReadFile(paths["Early Blight"])
	if string(b) != "jpeg-bytes" {
		t.Fatalf("unexpected content %q", b)
	}
}

func TestRenderPlan(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	renderPlan(&buf, "Late Blight", crop.SolutionInfo{
		ImmediateActions:      []string{"Remove infected plants"},
		RecommendedTreatments: []string{"Apply mancozeb"},
		LongTermPrevention:    []string{"Plant resistant varieties"},
	})
	out := buf.String()
	for _, want := range []string{"Action plan for Late Blight", "Immediate Actions", "• Remove infected plants", "Recommended Treatments", "Long-Term Prevention"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderDiseases(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	renderDiseases(&buf, []crop.DiseaseInfo{{Name: "Rust", Description: "Orange pustules."}, {Name: "Smut", Description: "Black galls."}},
		map[string]string{"Rust": "/tmp/1-rust.jpg"})
	out := buf.String()
	if !strings.Contains(out, "1. Rust") || !strings.Contains(out, "image: /tmp/1-rust.jpg") || !strings.Contains(out, "image: unavailable") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
