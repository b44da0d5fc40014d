package sha256

import (
	"io"
	"strings"
	"testing"
)

func TestDigestKnownValue(t *testing.T) {
	t.Parallel()

	d := New()
	if _, err := io.WriteString(d, "hello "); err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(d, "world"); err != nil {
		t.Fatal(err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := d.Hex(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if d.Size() != 11 {
		t.Fatalf("expected size 11, got %d", d.Size())
	}
}

func TestDigestTeeReader(t *testing.T) {
	t.Parallel()

	d := New()
	out, err := io.ReadAll(d.TeeReader(strings.NewReader("hello world")))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "hello world" {
		t.Fatalf("tee altered content: %q", out)
	}
	if d.Hex() != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Fatalf("unexpected digest %s", d.Hex())
	}
}
