package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// stage replaces workdir/deployDir with the results of the build at
// src: the builder log, the contents of src/target when present, and
// a synthesized index.html for every directory that lacks one.
func stage(workdir, deployDir, src string) error {
	out := filepath.Join(workdir, deployDir)
	if err := os.RemoveAll(out); err != nil {
		return err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}

	if err := copyFile(filepath.Join(src, builderLogName), filepath.Join(out, builderLogName)); err != nil {
		return fmt.Errorf("copy build log: %w", err)
	}

	target := filepath.Join(src, "target")
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		if err := os.CopyFS(out, os.DirFS(target)); err != nil {
			return fmt.Errorf("copy build artifacts: %w", err)
		}
	}

	return generateIndexes(out)
}

// generateIndexes writes a directory listing as index.html into dir
// and every directory below it. An existing index.html is never
// overwritten; the listing is taken before the index is written so it
// never lists itself.
func generateIndexes(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}

	if !slices.Contains(names, "index.html") {
		var b strings.Builder
		b.WriteString("<html><body><ul>\n")
		for _, c := range names {
			fmt.Fprintf(&b, "<li><a href='%s'>%s</a></li>\n", c, c)
		}
		b.WriteString("</ul></body></html>\n")
		if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(b.String()), 0o644); err != nil {
			return err
		}
	}

	for _, e := range entries {
		if e.IsDir() {
			if err := generateIndexes(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
