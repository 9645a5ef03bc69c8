package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0750))
	require.NoError(t, os.WriteFile(full, []byte("x"), 0644))
}

func paths(files []SourceFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func TestScan_ReturnsSortedRelativePaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "zeta.md")
	writeFile(t, root, "alpha.html")
	writeFile(t, root, "docs/guide.md")

	files, err := New(root, "", "").Scan()
	require.NoError(t, err)
	require.Equal(t, []string{"alpha.html", "docs/guide.md", "zeta.md"}, paths(files))
}

func TestScan_SkipsHiddenAndVCSDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "page.md")
	writeFile(t, root, ".git/config")
	writeFile(t, root, ".hidden/file.md")
	writeFile(t, root, "node_modules/pkg/index.js")
	writeFile(t, root, "vendor/lib.go")
	writeFile(t, root, ".DS_Store")
	writeFile(t, root, ".htaccess")

	files, err := New(root, "", "").Scan()
	require.NoError(t, err)
	// .htaccess is the one hidden file deployments legitimately ship.
	require.Equal(t, []string{".htaccess", "page.md"}, paths(files))
}

func TestScan_ExcludesNestedOutputAndCacheDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "page.md")
	writeFile(t, root, "build/old.html")
	writeFile(t, root, "cachedir/cache.db")

	files, err := New(root, filepath.Join(root, "build"), filepath.Join(root, "cachedir")).Scan()
	require.NoError(t, err)
	require.Equal(t, []string{"page.md"}, paths(files))
}

func TestScan_MissingRoot_Fails(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), "", "").Scan()
	require.Error(t, err)
}

func TestScan_EmptyTree(t *testing.T) {
	files, err := New(t.TempDir(), "", "").Scan()
	require.NoError(t, err)
	require.Empty(t, files)
}
