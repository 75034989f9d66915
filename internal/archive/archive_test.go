package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageKey(t *testing.T) {
	t.Parallel()

	key := PageKey("run-1", "https://www.megamarket.example/product/phone-x-111/?at=z")
	require.Equal(t, "run-1/www.megamarket.example_product_phone-x-111__at_z.html", key)
}

func TestMemorySavePageCopiesHTML(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	payload := []byte("<html>page</html>")
	uri, err := m.SavePage(context.Background(), "run-1/page.html", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://run-1/page.html", uri)

	payload[1] = 'H'
	require.Equal(t, "<html>page</html>", string(m.Page("run-1/page.html")))
	require.Equal(t, 1, m.Len())
}

func TestLocalSavePageWritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.NoError(t, err)

	uri, err := l.SavePage(context.Background(), "run-1/page.html", []byte("<html/>"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"), "unexpected uri %s", uri)

	data, err := os.ReadFile(filepath.Join(dir, "run-1", "page.html"))
	require.NoError(t, err)
	require.Equal(t, "<html/>", string(data))
}

func TestLocalSavePageRejectsEscapingKey(t *testing.T) {
	t.Parallel()

	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = l.SavePage(context.Background(), "../outside.html", []byte("x"))
	require.Error(t, err)
}
