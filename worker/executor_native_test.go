//go:build (darwin || freebsd || linux) && !android

package worker

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/mongodb/jasper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upperServiceSource = `
#include <ctype.h>

void service_function(const void *data_in, long long size_in, void *data_out, long long size_out) {
	const unsigned char *in = data_in;
	unsigned char *out = data_out;
	for (long long i = 0; i < size_in && i < size_out; i++) {
		out[i] = (unsigned char)toupper(in[i]);
	}
}
`

const unrelatedLibrarySource = `
int other_function(int x) { return x + 1; }
`

// buildSharedLibrary compiles source into a shared object named
// service_library.so, skipping the test when no C compiler is installed.
func buildSharedLibrary(ctx context.Context, t *testing.T, source string) string {
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler available to build a shared library")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "service.c")
	lib := filepath.Join(dir, "service_library.so")
	require.NoError(t, os.WriteFile(src, []byte(source), 0644))
	require.NoError(t, jasper.NewCommand().Add([]string{cc, "-shared", "-fPIC", "-o", lib, src}).Run(ctx))

	return lib
}

func TestNativeExecutor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("CallsServiceFunction", func(t *testing.T) {
		lib := buildSharedLibrary(ctx, t, upperServiceSource)
		assert.False(t, isGoPlugin(lib))

		executor, err := NewExecutor(lib)
		require.NoError(t, err)
		require.IsType(t, &nativeExecutor{}, executor)

		out, err := executor.Execute(ctx, []byte("abc"))
		require.NoError(t, err)
		assert.Equal(t, "ABC", string(out))

		out, err = executor.Execute(ctx, []byte("second run"))
		require.NoError(t, err)
		assert.Equal(t, "SECOND RUN", string(out))

		out, err = executor.Execute(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
	t.Run("RequiresServiceFunction", func(t *testing.T) {
		lib := buildSharedLibrary(ctx, t, unrelatedLibrarySource)

		_, err := NewExecutor(lib)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "service_function")
	})
}
