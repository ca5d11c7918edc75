package fileproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	tmpDir := t.TempDir()

	files := []string{
		createTestFile(t, tmpDir, "file1.py", "def main():\n    pass\n"),
		createTestFile(t, tmpDir, "file2.py", "def test():\n    pass\n"),
		createTestFile(t, tmpDir, "file3.py", "x = 1\n"),
	}

	results, errs := Map(context.Background(), files, 0, filepath.Base, func(_ context.Context, path string) (int, error) {
		data, err := os.ReadFile(path)
		return len(data), err
	}, nil)

	assert.Nil(t, errs)
	assert.Equal(t, []int{21, 21, 6}, results, "results keep input order")
}

func TestMap_EmptyList(t *testing.T) {
	results, errs := Map(context.Background(), nil, 0, filepath.Base, func(_ context.Context, path string) (string, error) {
		return path, nil
	}, nil)

	assert.Nil(t, results)
	assert.Nil(t, errs)
}

func TestMap_WithErrors(t *testing.T) {
	tmpDir := t.TempDir()
	files := []string{
		createTestFile(t, tmpDir, "good1.py", ""),
		createTestFile(t, tmpDir, "bad.py", ""),
		createTestFile(t, tmpDir, "good2.py", ""),
	}

	var processed atomic.Int32
	label := func(path string) string { return path }
	results, errs := Map(context.Background(), files, 2, label, func(_ context.Context, path string) (string, error) {
		processed.Add(1)
		if filepath.Base(path) == "bad.py" {
			return "", fmt.Errorf("simulated error")
		}
		return filepath.Base(path), nil
	}, nil)

	assert.Equal(t, int32(3), processed.Load())
	assert.Equal(t, []string{"good1.py", "good2.py"}, results)
	require.NotNil(t, errs)
	require.Len(t, errs.Errors, 1)
	assert.Equal(t, files[1], errs.Errors[0].Path)
}

func TestMap_WithProgress(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}

	var progress atomic.Int32
	results, errs := Map(context.Background(), items, 0, func(i int) string { return fmt.Sprintf("m%d", i) }, func(_ context.Context, i int) (int, error) {
		if i == 2 {
			return 0, errors.New("boom")
		}
		return i * 10, nil
	}, func() { progress.Add(1) })

	assert.Equal(t, []int{0, 10, 30, 40}, results)
	require.Equal(t, 1, errs.Len())
	assert.Equal(t, "m2", errs.Errors[0].Path)
	assert.Equal(t, int32(5), progress.Load(), "progress fires for failures too")
}

func TestMap_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []int{1, 2, 3}
	results, errs := Map(ctx, items, 1, func(i int) string { return fmt.Sprint(i) }, func(_ context.Context, i int) (int, error) {
		return i, nil
	}, nil)

	assert.Empty(t, results)
	require.NotNil(t, errs)
	for _, e := range errs.Errors {
		assert.ErrorIs(t, e.Err, context.Canceled)
	}
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 3, Workers(3))
	assert.Positive(t, Workers(0))
}

func TestProcessingError(t *testing.T) {
	err := ProcessingError{Path: "/path/to/file.py", Err: fmt.Errorf("parse failed")}
	assert.Equal(t, "/path/to/file.py: parse failed", err.Error())
}

func TestProcessingErrors(t *testing.T) {
	errs := &ProcessingErrors{}
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no errors", errs.Error())

	errs.Add("/file1.py", fmt.Errorf("error1"))
	assert.True(t, errs.HasErrors())
	assert.Equal(t, "/file1.py: error1", errs.Error())

	errs.Add("/file2.py", fmt.Errorf("error2"))
	assert.Equal(t, "2 files failed to process (first: /file1.py: error1)", errs.Error())
	assert.Nil(t, errs.Unwrap())

	var nilErrs *ProcessingErrors
	assert.False(t, nilErrs.HasErrors())
	assert.Zero(t, nilErrs.Len())
}

func TestProcessingErrors_ThreadSafe(t *testing.T) {
	errs := &ProcessingErrors{}
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs.Add(fmt.Sprintf("/file%d.py", n), fmt.Errorf("error %d", n))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, errs.Len())
}

func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file %s: %v", name, err)
	}
	return path
}
