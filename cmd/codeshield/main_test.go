package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("writes panic log", func(t *testing.T) {
		var written []byte
		var exitCode int
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			assert.Equal(t, panicLogFile, name)
			written = data
			return nil
		}
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, 2, exitCode)
		assert.True(t, strings.HasPrefix(string(written), "panic: boom"))
		assert.Contains(t, string(written), "goroutine")
	})

	t.Run("log write failure still exits", func(t *testing.T) {
		exitCode := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, 2, exitCode)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}

func TestRunInteractive(t *testing.T) {
	in := strings.NewReader("\nversion\nbogus-command\nexit\nversion\n")
	var out, errOut bytes.Buffer

	err := runInteractive(context.Background(), in, &out, &errOut)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out.String(), "codeshield version"), "commands after exit must not run")
	assert.Contains(t, out.String(), "Exiting codeshield.")
	assert.Contains(t, errOut.String(), "unknown command")
}

func TestRunInteractive_EOF(t *testing.T) {
	var out, errOut bytes.Buffer
	err := runInteractive(context.Background(), strings.NewReader("version"), &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "codeshield version")
	assert.Contains(t, out.String(), "Exiting codeshield.")
}
