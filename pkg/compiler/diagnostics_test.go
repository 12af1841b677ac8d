package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const missingSemicolonStderr = `main.cpp: In function 'int main()':
main.cpp:5:14: error: expected ';' before 'return'
    5 |     int x = 5
      |              ^
      |              ;
    6 |     return 0;
      |     ~~~~~~
main.cpp:4:9: warning: unused variable 'y' [-Wunused-variable]
`

func TestParseDiagnosticsMissingSemicolon(t *testing.T) {
	diags := ParseDiagnostics(missingSemicolonStderr)
	require.Len(t, diags, 2)

	assert.Equal(t, "main.cpp", diags[0].File)
	assert.Equal(t, 5, diags[0].Line)
	assert.Equal(t, 14, diags[0].Column)
	assert.Equal(t, "error", diags[0].Severity)
	assert.Contains(t, diags[0].Message, "expected ';'")

	assert.Equal(t, "warning", diags[1].Severity)
	assert.Equal(t, 4, diags[1].Line)
	assert.True(t, HasErrors(diags))
}

func TestParseDiagnosticsFatalError(t *testing.T) {
	diags := ParseDiagnostics("main.c:1:10: fatal error: missing.h: No such file or directory\n")
	require.Len(t, diags, 1)
	assert.Equal(t, "error", diags[0].Severity)
	assert.Equal(t, 1, diags[0].Line)
}

func TestParseDiagnosticsUnparseableFallsBack(t *testing.T) {
	diags := ParseDiagnostics("collect2: ld returned 1 exit status\n")
	require.Len(t, diags, 1)
	assert.Equal(t, "error", diags[0].Severity)
	assert.Contains(t, diags[0].Message, "collect2")
	assert.Zero(t, diags[0].Line)
}

func TestParseDiagnosticsEmpty(t *testing.T) {
	assert.Empty(t, ParseDiagnostics(""))
	assert.False(t, HasErrors(nil))
}

func TestCacheKeyDistinguishesLanguage(t *testing.T) {
	src := []byte("int main() { return 0; }")
	assert.NotEqual(t, CacheKey(src, "c"), CacheKey(src, "cpp"))
	assert.Equal(t, CacheKey(src, "c"), CacheKey(src, "c"))
}
