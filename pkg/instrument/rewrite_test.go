package instrument

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderInjectedOnce(t *testing.T) {
	src := "#include <cstdio>\n\nint main() {\n    return 0;\n}\n"

	first, err := Rewrite(src, LangCPP)
	require.NoError(t, err)
	assert.True(t, first.HeaderInjected)
	assert.Equal(t, 1, strings.Count(first.Source, `#include "trace.h"`))

	second, err := Rewrite(first.Source, LangCPP)
	require.NoError(t, err)
	assert.False(t, second.HeaderInjected)
	assert.Equal(t, 1, strings.Count(second.Source, `#include "trace.h"`))
}

func TestDeclareThenValueReport(t *testing.T) {
	src := "int main() {\n    int x = 5;\n    return 0;\n}\n"
	res, err := Rewrite(src, LangC)
	require.NoError(t, err)

	decl := strings.Index(res.Source, "__trace_declare(x, int,")
	value := strings.Index(res.Source, "__trace_var_int(x,")
	require.GreaterOrEqual(t, decl, 0, "missing declare call:\n%s", res.Source)
	require.GreaterOrEqual(t, value, 0, "missing value report:\n%s", res.Source)
	assert.Less(t, decl, value, "declare must precede the value report")
}

func TestRedeclarationSuppressed(t *testing.T) {
	src := "int main() {\n    int a = 1, a = 2;\n    return 0;\n}\n"
	res, err := Rewrite(src, LangC)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(res.Source, "__trace_declare(a, int,"))
}

func TestArrayShortInitializerZeroPadded(t *testing.T) {
	src := "int main() {\n    int arr[5] = {1, 2};\n    return 0;\n}\n"
	res, err := Rewrite(src, LangC)
	require.NoError(t, err)

	assert.Contains(t, res.Source, "__trace_array_create(arr, int, 5, -1, -1,")
	idx := strings.Index(res.Source, "__trace_array_init(arr,")
	require.GreaterOrEqual(t, idx, 0, "missing array init:\n%s", res.Source)
	initLine := res.Source[idx:strings.IndexByte(res.Source[idx:], '\n')+idx]
	assert.Equal(t, 5, strings.Count(initLine, "(long long)"), "init must carry all 5 elements: %s", initLine)
	assert.Equal(t, 3, strings.Count(initLine, "(long long)(0)"), "trailing entries must be zero: %s", initLine)
}

func TestCharArrayStringInitializer(t *testing.T) {
	src := "int main() {\n    char word[8] = \"hi\";\n    return 0;\n}\n"
	res, err := Rewrite(src, LangC)
	require.NoError(t, err)
	assert.Contains(t, res.Source, `__trace_array_init_string(word, "hi",`)
}

func TestInputRequestPrecedesRead(t *testing.T) {
	src := "#include <iostream>\n\nint main() {\n    int n;\n    std::cin >> n;\n    return 0;\n}\n"
	res, err := Rewrite(src, LangCPP)
	require.NoError(t, err)

	req := strings.Index(res.Source, `__trace_input_request("n", "int",`)
	read := strings.Index(res.Source, "std::cin >> n;")
	report := strings.Index(res.Source, "__trace_var_int(n,")
	require.GreaterOrEqual(t, req, 0, "missing input request:\n%s", res.Source)
	require.GreaterOrEqual(t, report, 0)
	assert.Less(t, req, read, "request must precede the blocking read")
	assert.Greater(t, report, read, "value report must follow the read")
}

func TestScanfTargets(t *testing.T) {
	src := "int main() {\n    int n;\n    scanf(\"%d\", &n);\n    return 0;\n}\n"
	res, err := Rewrite(src, LangC)
	require.NoError(t, err)
	assert.Contains(t, res.Source, `__trace_input_request("n", "int",`)
}

func TestPointerDecayDetected(t *testing.T) {
	src := "int main() {\n    int arr[3] = {1, 2, 3};\n    int *p = arr;\n    int *q = &arr[0];\n    return 0;\n}\n"
	res, err := Rewrite(src, LangC)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(res.Source, "__trace_pointer_alias(p, 1,")+
		strings.Count(res.Source, "__trace_pointer_alias(q, 1,"))
}

func TestHeapAllocationMarked(t *testing.T) {
	src := "int main() {\n    int *p = new int[4];\n    delete [] p;\n    return 0;\n}\n"
	res, err := Rewrite(src, LangCPP)
	require.NoError(t, err)
	assert.Contains(t, res.Source, `__trace_control_flow("alloc",`)
	assert.Contains(t, res.Source, `__trace_control_flow("free",`)
	assert.Contains(t, res.Source, "__trace_pointer_heap_init(p,")
}

func TestUnrecognizedLinePassesThrough(t *testing.T) {
	weird := "    template <typename T> auto frob(T&& t) -> decltype(t.x) { weird }"
	src := "int main() {\n" + weird + "\n    return 0;\n}\n"
	res, err := Rewrite(src, LangCPP)
	require.NoError(t, err)
	assert.Contains(t, res.Source, weird, "unmatched lines must pass through unchanged")
}

func TestStructBodyNotInstrumented(t *testing.T) {
	src := "struct point {\n    int x;\n    int y;\n};\n\nint main() {\n    return 0;\n}\n"
	res, err := Rewrite(src, LangCPP)
	require.NoError(t, err)
	assert.NotContains(t, res.Source, "__trace_declare(x,")
	assert.NotContains(t, res.Source, "__trace_declare(y,")
}

func TestBracesInLiteralsIgnored(t *testing.T) {
	src := "int main() {\n    const char *s = \"{{{\";\n    int x = 5;\n    return 0;\n}\n"
	res, err := Rewrite(src, LangC)
	require.NoError(t, err)
	// If literal braces were counted the declaration would land outside the
	// function scope and get no instrumentation.
	assert.Contains(t, res.Source, "__trace_declare(x, int,")
}

func TestGoldenSimpleLoop(t *testing.T) {
	src := `#include <iostream>

int add(int a, int b) {
    int sum = a + b;
    return sum;
}

int main() {
    int total = 0;
    for (int i = 0; i < 3; i = i + 1) {
        total = total + i;
    }
    std::cout << total << std::endl;
    return 0;
}
`
	res, err := Rewrite(src, LangCPP)
	require.NoError(t, err)
	require.True(t, res.HeaderInjected)

	g := goldie.New(t)
	g.Assert(t, "simple_loop", []byte(res.Source))
}
