package synth

import "fmt"

// explain produces the human-readable line shown next to a step.
func explain(st *Step) string {
	switch st.EventType {
	case FuncEnter:
		return fmt.Sprintf("Calling function %s", st.FunctionName)
	case FuncExit:
		return fmt.Sprintf("Returning from %s", st.FunctionName)
	case HeapAlloc:
		if st.SizeBytes > 0 {
			return fmt.Sprintf("Allocated %d bytes on the heap at %s", st.SizeBytes, st.Address)
		}
		return fmt.Sprintf("Allocated heap memory at %s", st.Address)
	case HeapFree:
		return fmt.Sprintf("Freed heap memory at %s", st.Address)
	}

	switch {
	case st.Name == "return" && st.Value != nil:
		return fmt.Sprintf("Returning %v from %s", formatValue(st.Value), st.FunctionName)
	case st.Name != "" && st.Value != nil:
		return fmt.Sprintf("%s = %v", st.Name, formatValue(st.Value))
	case st.Name != "" && st.VarType != "":
		return fmt.Sprintf("Declared %s %s", st.VarType, st.Name)
	case st.Name != "":
		return fmt.Sprintf("Updated %s", st.Name)
	}
	return fmt.Sprintf("Executing line %d", st.SourceLine)
}

// formatValue renders JSON-decoded values the way the source would show
// them: floats without the exponent form, arrays in braces.
func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case []any:
		out := "{"
		for i, e := range x {
			if i > 0 {
				out += ", "
			}
			out += formatValue(e)
		}
		return out + "}"
	case string:
		return x
	default:
		return fmt.Sprintf("%v", v)
	}
}
