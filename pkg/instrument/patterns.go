package instrument

import "regexp"

// typePat covers the primitive types the rewriter understands. Anything
// else falls through to the plain-assignment matchers or passes through
// untouched.
const typePat = `(?:const\s+|static\s+)*((?:unsigned\s+|signed\s+)?(?:bool|char|short|int|long\s+long|long|float|double|size_t|std::string|string))`

var (
	reInclude     = regexp.MustCompile(`^\s*#\s*include\b`)
	reTraceHeader = regexp.MustCompile(`#\s*include\s*"trace\.h"`)
	rePreproc     = regexp.MustCompile(`^\s*#`)

	// A function-definition head is only recognized at global brace depth.
	reFuncHead = regexp.MustCompile(`^\s*(?:static\s+|inline\s+)*([A-Za-z_][\w:]*(?:\s*[*&])?)\s+([A-Za-z_]\w*)\s*\(([^;{}]*)\)\s*(\{)?\s*$`)

	reStructHead = regexp.MustCompile(`^\s*(?:typedef\s+)?(?:struct|class|union|enum)\b[^;()]*$`)

	// Declarations and writes, in recognition priority order.
	reMultiDecl  = regexp.MustCompile(`^\s*` + typePat + `\s+(\w+\s*(?:=\s*[^,;]+)?(?:\s*,\s*\*?\s*\w+\s*(?:=\s*[^,;]+)?)+)\s*;\s*$`)
	reArrayDecl  = regexp.MustCompile(`^\s*` + typePat + `\s+(\w+)\s*((?:\[[^\]]*\])+)\s*(?:=\s*(\{[^;]*\}|"(?:[^"\\]|\\.)*"))?\s*;\s*$`)
	reDeclInit   = regexp.MustCompile(`^\s*` + typePat + `\s+(\w+)\s*=\s*([^;]+);\s*$`)
	reDeclOnly   = regexp.MustCompile(`^\s*` + typePat + `\s+(\w+)\s*;\s*$`)
	rePtrDecl    = regexp.MustCompile(`^\s*` + typePat + `\s*\*\s*(\w+)\s*(?:=\s*([^;]+))?;\s*$`)
	reAssign     = regexp.MustCompile(`^\s*(\w+)\s*=\s*([^;]+);\s*$`)
	reCompound   = regexp.MustCompile(`^\s*(\w+)\s*(\+=|-=|\*=|/=|%=|&=|\|=|\^=|<<=|>>=)\s*[^;]+;\s*$`)
	reIncDec     = regexp.MustCompile(`^\s*(?:(?:\+\+|--)\s*(\w+)|(\w+)\s*(?:\+\+|--))\s*;\s*$`)
	reMemberSet  = regexp.MustCompile(`^\s*(\w+)(\.|->)(\w+)\s*=\s*[^;=][^;]*;\s*$`)
	reDerefSet   = regexp.MustCompile(`^\s*\*\s*(\w+)\s*=\s*[^;]+;\s*$`)
	reIndexSet   = regexp.MustCompile(`^\s*(\w+)\s*((?:\[[^\]]+\]){1,3})\s*=\s*[^;]+;\s*$`)
	reIndexSplit = regexp.MustCompile(`\[([^\]]+)\]`)

	// Structured control flow.
	reFor      = regexp.MustCompile(`^(\s*)for\s*\((.*)\)\s*(\{)?\s*$`)
	reWhile    = regexp.MustCompile(`^(\s*)while\s*\((.*)\)\s*(\{)\s*$`)
	reDoOpen   = regexp.MustCompile(`^(\s*)do\s*(\{)\s*$`)
	reDoClose  = regexp.MustCompile(`^(\s*)\}\s*while\s*\((.*)\)\s*;\s*$`)
	reIf       = regexp.MustCompile(`^(\s*)(\}\s*else\s+if|if)\s*\((.*)\)\s*(\{)\s*$`)
	reElse     = regexp.MustCompile(`^\s*\}?\s*else\s*\{\s*$`)
	reBrkCont  = regexp.MustCompile(`^\s*(break|continue)\s*;\s*$`)
	reReturn   = regexp.MustCompile(`^\s*return\b\s*([^;]*);\s*$`)
	reBareOpen = regexp.MustCompile(`^\s*\{\s*$`)
	reBareEnd  = regexp.MustCompile(`^\s*\}\s*;?\s*$`)

	reDelete = regexp.MustCompile(`^\s*(?:delete(?:\s*\[\s*\])?\s+(\w+)|free\s*\(\s*(\w+)\s*\))\s*;\s*$`)

	// Interactive input and output flush points.
	reCin    = regexp.MustCompile(`^\s*(?:std::)?cin\s*(>>[^;]+);\s*$`)
	reScanf  = regexp.MustCompile(`^\s*scanf\s*\(\s*("(?:[^"\\]|\\.)*")\s*,\s*([^;]+)\)\s*;\s*$`)
	reOutput = regexp.MustCompile(`^\s*(?:(?:std::)?cout\s*<<|printf\s*\(|puts\s*\(|putchar\s*\(|(?:std::)?cerr\s*<<)`)

	// Array-to-pointer decay on the right-hand side of a pointer init:
	// either a plain identifier or an explicit &arr[0].
	reDecayAddr = regexp.MustCompile(`^&\s*(\w+)\s*\[\s*0\s*\]$`)
	reIdent     = regexp.MustCompile(`^(\w+)$`)
	reHeapRHS   = regexp.MustCompile(`\bnew\b|\bmalloc\s*\(|\bcalloc\s*\(|\brealloc\s*\(`)
	reAddrOf    = regexp.MustCompile(`^&\s*(\w+)$`)

	reKeyword = regexp.MustCompile(`^(if|else|for|while|do|switch|case|return|break|continue|goto|sizeof|new|delete|struct|class|union|enum|typedef|using|namespace|template|public|private|protected)$`)
)
