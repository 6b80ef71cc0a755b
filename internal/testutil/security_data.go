package testutil

import (
	"path/filepath"
	"runtime"
)

// PathTraversalCase describes a single path traversal test vector.
type PathTraversalCase struct{ Name, Path string }

// PathTraversalCases returns paths that must never resolve inside an
// import or media root. Windows drive and UNC forms are added on Windows.
func PathTraversalCases() []PathTraversalCase {
	sep := string(filepath.Separator)
	cases := []PathTraversalCase{
		{"rooted path", sep + "rooted" + sep + "_chat.txt"},
		{"escape dot dot", "../escape.zip"},
		{"escape dot dot nested", "WhatsApp Chat/../../escape.zip"},
		{"escape just dot dot", ".."},
	}
	if runtime.GOOS == "windows" {
		cases = append(cases,
			PathTraversalCase{"absolute drive path", `C:\Windows\system32`},
			PathTraversalCase{"UNC path", `\\server\share\chat.zip`},
			PathTraversalCase{"drive-relative path", `C:chat.zip`},
			PathTraversalCase{"forward-slash absolute path", "/abs/path"},
		)
	} else {
		cases = append(cases, PathTraversalCase{"absolute path", "/abs/path"})
	}
	return cases
}
