package judge

import (
	"errors"
	"strings"
)

// ErrUnsupportedLanguage indicates a submission names a language outside
// the supported set. This is a configuration error, not a grading
// verdict.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language is the closed set of runtimes the sandbox can grade.
type Language int

const (
	LangUnsupported Language = iota
	LangPython
	LangJavaScript
	LangCpp
	LangJava
)

// ParseLanguage resolves a language tag once, at the edge. Aliases match
// what students actually type.
func ParseLanguage(tag string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "python", "python3", "py":
		return LangPython, nil
	case "javascript", "node", "js":
		return LangJavaScript, nil
	case "cpp", "c++":
		return LangCpp, nil
	case "java":
		return LangJava, nil
	default:
		return LangUnsupported, ErrUnsupportedLanguage
	}
}

// String returns the canonical tag, which is also the key used for the
// runner image lookup.
func (l Language) String() string {
	switch l {
	case LangPython:
		return "python"
	case LangJavaScript:
		return "javascript"
	case LangCpp:
		return "cpp"
	case LangJava:
		return "java"
	default:
		return "unsupported"
	}
}

// SourceFileName returns the entry-file name convention for the
// language. Java is the exception: the class name and the file name must
// match for that runtime.
func (l Language) SourceFileName() string {
	switch l {
	case LangPython:
		return "main.py"
	case LangJavaScript:
		return "main.js"
	case LangCpp:
		return "main.cpp"
	case LangJava:
		return "Main.java"
	default:
		return ""
	}
}
