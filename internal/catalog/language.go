// Package catalog is the closed Language enumeration: file extension,
// primary command, and invocation recipe are pure functions of the tag.
// There is no runtime registration — adding a language means adding a
// case to every switch below.
package catalog

import (
	"fmt"
	"strings"

	"github.com/Singleload/Singleload/internal/apperrors"
)

// Language is an int-backed enum over the declared constants.
// ParseLanguage only ever returns one of them, but a conversion such as
// Language(99) still compiles outside the package; for such a value the
// methods below return "", "unknown" or an empty Recipe.
type Language int

const (
	Python Language = iota
	JavaScript
	PHP
	Go
	Rust
	Bash
	DotNet
)

// All lists every closed-set member, in declaration order.
func All() []Language {
	return []Language{Python, JavaScript, PHP, Go, Rust, Bash, DotNet}
}

// ParseLanguage decodes an external tag string into a Language. Unknown
// tags fail with apperrors.KindUnsupportedLanguage before ever reaching
// the catalog, per spec §4.A.
func ParseLanguage(tag string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "python":
		return Python, nil
	case "javascript", "js":
		return JavaScript, nil
	case "php":
		return PHP, nil
	case "go", "golang":
		return Go, nil
	case "rust", "rs":
		return Rust, nil
	case "bash", "sh":
		return Bash, nil
	case "dotnet", "csharp", "cs":
		return DotNet, nil
	default:
		return 0, apperrors.New(apperrors.KindUnsupportedLanguage, fmt.Sprintf("unsupported language: %q", tag))
	}
}

// String returns the canonical external tag for the language.
func (l Language) String() string {
	switch l {
	case Python:
		return "python"
	case JavaScript:
		return "javascript"
	case PHP:
		return "php"
	case Go:
		return "go"
	case Rust:
		return "rust"
	case Bash:
		return "bash"
	case DotNet:
		return "dotnet"
	default:
		return "unknown"
	}
}

// Extension returns the language's fixed source file extension, dotted form.
func (l Language) Extension() string {
	switch l {
	case Python:
		return ".py"
	case JavaScript:
		return ".js"
	case PHP:
		return ".php"
	case Go:
		return ".go"
	case Rust:
		return ".rs"
	case Bash:
		return ".sh"
	case DotNet:
		return ".cs"
	default:
		return ""
	}
}

// Command returns the language's primary interpreter/compiler command.
func (l Language) Command() string {
	switch l {
	case Python:
		return "python3"
	case JavaScript:
		return "node"
	case PHP:
		return "php"
	case Go:
		return "go"
	case Rust:
		return "rustc"
	case Bash:
		return "bash"
	case DotNet:
		return "dotnet"
	default:
		return ""
	}
}

// Recipe is the (argv, extra-env) pair applied to a script mounted at
// containerScriptPath (always /workspace/script<ext>).
type Recipe struct {
	Argv []string
	Env  map[string]string
}

// BuildRecipe returns the invocation recipe for l, given the in-container
// path of the validated script file. See spec §4.A for the literal argv
// and environment additions per language.
func (l Language) BuildRecipe(containerScriptPath string) Recipe {
	switch l {
	case Python:
		return Recipe{
			Argv: []string{"python3", containerScriptPath},
			Env: map[string]string{
				"PYTHONUNBUFFERED":        "1",
				"PYTHONDONTWRITEBYTECODE": "1",
			},
		}
	case JavaScript:
		return Recipe{Argv: []string{"node", containerScriptPath}}
	case PHP:
		return Recipe{Argv: []string{"php", containerScriptPath}}
	case Go:
		return Recipe{
			Argv: []string{"go", "run", containerScriptPath},
			Env: map[string]string{
				"GOCACHE": "/tmp/gocache",
				"GOPATH":  "/tmp/gopath",
			},
		}
	case Bash:
		return Recipe{Argv: []string{"bash", containerScriptPath}}
	case Rust:
		return Recipe{
			Argv: []string{"bash", "-c", fmt.Sprintf(
				"cd /tmp && rustc %s -o rust_binary && ./rust_binary", containerScriptPath,
			)},
		}
	case DotNet:
		return Recipe{
			Argv: []string{"bash", "-c", fmt.Sprintf(
				"cd /tmp && dotnet new console -o app && cp %s /tmp/app/Program.cs && cd app && dotnet run",
				containerScriptPath,
			)},
			Env: map[string]string{
				"DOTNET_CLI_HOME":             "/tmp",
				"DOTNET_CLI_TELEMETRY_OPTOUT": "1",
			},
		}
	default:
		return Recipe{}
	}
}
