package dataset

// SandboxSpec binds a sample to a sandbox environment declaration. Name
// selects a provider-registered sandbox configuration (e.g. "default",
// "python"); Config carries provider-specific environment declarations
// (e.g. a compose file path or image reference).
type SandboxSpec struct {
	Name   string
	Config map[string]any
}

// FileRef is the content of one file to materialize into a sample's
// sandbox before any solver runs. Exactly one of Bytes or Path should be
// set; Path references external content the engine must fetch lazily.
type FileRef struct {
	Bytes []byte
	Path  string
}

// Sample is one immutable dataset row fed to the engine. Sample identity is
// the pair (ID, epoch), and each pair is expected to be unique within a task
// run (spec invariant 1); the scheduler does not check for duplicates.
type Sample struct {
	// ID is the stable sample identifier, either a string or an integer.
	// Comparisons for identity/equality should stringify via fmt.Sprint.
	ID any

	// Input is the sample's prompt as an ordered sequence of chat
	// messages; a plain-string prompt is a single user ChatMessage.
	Input []ChatMessage

	// Target holds zero or more reference answers used by scorers.
	Target []string

	// Choices holds ordered answer labels for multiple-choice samples.
	Choices []string

	// Metadata is a string-keyed heterogeneous mapping carried alongside
	// the sample for scorers/solvers to consult.
	Metadata map[string]any

	// Files maps a sandbox-relative path to its content, written before
	// any solver runs when the sample declares a Sandbox.
	Files map[string]FileRef

	// Setup is an optional shell script executed in the sandbox after
	// Files are written and before the solver chain starts.
	Setup string

	// Sandbox optionally binds this sample to a sandbox environment.
	Sandbox *SandboxSpec
}

// InputText renders a single-string Input as its content, or concatenates a
// multi-message Input's user-visible text. Used by scorers and prompts that
// only need flat text.
func (s Sample) InputText() string {
	if len(s.Input) == 0 {
		return ""
	}
	if len(s.Input) == 1 {
		return s.Input[0].Content()
	}
	var out string
	for i, m := range s.Input {
		if i > 0 {
			out += "\n"
		}
		out += m.Content()
	}
	return out
}
