package pipeline

// Outcome classifies a finished build. A Failure outcome is still a
// completed deployment: the build log is published even when the
// builder fails.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeWarning
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeWarning:
		return "warning"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Request describes one deployment.
type Request struct {
	// SourceURL is the public clone URL of the repository to build.
	SourceURL string
	// SourceRef is the branch or tag to build.
	SourceRef string
	// DeployDir is the publication path inside the publication
	// repository, for example "dev/master" or "PR/17".
	DeployDir string
	// DeployURL is the authenticated push URL of the publication
	// repository. It carries a token and must never be logged raw.
	DeployURL string
}

// Result is the terminal state of a completed deployment.
type Result struct {
	Outcome Outcome
	// SourceSHA is the resolved HEAD of the source clone. Empty when
	// resolution failed; tag payloads carry no hash so this is the
	// only record of what was built.
	SourceSHA string
}
