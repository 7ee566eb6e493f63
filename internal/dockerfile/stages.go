package dockerfile

// StageKind identifies one step of the build pipeline. The pipeline is
// strictly linear: every stage's output layer is the next stage's input.
type StageKind int

const (
	// StageBase selects the pinned base image.
	StageBase StageKind = iota + 1

	// StageEnv sets the non-interactive build environment.
	StageEnv

	// StageSystem installs OS packages.
	StageSystem

	// StageDeps installs the python dependency manifest.
	StageDeps

	// StageModels materializes pretrained model artifacts.
	StageModels

	// StageHandler copies the request-serving entry point. Kept last among
	// the filesystem-mutating stages so handler churn invalidates a single
	// layer.
	StageHandler

	// StageCommand defines the container startup command.
	StageCommand
)

func (k StageKind) String() string {
	switch k {
	case StageBase:
		return "base"
	case StageEnv:
		return "env"
	case StageSystem:
		return "system"
	case StageDeps:
		return "deps"
	case StageModels:
		return "models"
	case StageHandler:
		return "handler"
	case StageCommand:
		return "command"
	default:
		return "unknown"
	}
}

// stageOrder is the only legal ordering of stages.
var stageOrder = []StageKind{
	StageBase,
	StageEnv,
	StageSystem,
	StageDeps,
	StageModels,
	StageHandler,
	StageCommand,
}

// Stage is a group of Dockerfile instructions belonging to one pipeline step.
type Stage struct {
	Kind         StageKind
	Comment      string
	Instructions []string
}
