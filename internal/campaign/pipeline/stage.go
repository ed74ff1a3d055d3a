package pipeline

// Stage is one step of the campaign wizard. Stages are visited in order.
type Stage int

const (
	StagePrompt Stage = iota
	StageDocument
	StageAudience
	StageResolution
	StageGeneration
)

func (s Stage) String() string {
	switch s {
	case StagePrompt:
		return "prompt"
	case StageDocument:
		return "document"
	case StageAudience:
		return "audience"
	case StageResolution:
		return "resolution"
	case StageGeneration:
		return "generation"
	}
	return "unknown"
}
