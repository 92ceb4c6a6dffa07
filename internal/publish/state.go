package publish

// State is a step of a publish run.
type State string

const (
	StateResolvingVersions   State = "resolving_versions"
	StateDecidingPublish     State = "deciding_publish"
	StateBuilding            State = "building"
	StatePublishingManifests State = "publishing_manifests"
	StateReconcilingAliases  State = "reconciling_aliases"
	StateDone                State = "done"
)

// State returns the step the orchestrator is in or has stopped at.
func (o *Orchestrator) State() State {
	return o.state
}
