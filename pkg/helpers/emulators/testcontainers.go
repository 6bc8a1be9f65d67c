package emulators

// ImageContainer describes an emulator image and the ports it listens on.
type ImageContainer struct {
	EmulatorImage    string
	EmulatorGRPCPort string
}

// GCImageContainer is an ImageContainer for a Google Cloud emulator bound to one project.
type GCImageContainer struct {
	ImageContainer
	ProjectID string

	// SetEnvVariables exports the emulator host (e.g. PUBSUB_EMULATOR_HOST) for the test.
	SetEnvVariables bool
}
