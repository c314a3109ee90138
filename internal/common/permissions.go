package common

// File permission constants shared by every writer in the pipeline
const (
	// FilePermissionSecure is used for files that carry credentials (profiles.yml, .env)
	FilePermissionSecure = 0600

	// FilePermissionNormal is used for generated data (seeds, model artifacts)
	FilePermissionNormal = 0644

	// DirPermissionNormal is used for generated directories
	DirPermissionNormal = 0755
)
